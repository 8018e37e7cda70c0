package domain

import "time"

// OHLC is one price side of a candle.
type OHLC struct {
	Open  float64 `json:"o"`
	High  float64 `json:"h"`
	Low   float64 `json:"l"`
	Close float64 `json:"c"`
}

// Candle is a single bar with mid, bid and ask prices.
type Candle struct {
	Time     time.Time `json:"time"`
	Volume   float64   `json:"volume"`
	Mid      OHLC      `json:"mid"`
	Bid      OHLC      `json:"bid"`
	Ask      OHLC      `json:"ask"`
	Complete bool      `json:"complete"`
}

// Spread is the closing ask/bid spread of the candle.
func (c Candle) Spread() float64 {
	return c.Ask.Close - c.Bid.Close
}

// MidCloses extracts the mid close of every candle, oldest first.
func MidCloses(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Mid.Close
	}
	return out
}

// MidHighs extracts the mid high of every candle.
func MidHighs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Mid.High
	}
	return out
}

// MidLows extracts the mid low of every candle.
func MidLows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Mid.Low
	}
	return out
}

// Spreads returns the closing spread series, skipping candles without bid/ask data.
func Spreads(candles []Candle) []float64 {
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		if c.Ask.Close == 0 && c.Bid.Close == 0 {
			continue
		}
		out = append(out, c.Spread())
	}
	return out
}

// LastCandles returns at most n trailing candles.
func LastCandles(candles []Candle, n int) []Candle {
	if n <= 0 || len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
