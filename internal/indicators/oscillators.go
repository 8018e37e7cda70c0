package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RSI is Wilder's relative strength index.
func RSI(closes []float64, period int) []float64 {
	if period < 2 || len(closes) <= period {
		return nanSeries(len(closes))
	}
	return maskWarmup(talib.Rsi(closes, period), period)
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|); the first bar uses high-low.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := len(closes)
	if n == 0 {
		return nil
	}
	var out []float64
	if n > 1 {
		out = talib.TRange(highs, lows, closes)
	} else {
		out = make([]float64, 1)
	}
	out[0] = highs[0] - lows[0]
	return out
}

// ATR smooths the true range with a span-based exponential average.
func ATR(highs, lows, closes []float64, period int) []float64 {
	return EWMMean(TrueRange(highs, lows, closes), period, period)
}

// RealizedVolatility annualizes the exponentially weighted standard deviation of
// returns and smooths it once more over three bars.
func RealizedVolatility(closes []float64, lookback int, barsPerYear float64) float64 {
	std := EWMStd(PctChange(closes), lookback)
	scale := math.Sqrt(barsPerYear)
	for i := range std {
		std[i] *= scale
	}
	return Last(EWMMean(std, 3, 0))
}
