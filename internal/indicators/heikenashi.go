package indicators

import (
	"math"
	"time"

	"github.com/vitos/ha_trader/internal/domain"
)

const extremeTolerance = 1e-8

// HACandle is one smoothed Heiken-Ashi bar.
type HACandle struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
	// Bullish is Close > Open; a doji counts as bearish.
	Bullish bool
	// Streak is the signed length of the current run of same-coloured bars.
	Streak int
	// OpenedAtExtreme marks a bullish bar without a lower wick or a bearish bar
	// without an upper wick.
	OpenedAtExtreme bool
}

// Direction is 1 for a bullish bar and -1 for a bearish one.
func (c HACandle) Direction() int {
	if c.Bullish {
		return 1
	}
	return -1
}

// HeikenAshi transforms mid prices into Heiken-Ashi bars with streak bookkeeping.
func HeikenAshi(candles []domain.Candle) []HACandle {
	out := make([]HACandle, len(candles))
	for i, c := range candles {
		m := c.Mid
		ha := HACandle{Time: c.Time, Close: (m.Open + m.High + m.Low + m.Close) / 4}
		if i == 0 {
			ha.Open = m.Open
		} else {
			ha.Open = (out[i-1].Open + out[i-1].Close) / 2
		}
		ha.High = math.Max(m.High, math.Max(ha.Open, ha.Close))
		ha.Low = math.Min(m.Low, math.Min(ha.Open, ha.Close))
		ha.Bullish = ha.Close > ha.Open

		ha.Streak = ha.Direction()
		if i > 0 && out[i-1].Bullish == ha.Bullish {
			ha.Streak = out[i-1].Streak + ha.Direction()
		}

		if ha.Bullish {
			ha.OpenedAtExtreme = math.Abs(ha.Open-ha.Low) < extremeTolerance
		} else {
			ha.OpenedAtExtreme = math.Abs(ha.Open-ha.High) < extremeTolerance
		}
		out[i] = ha
	}
	return out
}

// ReversalTrigger fires on a fresh run: the latest bar opened at its extreme and its
// streak is no longer than maxStreak. It returns the run direction, or 0.
func ReversalTrigger(bars []HACandle, maxStreak int) int {
	if len(bars) == 0 {
		return 0
	}
	last := bars[len(bars)-1]
	if !last.OpenedAtExtreme {
		return 0
	}
	if last.Streak > maxStreak || last.Streak < -maxStreak {
		return 0
	}
	return Sign(float64(last.Streak))
}

// Swing is the extreme of the run preceding the current one: the lowest low of the last
// bearish run while the current run is bullish, the highest high of the last bullish run
// while bearish. direction restricts the lookup to a trade side; 0 accepts either. ok is
// false when the current run opposes direction or there is no earlier run.
func Swing(bars []HACandle, direction int) (price float64, ok bool) {
	if len(bars) < 2 {
		return 0, false
	}
	current := bars[len(bars)-1].Direction()
	if direction != 0 && direction != current {
		return 0, false
	}

	i := len(bars) - 2
	for i >= 0 && bars[i].Direction() == current {
		i--
	}
	if i < 0 {
		return 0, false
	}

	if current > 0 {
		price = bars[i].Low
		for ; i >= 0 && bars[i].Direction() != current; i-- {
			price = math.Min(price, bars[i].Low)
		}
	} else {
		price = bars[i].High
		for ; i >= 0 && bars[i].Direction() != current; i-- {
			price = math.Max(price, bars[i].High)
		}
	}
	return price, true
}
