// Package indicators holds the numeric building blocks of the signal pipeline.
//
// Series are plain []float64 ordered oldest first. Undefined values (warm-up of a rolling
// window, first return of a price series) are NaN and propagate as "no data".
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

// IsDefined reports whether v carries a value.
func IsDefined(v float64) bool {
	return !math.IsNaN(v)
}

// Last returns the final element of s, or NaN for an empty series.
func Last(s []float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// maskWarmup replaces talib's zero-filled look-back prefix with NaN.
func maskWarmup(out []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average over period bars.
func SMA(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nanSeries(len(values))
	}
	if period == 1 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	return maskWarmup(talib.Sma(values, period), period-1)
}

// RollingMax is the highest value over the trailing window, the upper Donchian band.
func RollingMax(values []float64, window int) []float64 {
	if window < 2 || len(values) < window {
		if window == 1 {
			out := make([]float64, len(values))
			copy(out, values)
			return out
		}
		return nanSeries(len(values))
	}
	return maskWarmup(talib.Max(values, window), window-1)
}

// RollingMin is the lowest value over the trailing window, the lower Donchian band.
func RollingMin(values []float64, window int) []float64 {
	if window < 2 || len(values) < window {
		if window == 1 {
			out := make([]float64, len(values))
			copy(out, values)
			return out
		}
		return nanSeries(len(values))
	}
	return maskWarmup(talib.Min(values, window), window-1)
}

// PctChange is the one-bar fractional change; the first element is undefined.
func PctChange(values []float64) []float64 {
	out := nanSeries(len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 || !IsDefined(values[i-1]) || !IsDefined(values[i]) {
			continue
		}
		out[i] = values[i]/values[i-1] - 1
	}
	return out
}

// Alpha converts a span into an exponential smoothing factor: 2/(span+1).
func Alpha(span int) float64 {
	return 2.0 / float64(span+1)
}

// EWMRecursive is the recursive exponential average y = a*x + (1-a)*y_prev, seeded
// with the first defined value.
func EWMRecursive(values []float64, span int) []float64 {
	out := nanSeries(len(values))
	a := Alpha(span)
	prev := math.NaN()
	for i, v := range values {
		if !IsDefined(v) {
			out[i] = prev
			continue
		}
		if !IsDefined(prev) {
			prev = v
		} else {
			prev = a*v + (1-a)*prev
		}
		out[i] = prev
	}
	return out
}

// EWMMean is the bias-adjusted exponential average, the weighted mean of all past
// observations with weights (1-a)^age. Values before minPeriods observations are NaN.
func EWMMean(values []float64, span, minPeriods int) []float64 {
	out := nanSeries(len(values))
	decay := 1 - Alpha(span)
	var num, den float64
	nobs := 0
	for i, v := range values {
		num *= decay
		den *= decay
		if IsDefined(v) {
			num += v
			den++
			nobs++
		}
		if nobs > 0 && nobs >= minPeriods {
			out[i] = num / den
		}
	}
	return out
}

// EWMStd is the bias-corrected exponentially weighted standard deviation.
func EWMStd(values []float64, span int) []float64 {
	out := nanSeries(len(values))
	decay := 1 - Alpha(span)
	var sw, sw2, swx, swx2 float64
	nobs := 0
	for i, v := range values {
		sw *= decay
		sw2 *= decay * decay
		swx *= decay
		swx2 *= decay
		if IsDefined(v) {
			sw++
			sw2++
			swx += v
			swx2 += v * v
			nobs++
		}
		if nobs < 2 {
			continue
		}
		mean := swx / sw
		biased := swx2/sw - mean*mean
		if biased < 0 {
			biased = 0
		}
		denom := sw*sw - sw2
		if denom <= 0 {
			continue
		}
		out[i] = math.Sqrt(biased * sw * sw / denom)
	}
	return out
}

// Sign is -1, 0 or 1. NaN maps to 0.
func Sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
