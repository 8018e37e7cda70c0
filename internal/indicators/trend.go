package indicators

import "math"

// ConsensusTrend votes on the direction of a horizon h using the simple moving averages of
// every window in [h-offset, h+1]. A window votes with the sign of its average's one-bar
// change, carrying its last non-zero vote through flat stretches. The result is 1 or -1
// only when every window agrees, 0 otherwise, and NaN until the shortest window has data
// or when the offset leaves no window at all.
func ConsensusTrend(closes []float64, horizon, offset int) []float64 {
	lo := horizon - offset
	if lo < 1 {
		lo = 1
	}
	hi := horizon + 1
	if lo > hi {
		return nanSeries(len(closes))
	}

	votes := make([][]int, 0, hi-lo+1)
	for w := lo; w <= hi; w++ {
		votes = append(votes, windowVotes(SMA(closes, w)))
	}

	out := nanSeries(len(closes))
	for i := range closes {
		if i < lo {
			continue
		}
		sum := 0
		unanimous := true
		for _, v := range votes {
			if v[i] == 0 {
				unanimous = false
				break
			}
			sum += v[i]
		}
		switch {
		case unanimous && sum == len(votes):
			out[i] = 1
		case unanimous && sum == -len(votes):
			out[i] = -1
		default:
			out[i] = 0
		}
	}
	return out
}

// windowVotes is the sign of each one-bar change of sma, forward-filling zero changes.
// Bars without two defined averages vote 0.
func windowVotes(sma []float64) []int {
	out := make([]int, len(sma))
	last := 0
	for i := 1; i < len(sma); i++ {
		if math.IsNaN(sma[i]) || math.IsNaN(sma[i-1]) {
			continue
		}
		if s := Sign(sma[i] - sma[i-1]); s != 0 {
			last = s
		}
		out[i] = last
	}
	return out
}
