package indicators

import "math"

// StrengthIncrement is the unit score of a single passing test.
const StrengthIncrement = 0.1

// StrengthSmoothingSpan smooths the bullish and bearish accumulators before netting.
const StrengthSmoothingSpan = 10

// Horizon weights of the scorer.
const (
	weight200 = 2.0
	weight100 = 1.0
	weight50  = 1.25
	weight30  = 1.0
)

// StrengthBar is everything one bar is scored on.
type StrengthBar struct {
	Price                                float64
	SMA10, SMA30, SMA50, SMA100, SMA200  float64
	Trend30, Trend50, Trend100, Trend200 float64
}

// StrengthSeries are the per-bar scores of a close series.
type StrengthSeries struct {
	Bullish     []float64
	Bearish     []float64
	Net         []float64
	NetSmoothed []float64
}

// LastNet is the smoothed net strength of the latest bar, 0 when undefined.
func (s StrengthSeries) LastNet() float64 {
	v := Last(s.NetSmoothed)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// ScoreBar runs the fixed test battery on one bar. Every test adds its weighted increment
// to at most one of the two sides; undefined inputs add nothing.
func ScoreBar(b StrengthBar) (bullish, bearish float64) {
	add := func(cond bool, side *float64, weight float64) {
		if cond {
			*side += StrengthIncrement * weight
		}
	}
	trendTests := func(trend, sma, fast float64, weight float64) {
		add(trend > 0, &bullish, weight)
		add(trend < 0, &bearish, weight)
		add(fast > sma, &bullish, weight)
		add(fast < sma, &bearish, weight)
		add(b.Price > sma && trend > 0, &bullish, weight)
		add(b.Price < sma && trend < 0, &bearish, weight)
	}

	trendTests(b.Trend200, b.SMA200, b.SMA10, weight200)
	trendTests(b.Trend100, b.SMA100, b.SMA10, weight100)
	trendTests(b.Trend50, b.SMA50, b.Price, weight50)
	trendTests(b.Trend30, b.SMA30, b.Price, weight30)
	return bullish, bearish
}

// Strength scores every bar of closes. offset is the trend consensus window spread.
func Strength(closes []float64, offset int) StrengthSeries {
	n := len(closes)
	sma10 := SMA(closes, 10)
	sma30 := SMA(closes, 30)
	sma50 := SMA(closes, 50)
	sma100 := SMA(closes, 100)
	sma200 := SMA(closes, 200)
	t30 := ConsensusTrend(closes, 30, offset)
	t50 := ConsensusTrend(closes, 50, offset)
	t100 := ConsensusTrend(closes, 100, offset)
	t200 := ConsensusTrend(closes, 200, offset)

	s := StrengthSeries{
		Bullish: make([]float64, n),
		Bearish: make([]float64, n),
		Net:     make([]float64, n),
	}
	for i := 0; i < n; i++ {
		s.Bullish[i], s.Bearish[i] = ScoreBar(StrengthBar{
			Price:    closes[i],
			SMA10:    sma10[i],
			SMA30:    sma30[i],
			SMA50:    sma50[i],
			SMA100:   sma100[i],
			SMA200:   sma200[i],
			Trend30:  t30[i],
			Trend50:  t50[i],
			Trend100: t100[i],
			Trend200: t200[i],
		})
		s.Net[i] = s.Bullish[i] - s.Bearish[i]
	}

	bull := EWMRecursive(s.Bullish, StrengthSmoothingSpan)
	bear := EWMRecursive(s.Bearish, StrengthSmoothingSpan)
	s.NetSmoothed = make([]float64, n)
	for i := range bull {
		s.NetSmoothed[i] = bull[i] - bear[i]
	}
	return s
}

// NetStrength is the smoothed net strength of the latest bar of closes.
func NetStrength(closes []float64, offset int) float64 {
	return Strength(closes, offset).LastNet()
}
