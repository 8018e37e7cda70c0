package domain

import (
	"fmt"
	"time"
)

// Granularity is a broker candle period, e.g. "M30".
type Granularity string

const (
	M1  Granularity = "M1"
	M5  Granularity = "M5"
	M15 Granularity = "M15"
	M30 Granularity = "M30"
	H1  Granularity = "H1"
	H4  Granularity = "H4"
	D   Granularity = "D"
)

var granularityToDuration = map[Granularity]time.Duration{
	M1:  time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  time.Hour,
	H4:  4 * time.Hour,
	D:   24 * time.Hour,
}

// 256 trading days a year.
var periodsInYear = map[Granularity]float64{
	D:   256,
	H4:  256 * 6,
	H1:  256 * 24,
	M30: 256 * 24 * 2,
	M15: 256 * 24 * 4,
	M5:  256 * 24 * 12,
	M1:  256 * 24 * 60,
}

var higherGranularity = map[Granularity]Granularity{
	M5:  H1,
	M15: H4,
	H1:  H4,
	H4:  D,
}

func (g Granularity) String() string {
	return string(g)
}

// Valid reports whether the granularity is one the engine knows how to annualize.
func (g Granularity) Valid() bool {
	_, ok := granularityToDuration[g]
	return ok
}

func (g Granularity) ToDuration() (time.Duration, error) {
	d, ok := granularityToDuration[g]
	if !ok {
		return 0, fmt.Errorf("invalid granularity: %s", g)
	}
	return d, nil
}

// BarsPerYear is used to annualize per-bar volatility.
func (g Granularity) BarsPerYear() (float64, error) {
	n, ok := periodsInYear[g]
	if !ok {
		return 0, fmt.Errorf("no bars-per-year constant for granularity %s", g)
	}
	return n, nil
}

// Higher returns the confirmation timeframe for g, or g itself when none is mapped.
func (g Granularity) Higher() Granularity {
	if h, ok := higherGranularity[g]; ok {
		return h
	}
	return g
}

// OrderExpiry is how long a limit order placed on this timeframe stays alive: one bar.
func (g Granularity) OrderExpiry() time.Duration {
	if d, ok := granularityToDuration[g]; ok {
		return d
	}
	return time.Hour
}
