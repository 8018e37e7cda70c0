package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// SideOf maps a signed quantity to a side. Zero has no side.
func SideOf(units float64) Side {
	switch {
	case units > 0:
		return SideLong
	case units < 0:
		return SideShort
	}
	return ""
}

// PositionSnapshot is the net position of an instrument at fetch time.
type PositionSnapshot struct {
	Instrument   string
	Units        float64 // signed, long + short
	UnrealizedPL float64
	MarginUsed   float64
}

// OpenTrade is a single open trade as reported by the broker.
type OpenTrade struct {
	ID                   string
	Instrument           string
	State                string
	EntryPrice           float64
	CurrentUnits         float64 // signed
	UnrealizedPL         float64
	MarginUsed           float64
	StopLossPrice        *float64
	TrailingStopDistance *float64
	OpenTime             time.Time
}

// Price is a live top-of-book quote.
type Price struct {
	Instrument string
	Bid        float64
	Ask        float64
	Time       time.Time
}

func (p Price) Mid() float64 {
	return (p.Bid + p.Ask) / 2
}

func (p Price) Spread() float64 {
	return p.Ask - p.Bid
}
