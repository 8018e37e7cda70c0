package usecase

import (
	"github.com/vitos/ha_trader/internal/domain"
	"github.com/vitos/ha_trader/internal/indicators"
)

// ReversalSignal is the Heiken-Ashi view of the latest candles.
type ReversalSignal struct {
	Bars    []indicators.HACandle
	Trigger int
	Streak  int
}

// DetectReversal converts the trailing window of candles to Heiken-Ashi bars and checks
// the latest bar for a fresh run opened at its extreme.
func DetectReversal(candles []domain.Candle, window, maxStreak int) ReversalSignal {
	bars := indicators.HeikenAshi(domain.LastCandles(candles, window))
	sig := ReversalSignal{Bars: bars}
	if len(bars) == 0 {
		return sig
	}
	sig.Streak = bars[len(bars)-1].Streak
	sig.Trigger = indicators.ReversalTrigger(bars, maxStreak)
	return sig
}
