package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/ha_trader/internal/domain"
	"github.com/vitos/ha_trader/internal/indicators"
)

// StopLevels are the protective prices of a prospective trade.
type StopLevels struct {
	StopLoss   float64
	TakeProfit float64
	// Gap is the rounded distance between entry and stop.
	Gap float64
	// ATRMultiple is Gap over the current ATR; +Inf when ATR is unavailable.
	ATRMultiple float64
	FromSwing   bool
}

type StopLossCalculator struct {
	donchianWindow int
	tpMultiple     float64
}

func NewStopLossCalculator(donchianWindow int, tpMultiple float64) *StopLossCalculator {
	return &StopLossCalculator{
		donchianWindow: donchianWindow,
		tpMultiple:     tpMultiple,
	}
}

// Calculate anchors the stop of a trade in direction at the preceding Heiken-Ashi swing,
// or at the Donchian extreme of the raw candles when there is no swing. The stop is moved
// outward by the last candle's spread. Entry is the last mid close.
func (c *StopLossCalculator) Calculate(direction int, candles []domain.Candle, bars []indicators.HACandle, inst domain.InstrumentMeta, atr float64) (StopLevels, error) {
	if direction == 0 {
		return StopLevels{}, fmt.Errorf("stop loss needs a direction")
	}
	if len(candles) == 0 {
		return StopLevels{}, domain.ErrNoData
	}
	last := candles[len(candles)-1]
	price := last.Mid.Close

	anchor, fromSwing := indicators.Swing(bars, direction)
	if !fromSwing {
		var ok bool
		anchor, ok = c.donchian(direction, candles)
		if !ok {
			return StopLevels{}, fmt.Errorf("no swing and fewer than %d candles for a channel: %w", c.donchianWindow, domain.ErrNoData)
		}
	}

	levels := StopLevels{FromSwing: fromSwing}
	levels.StopLoss = RoundPrice(ProtectiveStop(anchor, direction, last.Spread()), inst)
	levels.Gap = RoundPrice(math.Abs(price-levels.StopLoss), inst)
	if direction > 0 {
		levels.TakeProfit = RoundPrice(price+levels.Gap*c.tpMultiple, inst)
	} else {
		levels.TakeProfit = RoundPrice(price-levels.Gap*c.tpMultiple, inst)
	}

	levels.ATRMultiple = math.Inf(1)
	if indicators.IsDefined(atr) && atr > 0 {
		levels.ATRMultiple = levels.Gap / atr
	}
	return levels, nil
}

func (c *StopLossCalculator) donchian(direction int, candles []domain.Candle) (float64, bool) {
	var v float64
	if direction > 0 {
		v = indicators.Last(indicators.RollingMin(domain.MidLows(candles), c.donchianWindow))
	} else {
		v = indicators.Last(indicators.RollingMax(domain.MidHighs(candles), c.donchianWindow))
	}
	return v, indicators.IsDefined(v)
}

// ProtectiveStop pushes an anchor price away from the market by the spread.
func ProtectiveStop(anchor float64, direction int, spread float64) float64 {
	if direction > 0 {
		return anchor - spread
	}
	return anchor + spread
}
