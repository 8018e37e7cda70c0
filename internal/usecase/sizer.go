package usecase

import (
	"math"

	"github.com/vitos/ha_trader/internal/domain"
	"github.com/vitos/ha_trader/internal/indicators"
)

type SizerConfig struct {
	// VolTarget of 0 sizes from the broker's margin rate instead of volatility.
	VolTarget        float64
	StdLookback      int
	MaxLeverage      float64
	MaxTradeFraction float64
	MinQtyFraction   float64
}

// Quantities are the signed order sizes derived for one tick.
type Quantities struct {
	Leverage float64
	BaseQty  float64
	MinQty   float64
	IdealQty float64
	// SpareQty is what may be opened or added in the position's direction.
	SpareQty float64
	// ReduceQty moves the position back toward IdealQty.
	ReduceQty float64
}

type PositionSizer struct {
	cfg SizerConfig
}

func NewPositionSizer(cfg SizerConfig) *PositionSizer {
	return &PositionSizer{cfg: cfg}
}

// LeverageRatio targets a fixed annualized volatility using daily closes, capped at the
// configured maximum. Without a target, or when volatility cannot be measured, it falls
// back to the broker's margin leverage.
func (s *PositionSizer) LeverageRatio(dailyCloses []float64, marginRate float64) float64 {
	return s.LeverageForVolatility(s.RealizedVolatility(dailyCloses), marginRate)
}

// RealizedVolatility annualizes the standard deviation of daily returns over the lookback.
func (s *PositionSizer) RealizedVolatility(dailyCloses []float64) float64 {
	barsPerYear, _ := domain.D.BarsPerYear()
	return indicators.RealizedVolatility(dailyCloses, s.cfg.StdLookback, barsPerYear)
}

// LeverageForVolatility is vol target over an annualized volatility, capped at the
// configured maximum. An undefined or zero volatility uses the margin leverage.
func (s *PositionSizer) LeverageForVolatility(vol, marginRate float64) float64 {
	fallback := s.cfg.MaxLeverage
	if marginRate > 0 {
		fallback = math.Min(RoundTo(1/marginRate, 2), s.cfg.MaxLeverage)
	}
	if s.cfg.VolTarget <= 0 {
		return fallback
	}
	if !indicators.IsDefined(vol) || vol <= 0 {
		return fallback
	}
	return math.Min(RoundTo(s.cfg.VolTarget/vol, 3), s.cfg.MaxLeverage)
}

// Quantities sizes the pair from account NAV, its weight, the leverage ratio and the
// exchange rate into the quote currency, then splits the move toward the strength-scaled
// ideal position into an add leg and a reduce leg.
func (s *PositionSizer) Quantities(nav, weight, leverage, fxRate, lastClose, netStrength, currentUnits float64) Quantities {
	q := Quantities{Leverage: leverage}
	if lastClose <= 0 || !indicators.IsDefined(lastClose) {
		return q
	}
	q.BaseQty = nav * weight * leverage * fxRate / lastClose
	q.MinQty = s.cfg.MinQtyFraction * q.BaseQty
	q.IdealQty = q.BaseQty * netStrength

	if currentUnits == 0 {
		q.SpareQty = q.IdealQty
	} else {
		q.SpareQty = AdditionalQty(q.IdealQty, currentUnits)
		q.ReduceQty = ReduceQty(q.IdealQty, currentUnits)
	}
	return q
}

// TradeQty caps a spare quantity at a fraction of the base quantity, keeping its sign.
func (s *PositionSizer) TradeQty(baseQty, spareQty float64) float64 {
	limit := baseQty * s.cfg.MaxTradeFraction
	return float64(indicators.Sign(spareQty)) * math.Min(math.Abs(spareQty), limit)
}

// AdditionalQty is the extra size toward ideal in the direction already held. It is zero
// when ideal points the other way or is smaller than the position.
func AdditionalQty(ideal, current float64) float64 {
	if indicators.Sign(ideal) != indicators.Sign(current) {
		return 0
	}
	diff := ideal - current
	if indicators.Sign(diff) != indicators.Sign(current) {
		return 0
	}
	return diff
}

// ReduceQty is the move back toward ideal. It is zero when that move would grow the position.
func ReduceQty(ideal, current float64) float64 {
	diff := ideal - current
	if indicators.Sign(diff) == indicators.Sign(current) {
		return 0
	}
	return diff
}
