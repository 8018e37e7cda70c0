package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/ha_trader/internal/indicators"
)

// Rejection reasons, in evaluation order.
const (
	ReasonNoTrigger         = "no trigger"
	ReasonLongOnly          = "long only"
	ReasonShortOnly         = "short only"
	ReasonStrengthMismatch  = "trigger disagrees with net strength"
	ReasonRSIUnavailable    = "rsi unavailable"
	ReasonOverbought        = "rsi overbought"
	ReasonOversold          = "rsi oversold"
	ReasonStopUnavailable   = "stop unavailable"
	ReasonStopTooWide       = "stop too wide for atr"
	ReasonEntryStrengthHigh = "net strength too high for a new entry"
)

type GateConfig struct {
	RSIOverbought float64
	RSIOversold   float64
	ATRRiskFilter float64
	// MaxEntryStrength caps |net strength| for entries from flat; 0 disables the rule.
	MaxEntryStrength float64
}

type GateInput struct {
	Trigger      int
	NetStrength  float64
	RSI          float64
	ATRMultiple  float64
	CurrentUnits float64
	LongOnly     bool
	ShortOnly    bool
}

type Verdict struct {
	Approved bool
	Reason   string
	Detail   string
}

func approve() Verdict {
	return Verdict{Approved: true}
}

func reject(reason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

type TradeGate struct {
	cfg GateConfig
}

func NewTradeGate(cfg GateConfig) *TradeGate {
	return &TradeGate{cfg: cfg}
}

// Evaluate applies the entry rules in order; the first failing rule is the reason.
func (g *TradeGate) Evaluate(in GateInput) Verdict {
	if in.Trigger == 0 {
		return reject(ReasonNoTrigger, "no reversal trigger")
	}
	if in.LongOnly && in.Trigger < 0 {
		return reject(ReasonLongOnly, "sell trigger on a long-only pair")
	}
	if in.ShortOnly && in.Trigger > 0 {
		return reject(ReasonShortOnly, "buy trigger on a short-only pair")
	}
	if indicators.Sign(in.NetStrength) != in.Trigger {
		return reject(ReasonStrengthMismatch, "trigger %d, net strength %.2f", in.Trigger, in.NetStrength)
	}
	if math.IsNaN(in.RSI) {
		return reject(ReasonRSIUnavailable, "rsi undefined")
	}
	if in.Trigger > 0 && in.RSI > g.cfg.RSIOverbought {
		return reject(ReasonOverbought, "rsi %.2f > %.0f", in.RSI, g.cfg.RSIOverbought)
	}
	if in.Trigger < 0 && in.RSI < g.cfg.RSIOversold {
		return reject(ReasonOversold, "rsi %.2f < %.0f", in.RSI, g.cfg.RSIOversold)
	}
	// NaN means no swing and no Donchian channel to place a stop at.
	if math.IsNaN(in.ATRMultiple) {
		return reject(ReasonStopUnavailable, "no stop level for trigger %d", in.Trigger)
	}
	if in.ATRMultiple >= g.cfg.ATRRiskFilter {
		return reject(ReasonStopTooWide, "atr multiple %.2f >= %.2f", in.ATRMultiple, g.cfg.ATRRiskFilter)
	}
	if g.cfg.MaxEntryStrength > 0 && in.CurrentUnits == 0 && math.Abs(in.NetStrength) > g.cfg.MaxEntryStrength {
		return reject(ReasonEntryStrengthHigh, "|%.2f| > %.2f", in.NetStrength, g.cfg.MaxEntryStrength)
	}
	return approve()
}
