package domain

import "time"

type Action string

const (
	ActionNone   Action = "none"
	ActionOpen   Action = "open"
	ActionAdd    Action = "add"
	ActionReduce Action = "reduce"
)

// TradeDecision is the outcome of one pair's pipeline for one tick. It is never read back.
type TradeDecision struct {
	Pair            string    `json:"pair"`
	Granularity     string    `json:"granularity"`
	CandleTime      time.Time `json:"candle_time"`
	Action          Action    `json:"action"`
	Quantity        float64   `json:"quantity"`
	StopLoss        *float64  `json:"stop_loss,omitempty"`
	TakeProfit      *float64  `json:"take_profit,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`

	Trigger        int       `json:"trigger"`
	Streak         int       `json:"streak"`
	NetStrength    float64   `json:"net_strength"`
	HigherStrength float64   `json:"higher_strength"`
	RSI            float64   `json:"rsi"`
	ATRMultiple    float64   `json:"atr_multiple"`
	CurrentUnits   float64   `json:"current_units"`
	OrderKind      OrderKind `json:"order_kind,omitempty"`
	LimitPrice     float64   `json:"limit_price,omitempty"`
	BrokerOrderID  string    `json:"broker_order_id,omitempty"`
	DecidedAt      time.Time `json:"decided_at"`
}

// Rejected reports whether the gate turned the signal down.
func (d *TradeDecision) Rejected() bool {
	return d.RejectionReason != ""
}
