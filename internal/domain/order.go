package domain

import "time"

type OrderKind string

const (
	OrderMarket OrderKind = "MARKET"
	OrderLimit  OrderKind = "LIMIT"
)

// OrderRequest is what the engine asks the broker to execute.
// Units are signed: positive buys, negative sells.
type OrderRequest struct {
	ClientID   string
	Instrument string
	Units      float64
	Kind       OrderKind
	Price      float64       // limit price, ignored for market orders
	Expiry     time.Duration // good-till-date offset for limit orders
	StopLoss   *float64
	TakeProfit *float64
	Tag        string
}

// OrderRecord is a journal entry for a submitted (or dry-run) order.
type OrderRecord struct {
	ID            string
	Pair          string
	Granularity   string
	Action        Action
	Kind          OrderKind
	Units         float64
	Price         float64
	StopLoss      *float64
	TakeProfit    *float64
	BrokerOrderID string
	Status        string // "placed", "rejected", "dry_run"
	Reason        string
	CreatedAt     time.Time
}

// RejectionRecord is a journal entry for a signal the gate turned down.
type RejectionRecord struct {
	ID          int64
	Pair        string
	Granularity string
	Reason      string
	Trigger     int
	NetStrength float64
	RSI         float64
	CreatedAt   time.Time
}

// StopUpdateRecord is a journal entry for a stop-loss revision on an open trade.
type StopUpdateRecord struct {
	ID        int64
	Pair      string
	TradeID   string
	OldStop   *float64
	NewStop   float64
	Status    string
	CreatedAt time.Time
}
