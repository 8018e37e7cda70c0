package domain

import "context"

// Broker defines the interface for interacting with the trading venue.
type Broker interface {
	GetCandles(ctx context.Context, pair string, granularity Granularity, count int, completedOnly bool) ([]Candle, error)
	// GetPosition returns nil when the account holds no position in pair.
	GetPosition(ctx context.Context, pair string) (*PositionSnapshot, error)
	GetOpenTrades(ctx context.Context, pair string) ([]OpenTrade, error)
	GetAccountNAV(ctx context.Context) (float64, error)
	GetPrice(ctx context.Context, pair string) (*Price, error)
	// PlaceOrder returns the broker's order id.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	UpdateStopLoss(ctx context.Context, tradeID string, price float64) error

	GetInstruments(ctx context.Context) ([]InstrumentMeta, error)
	SetMarginRate(ctx context.Context, marginRate float64) error
}

// JournalRepository stores an append-only audit trail. The engine never reads it back.
type JournalRepository interface {
	SaveOrder(ctx context.Context, rec *OrderRecord) error
	ListOrders(ctx context.Context, limit int) ([]*OrderRecord, error)

	SaveRejection(ctx context.Context, rec *RejectionRecord) error
	ListRejections(ctx context.Context, limit int) ([]*RejectionRecord, error)

	SaveStopUpdate(ctx context.Context, rec *StopUpdateRecord) error
	ListStopUpdates(ctx context.Context, limit int) ([]*StopUpdateRecord, error)
}

// DecisionSink receives every decision as it is made.
type DecisionSink interface {
	Publish(decision TradeDecision)
}
