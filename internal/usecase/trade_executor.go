package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/domain"
)

const (
	StatusPlaced   = "placed"
	StatusRejected = "rejected"
	StatusDryRun   = "dry_run"
)

// TradeExecutor rounds, submits and journals orders and stop revisions.
type TradeExecutor struct {
	broker  domain.Broker
	journal domain.JournalRepository
	logger  *zap.Logger
	dryRun  bool
	timeNow func() time.Time
}

func NewTradeExecutor(broker domain.Broker, journal domain.JournalRepository, dryRun bool, logger *zap.Logger) *TradeExecutor {
	return &TradeExecutor{
		broker:  broker,
		journal: journal,
		logger:  logger,
		dryRun:  dryRun,
		timeNow: time.Now,
	}
}

// Submit floors the units at the instrument's trade-unit precision and rounds every price
// to pip precision before sending. It returns a nil record when rounding leaves nothing
// to trade. A broker refusal is journaled and returned as an *domain.OrderRejectedError.
func (e *TradeExecutor) Submit(ctx context.Context, granularity domain.Granularity, action domain.Action, req domain.OrderRequest, inst domain.InstrumentMeta) (*domain.OrderRecord, error) {
	req.Units = FloorUnits(req.Units, inst.TradeUnitsPrecision)
	if req.Units == 0 {
		return nil, nil
	}
	if req.Kind == domain.OrderLimit {
		req.Price = RoundPrice(req.Price, inst)
	}
	req.StopLoss = roundOptional(req.StopLoss, inst)
	req.TakeProfit = roundOptional(req.TakeProfit, inst)
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}

	rec := &domain.OrderRecord{
		ID:          req.ClientID,
		Pair:        req.Instrument,
		Granularity: granularity.String(),
		Action:      action,
		Kind:        req.Kind,
		Units:       req.Units,
		Price:       req.Price,
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		CreatedAt:   e.timeNow(),
	}

	var err error
	if e.dryRun {
		rec.Status = StatusDryRun
	} else {
		rec.BrokerOrderID, err = e.broker.PlaceOrder(ctx, req)
		switch {
		case err == nil:
			rec.Status = StatusPlaced
		case errors.Is(err, domain.ErrOrderRejected):
			rec.Status = StatusRejected
			rec.Reason = err.Error()
		default:
			return nil, err
		}
	}

	e.logger.Info("Order",
		zap.String("pair", rec.Pair),
		zap.String("action", string(action)),
		zap.String("kind", string(rec.Kind)),
		zap.Float64("units", rec.Units),
		zap.Float64("price", rec.Price),
		zap.Float64p("stop_loss", rec.StopLoss),
		zap.Float64p("take_profit", rec.TakeProfit),
		zap.String("status", rec.Status),
		zap.String("broker_order_id", rec.BrokerOrderID),
		zap.String("tag", req.Tag),
	)
	e.save(ctx, func(ctx context.Context) error { return e.journal.SaveOrder(ctx, rec) })
	return rec, err
}

// UpdateStop moves the stop of an open trade and journals the attempt.
func (e *TradeExecutor) UpdateStop(ctx context.Context, trade domain.OpenTrade, stop float64, inst domain.InstrumentMeta) error {
	stop = RoundPrice(stop, inst)
	rec := &domain.StopUpdateRecord{
		Pair:      trade.Instrument,
		TradeID:   trade.ID,
		OldStop:   trade.StopLossPrice,
		NewStop:   stop,
		CreatedAt: e.timeNow(),
	}

	var err error
	if e.dryRun {
		rec.Status = StatusDryRun
	} else if err = e.broker.UpdateStopLoss(ctx, trade.ID, stop); err != nil {
		rec.Status = StatusRejected
	} else {
		rec.Status = StatusPlaced
	}

	e.logger.Info("Stop update",
		zap.String("pair", trade.Instrument),
		zap.String("trade_id", trade.ID),
		zap.Float64p("old_stop", trade.StopLossPrice),
		zap.Float64("new_stop", stop),
		zap.String("status", rec.Status),
		zap.Error(err),
	)
	e.save(ctx, func(ctx context.Context) error { return e.journal.SaveStopUpdate(ctx, rec) })
	return err
}

// RecordRejection journals a signal the gate turned down.
func (e *TradeExecutor) RecordRejection(ctx context.Context, rec *domain.RejectionRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = e.timeNow()
	}
	e.save(ctx, func(ctx context.Context) error { return e.journal.SaveRejection(ctx, rec) })
}

// Journal failures never stop trading.
func (e *TradeExecutor) save(ctx context.Context, fn func(context.Context) error) {
	if e.journal == nil {
		return
	}
	if err := fn(ctx); err != nil {
		e.logger.Error("Failed to write journal", zap.Error(err))
	}
}

func roundOptional(p *float64, inst domain.InstrumentMeta) *float64 {
	if p == nil {
		return nil
	}
	v := RoundPrice(*p, inst)
	return &v
}
