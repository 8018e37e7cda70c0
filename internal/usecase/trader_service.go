package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitos/ha_trader/internal/config"
	"github.com/vitos/ha_trader/internal/domain"
	"github.com/vitos/ha_trader/internal/indicators"
)

// Result is the outcome of one pair's task within a tick.
type Result struct {
	Pair     string
	Decision *domain.TradeDecision
	Err      error
}

// TraderService runs the per-pair decision pipeline.
type TraderService struct {
	cfg      *config.Config
	broker   domain.Broker
	market   *MarketService
	executor *TradeExecutor
	sizer    *PositionSizer
	stops    *StopLossCalculator
	gate     *TradeGate
	sink     domain.DecisionSink
	logger   *zap.Logger
	trades   *zap.Logger
	rejected *zap.Logger

	mu   sync.RWMutex
	last map[string]domain.TradeDecision

	timeNow func() time.Time
}

func NewTraderService(cfg *config.Config, broker domain.Broker, market *MarketService, executor *TradeExecutor, sink domain.DecisionSink, logger *zap.Logger) *TraderService {
	t := cfg.Trading
	return &TraderService{
		cfg:      cfg,
		broker:   broker,
		market:   market,
		executor: executor,
		sizer: NewPositionSizer(SizerConfig{
			VolTarget:        t.VolatilityTarget(),
			StdLookback:      t.StdLookback,
			MaxLeverage:      t.MaxLeverage,
			MaxTradeFraction: t.MaxTradeFraction,
			MinQtyFraction:   t.MinQtyFraction,
		}),
		stops: NewStopLossCalculator(t.DonchianWindow, t.TPMultiple),
		gate: NewTradeGate(GateConfig{
			RSIOverbought:    t.RSIOverbought,
			RSIOversold:      t.RSIOversold,
			ATRRiskFilter:    t.ATRRiskFilter,
			MaxEntryStrength: t.MaxEntryStrength,
		}),
		sink:     sink,
		logger:   logger,
		trades:   logger.Named("trades"),
		rejected: logger.Named("rejected"),
		last:     make(map[string]domain.TradeDecision),
		timeNow:  time.Now,
	}
}

// ProcessPairs runs every pair on a bounded pool and waits for all of them. A failing or
// panicking pair never affects the others.
func (s *TraderService) ProcessPairs(ctx context.Context, pairs []string) []Result {
	results := make([]Result, len(pairs))
	var g errgroup.Group
	g.SetLimit(s.cfg.Polling.Workers)
	for i, pair := range pairs {
		g.Go(func() error {
			results[i] = s.safeProcess(ctx, pair)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *TraderService) safeProcess(ctx context.Context, pair string) (res Result) {
	res.Pair = pair
	defer func() {
		if r := recover(); r != nil {
			res.Decision = nil
			res.Err = fmt.Errorf("%s: panic: %v", pair, r)
			s.logger.Error("Panic while processing pair",
				zap.String("pair", pair),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	res.Decision, res.Err = s.ProcessPair(ctx, pair)
	if res.Err != nil {
		s.logger.Error("Error processing pair", zap.String("pair", pair), zap.Error(res.Err))
	}
	return res
}

// tick holds everything the pipeline computed for one pair.
type tick struct {
	pc       config.PairConfig
	inst     domain.InstrumentMeta
	log      *zap.Logger
	candles  []domain.Candle
	current  float64
	rsi      float64
	atr      float64
	net      float64
	qty      Quantities
	price    *domain.Price
	spreadOK bool
	signal   ReversalSignal
}

// ProcessPair fetches fresh data for pair, decides and submits at most one order, and
// revises stops of open trades. Every call starts from scratch.
func (s *TraderService) ProcessPair(ctx context.Context, pair string) (*domain.TradeDecision, error) {
	tk, err := s.prepare(ctx, pair)
	if err != nil {
		return nil, err
	}

	d := &domain.TradeDecision{
		Pair:         pair,
		Granularity:  tk.pc.Granularity.String(),
		CandleTime:   tk.candles[len(tk.candles)-1].Time,
		Action:       domain.ActionNone,
		Trigger:      tk.signal.Trigger,
		Streak:       tk.signal.Streak,
		NetStrength:  tk.net,
		RSI:          finite(tk.rsi),
		CurrentUnits: tk.current,
	}
	d.HigherStrength = s.higherStrength(ctx, tk)

	if tk.qty.SpareQty != 0 {
		if err := s.enter(ctx, tk, d); err != nil {
			return nil, err
		}
	}
	if tk.qty.ReduceQty != 0 && indicators.Sign(float64(tk.signal.Streak)) != indicators.Sign(tk.current) {
		if err := s.reduce(ctx, tk, d); err != nil {
			return nil, err
		}
	}
	if tk.current != 0 {
		s.reviseStops(ctx, tk)
	}

	d.DecidedAt = s.timeNow()
	s.publish(*d)
	return d, nil
}

func (s *TraderService) prepare(ctx context.Context, pair string) (*tick, error) {
	pc, err := s.cfg.Pair(pair)
	if err != nil {
		return nil, err
	}
	inst, err := s.market.Instrument(pair)
	if err != nil {
		return nil, err
	}
	t := s.cfg.Trading
	tk := &tick{
		pc:   pc,
		inst: inst,
		log:  s.logger.With(zap.String("pair", pair), zap.String("granularity", pc.Granularity.String())),
	}

	nav, err := s.broker.GetAccountNAV(ctx)
	if err != nil {
		return nil, fmt.Errorf("account nav: %w: %w", domain.ErrNoData, err)
	}
	pos, err := s.broker.GetPosition(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("%s position: %w: %w", pair, domain.ErrNoData, err)
	}
	if pos != nil {
		tk.current = pos.Units
	}
	fx := s.market.ExchangeRate(ctx, pair)

	tk.candles, err = s.market.Candles(ctx, pair, pc.Granularity, t.CandleCount)
	if err != nil {
		return nil, err
	}
	closes := domain.MidCloses(tk.candles)
	lastClose := closes[len(closes)-1]
	tk.rsi = indicators.Last(indicators.RSI(closes, t.RSIPeriod))
	tk.atr = indicators.Last(indicators.ATR(domain.MidHighs(tk.candles), domain.MidLows(tk.candles), closes, t.ATRPeriod))
	tk.net = RoundTo(indicators.NetStrength(closes, t.TrendOffset), 2)

	daily, err := s.market.Candles(ctx, pair, domain.D, t.DailyCandleCount)
	if err != nil {
		return nil, err
	}
	leverage := s.sizer.LeverageRatio(domain.MidCloses(daily), inst.MarginRate)
	tk.qty = s.sizer.Quantities(nav, pc.Weight, leverage, fx, lastClose, tk.net, tk.current)

	tk.price, err = s.broker.GetPrice(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("%s price: %w: %w", pair, domain.ErrNoData, err)
	}
	threshold := SpreadThreshold(tk.candles)
	tk.spreadOK = RoundTo(tk.price.Spread(), 5) <= threshold

	tk.signal = DetectReversal(tk.candles, t.HeikenAshiWindow, t.HeikenAshiStreak)

	tk.log.Info("Signal",
		zap.Time("candle", tk.candles[len(tk.candles)-1].Time),
		zap.Float64("nav", nav),
		zap.Float64("units", tk.current),
		zap.String("side", string(domain.SideOf(tk.current))),
		zap.Float64("fx_rate", fx),
		zap.Float64("rsi", tk.rsi),
		zap.Float64("atr", tk.atr),
		zap.Float64("net_strength", tk.net),
		zap.Float64("leverage", leverage),
		zap.Float64("base_qty", tk.qty.BaseQty),
		zap.Float64("spare_qty", tk.qty.SpareQty),
		zap.Float64("reduce_qty", tk.qty.ReduceQty),
		zap.Float64("spread", tk.price.Spread()),
		zap.Float64("spread_threshold", threshold),
		zap.Int("streak", tk.signal.Streak),
		zap.Int("trigger", tk.signal.Trigger),
	)
	return tk, nil
}

func (s *TraderService) enter(ctx context.Context, tk *tick, d *domain.TradeDecision) error {
	in := GateInput{
		Trigger:      tk.signal.Trigger,
		NetStrength:  tk.net,
		RSI:          tk.rsi,
		ATRMultiple:  math.NaN(),
		CurrentUnits: tk.current,
		LongOnly:     tk.pc.LongOnly,
		ShortOnly:    tk.pc.ShortOnly,
	}
	var levels StopLevels
	if tk.signal.Trigger != 0 {
		var err error
		levels, err = s.stops.Calculate(tk.signal.Trigger, tk.candles, tk.signal.Bars, tk.inst, tk.atr)
		if err != nil {
			tk.log.Warn("Stop loss unavailable", zap.Error(err))
		} else {
			in.ATRMultiple = levels.ATRMultiple
			d.ATRMultiple = finite(levels.ATRMultiple)
		}
	}

	verdict := s.gate.Evaluate(in)
	if !verdict.Approved {
		d.RejectionReason = verdict.Reason
		if verdict.Reason != ReasonNoTrigger {
			s.rejected.Info("Trade rejected",
				zap.String("pair", d.Pair),
				zap.String("reason", verdict.Reason),
				zap.String("detail", verdict.Detail),
			)
			s.executor.RecordRejection(ctx, &domain.RejectionRecord{
				Pair:        d.Pair,
				Granularity: d.Granularity,
				Reason:      verdict.Reason,
				Trigger:     in.Trigger,
				NetStrength: in.NetStrength,
				RSI:         finite(in.RSI),
			})
		}
		return nil
	}

	qty := s.sizer.TradeQty(tk.qty.BaseQty, tk.qty.SpareQty)
	if qty == 0 {
		return nil
	}
	action := domain.ActionAdd
	if tk.current == 0 {
		action = domain.ActionOpen
	}
	useLimit := !tk.spreadOK || math.Abs(tk.qty.SpareQty) < tk.qty.MinQty
	limit := tk.price.Bid
	if qty < 0 {
		limit = tk.price.Ask
	}
	req := domain.OrderRequest{
		Instrument: d.Pair,
		Units:      qty,
		Kind:       domain.OrderMarket,
		StopLoss:   &levels.StopLoss,
		TakeProfit: &levels.TakeProfit,
		Tag:        fmt.Sprintf("strength_%.2f,rsi:%.2f", tk.net, tk.rsi),
	}
	if useLimit {
		req.Kind = domain.OrderLimit
		req.Price = limit
		req.Expiry = tk.pc.Granularity.OrderExpiry()
	}
	return s.submit(ctx, tk, d, action, req)
}

func (s *TraderService) reduce(ctx context.Context, tk *tick, d *domain.TradeDecision) error {
	qty := tk.qty.ReduceQty
	req := domain.OrderRequest{
		Instrument: d.Pair,
		Units:      qty,
		Kind:       domain.OrderMarket,
		Tag:        fmt.Sprintf("reduce,strength_%.2f", tk.net),
	}
	if !tk.spreadOK || math.Abs(qty) < tk.qty.MinQty {
		req.Kind = domain.OrderLimit
		req.Price = tk.price.Mid()
		req.Expiry = tk.pc.Granularity.OrderExpiry()
	}
	return s.submit(ctx, tk, d, domain.ActionReduce, req)
}

func (s *TraderService) submit(ctx context.Context, tk *tick, d *domain.TradeDecision, action domain.Action, req domain.OrderRequest) error {
	rec, err := s.executor.Submit(ctx, tk.pc.Granularity, action, req, tk.inst)
	if err != nil && !errors.Is(err, domain.ErrOrderRejected) {
		return fmt.Errorf("%s %s order: %w", d.Pair, action, err)
	}
	if rec == nil {
		tk.log.Info("Order suppressed, zero units after rounding", zap.Float64("units", req.Units))
		return nil
	}

	d.Action = action
	d.Quantity = rec.Units
	d.OrderKind = rec.Kind
	d.LimitPrice = rec.Price
	d.StopLoss = rec.StopLoss
	d.TakeProfit = rec.TakeProfit
	d.BrokerOrderID = rec.BrokerOrderID
	if rec.Status == StatusRejected {
		d.RejectionReason = rec.Reason
	}

	s.trades.Info("Trade",
		zap.String("pair", d.Pair),
		zap.String("action", string(action)),
		zap.Float64("units", rec.Units),
		zap.String("kind", string(rec.Kind)),
		zap.Float64("limit_price", rec.Price),
		zap.Float64("net_strength", tk.net),
		zap.Float64("rsi", tk.rsi),
		zap.Float64("min_qty", tk.qty.MinQty),
		zap.Float64("units_before", tk.current),
		zap.String("status", rec.Status),
	)
	return nil
}

// reviseStops moves the stop of every open trade running with the current Heiken-Ashi
// streak to the latest swing, only ever tightening it.
func (s *TraderService) reviseStops(ctx context.Context, tk *tick) {
	dir := indicators.Sign(float64(tk.signal.Streak))
	if dir == 0 {
		return
	}
	trades, err := s.broker.GetOpenTrades(ctx, tk.pc.Pair)
	if err != nil {
		tk.log.Warn("Open trades unavailable", zap.Error(err))
		return
	}
	swing, ok := indicators.Swing(tk.signal.Bars, dir)
	if !ok {
		return
	}
	spread := tk.candles[len(tk.candles)-1].Spread()
	stop := RoundPrice(ProtectiveStop(swing, dir, spread), tk.inst)

	for _, tr := range trades {
		if indicators.Sign(tr.CurrentUnits) != dir {
			continue
		}
		if !tightens(dir, stop, tr.StopLossPrice, tk.price) {
			continue
		}
		if err := s.executor.UpdateStop(ctx, tr, stop, tk.inst); err != nil {
			tk.log.Warn("Stop update failed", zap.String("trade_id", tr.ID), zap.Error(err))
		}
	}
}

// tightens reports whether stop is closer to the market than current while still on the
// protective side of the live quote.
func tightens(dir int, stop float64, current *float64, price *domain.Price) bool {
	if dir > 0 {
		if stop >= price.Bid {
			return false
		}
		return current == nil || stop > *current
	}
	if stop <= price.Ask {
		return false
	}
	return current == nil || stop < *current
}

func (s *TraderService) higherStrength(ctx context.Context, tk *tick) float64 {
	higher := tk.pc.Granularity.Higher()
	candles, err := s.market.Candles(ctx, tk.pc.Pair, higher, s.cfg.Trading.CandleCount)
	if err != nil {
		tk.log.Warn("Higher timeframe candles unavailable", zap.String("higher", higher.String()), zap.Error(err))
		return 0
	}
	v := RoundTo(indicators.NetStrength(domain.MidCloses(candles), s.cfg.Trading.TrendOffset), 2)
	tk.log.Info("Higher timeframe strength", zap.String("higher", higher.String()), zap.Float64("net_strength", v))
	return v
}

func (s *TraderService) publish(d domain.TradeDecision) {
	s.mu.Lock()
	s.last[d.Pair] = d
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.Publish(d)
	}
}

// LastDecisions returns the latest decision per pair, ordered by pair.
func (s *TraderService) LastDecisions() []domain.TradeDecision {
	s.mu.RLock()
	out := make([]domain.TradeDecision, 0, len(s.last))
	for _, d := range s.last {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// JSON cannot carry NaN or Inf.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
