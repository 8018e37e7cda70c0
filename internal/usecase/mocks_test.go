package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/config"
	"github.com/vitos/ha_trader/internal/domain"
)

type MockBroker struct {
	mu sync.Mutex

	Series      map[string][]domain.Candle // by pair; served for every granularity
	CandleErr   map[string]error
	Positions   map[string]*domain.PositionSnapshot
	OpenTrades  map[string][]domain.OpenTrade
	NAV         float64
	Prices      map[string]*domain.Price
	Instruments []domain.InstrumentMeta
	PlaceErr    error
	StopErr     error
	PanicOn     string

	Orders       []domain.OrderRequest
	StopUpdates  map[string]float64
	CandleCalls  int
	MarginRate   float64
	BeforeCandle func(pair string)
}

func NewMockBroker() *MockBroker {
	return &MockBroker{
		Series:      make(map[string][]domain.Candle),
		CandleErr:   make(map[string]error),
		Positions:   make(map[string]*domain.PositionSnapshot),
		OpenTrades:  make(map[string][]domain.OpenTrade),
		Prices:      make(map[string]*domain.Price),
		StopUpdates: make(map[string]float64),
		NAV:         10000,
	}
}

func (m *MockBroker) GetCandles(ctx context.Context, pair string, granularity domain.Granularity, count int, completedOnly bool) ([]domain.Candle, error) {
	if m.BeforeCandle != nil {
		m.BeforeCandle(pair)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandleCalls++
	if pair == m.PanicOn {
		panic("boom")
	}
	if err := m.CandleErr[pair]; err != nil {
		return nil, err
	}
	series := m.Series[pair]
	out := make([]domain.Candle, len(domain.LastCandles(series, count)))
	copy(out, domain.LastCandles(series, count))
	return out, nil
}

func (m *MockBroker) GetPosition(ctx context.Context, pair string) (*domain.PositionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Positions[pair], nil
}

func (m *MockBroker) GetOpenTrades(ctx context.Context, pair string) ([]domain.OpenTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.OpenTrades[pair], nil
}

func (m *MockBroker) GetAccountNAV(ctx context.Context) (float64, error) {
	return m.NAV, nil
}

func (m *MockBroker) GetPrice(ctx context.Context, pair string) (*domain.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Prices[pair]
	if !ok {
		return nil, fmt.Errorf("no price for %s", pair)
	}
	return p, nil
}

func (m *MockBroker) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlaceErr != nil {
		return "", m.PlaceErr
	}
	m.Orders = append(m.Orders, req)
	return fmt.Sprintf("%d", len(m.Orders)), nil
}

func (m *MockBroker) UpdateStopLoss(ctx context.Context, tradeID string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StopErr != nil {
		return m.StopErr
	}
	m.StopUpdates[tradeID] = price
	return nil
}

func (m *MockBroker) GetInstruments(ctx context.Context) ([]domain.InstrumentMeta, error) {
	return m.Instruments, nil
}

func (m *MockBroker) SetMarginRate(ctx context.Context, marginRate float64) error {
	m.MarginRate = marginRate
	return nil
}

type MockJournal struct {
	mu          sync.Mutex
	Orders      []*domain.OrderRecord
	Rejections  []*domain.RejectionRecord
	StopUpdates []*domain.StopUpdateRecord
}

func (j *MockJournal) SaveOrder(ctx context.Context, rec *domain.OrderRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Orders = append(j.Orders, rec)
	return nil
}

func (j *MockJournal) ListOrders(ctx context.Context, limit int) ([]*domain.OrderRecord, error) {
	return j.Orders, nil
}

func (j *MockJournal) SaveRejection(ctx context.Context, rec *domain.RejectionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Rejections = append(j.Rejections, rec)
	return nil
}

func (j *MockJournal) ListRejections(ctx context.Context, limit int) ([]*domain.RejectionRecord, error) {
	return j.Rejections, nil
}

func (j *MockJournal) SaveStopUpdate(ctx context.Context, rec *domain.StopUpdateRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.StopUpdates = append(j.StopUpdates, rec)
	return nil
}

func (j *MockJournal) ListStopUpdates(ctx context.Context, limit int) ([]*domain.StopUpdateRecord, error) {
	return j.StopUpdates, nil
}

type MockSink struct {
	mu        sync.Mutex
	Decisions []domain.TradeDecision
}

func (s *MockSink) Publish(d domain.TradeDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Decisions = append(s.Decisions, d)
}

var fixtureStart = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

const fixtureHalfSpread = 0.00005

// candleAt builds a M30 candle with a fixed bid/ask spread around mid.
func candleAt(i int, o, h, l, c float64) domain.Candle {
	side := func(shift float64) domain.OHLC {
		return domain.OHLC{Open: o + shift, High: h + shift, Low: l + shift, Close: c + shift}
	}
	return domain.Candle{
		Time:     fixtureStart.Add(time.Duration(i) * 30 * time.Minute),
		Volume:   100,
		Mid:      domain.OHLC{Open: o, High: h, Low: l, Close: c},
		Bid:      side(-fixtureHalfSpread),
		Ask:      side(fixtureHalfSpread),
		Complete: true,
	}
}

// uptrendCandles is a rising zigzag (+0.0020 / -0.0015) of 400 bars followed by
// tail steps. Tail up-bars have no lower wick.
func uptrendCandles(tail ...float64) []domain.Candle {
	const wick = 0.0002
	var out []domain.Candle
	p := 1.1
	for i := 0; i < 400; i++ {
		step := 0.0020
		if i%2 == 1 {
			step = -0.0015
		}
		o, c := p, p+step
		out = append(out, candleAt(i, o, math.Max(o, c)+wick, math.Min(o, c)-wick, c))
		p = c
	}
	for j, step := range tail {
		o, c := p, p+step
		lower := wick
		if step > 0 {
			lower = 0
		}
		out = append(out, candleAt(400+j, o, math.Max(o, c)+wick, math.Min(o, c)-lower, c))
		p = c
	}
	return out
}

// reversalCandles ends with a fresh bullish Heiken-Ashi bar opened at its low.
func reversalCandles() []domain.Candle {
	return uptrendCandles(-0.0010, -0.0010, -0.0010, 0.0015, 0.0020)
}

var eurUSD = domain.InstrumentMeta{
	Name:                 "EUR_USD",
	Type:                 "CURRENCY",
	DisplayName:          "EUR/USD",
	PipLocationPrecision: -4,
	DisplayPrecision:     5,
	TradeUnitsPrecision:  0,
	MarginRate:           0.2,
}

func testConfig(pairs ...config.PairConfig) *config.Config {
	cfg := &config.Config{Pairs: pairs}
	zero := 0.0
	cfg.Trading.VolTarget = &zero
	cfg.ApplyDefaults()
	return cfg
}

type traderFixture struct {
	broker  *MockBroker
	journal *MockJournal
	sink    *MockSink
	trader  *TraderService
	cfg     *config.Config
}

func newTraderFixture(candles []domain.Candle, pairs ...config.PairConfig) *traderFixture {
	if len(pairs) == 0 {
		pairs = []config.PairConfig{{Pair: "EUR_USD"}}
	}
	cfg := testConfig(pairs...)
	broker := NewMockBroker()
	broker.Instruments = []domain.InstrumentMeta{eurUSD}
	for _, p := range cfg.Pairs {
		broker.Series[p.Pair] = candles
	}
	last := candles[len(candles)-1].Mid.Close
	broker.Prices["EUR_USD"] = &domain.Price{Instrument: "EUR_USD", Bid: last - fixtureHalfSpread, Ask: last + fixtureHalfSpread}
	broker.Prices["GBP_USD"] = &domain.Price{Instrument: "GBP_USD", Bid: 1.25, Ask: 1.2502}

	logger := zap.NewNop()
	journal := &MockJournal{}
	sink := &MockSink{}
	market := NewMarketService(broker, cfg.Broker.HomeCurrency, logger)
	if err := market.LoadInstruments(context.Background(), cfg.PairNames()); err != nil {
		panic(err)
	}
	executor := NewTradeExecutor(broker, journal, cfg.Trading.DryRun, logger)
	return &traderFixture{
		broker:  broker,
		journal: journal,
		sink:    sink,
		trader:  NewTraderService(cfg, broker, market, executor, sink, logger),
		cfg:     cfg,
	}
}
