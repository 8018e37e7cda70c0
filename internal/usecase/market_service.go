package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/domain"
)

// MarketService is the read side of the broker: candles, quotes, instrument facts and
// currency conversion.
type MarketService struct {
	broker       domain.Broker
	homeCurrency string
	logger       *zap.Logger

	mu          sync.RWMutex
	instruments map[string]domain.InstrumentMeta
}

func NewMarketService(broker domain.Broker, homeCurrency string, logger *zap.Logger) *MarketService {
	return &MarketService{
		broker:       broker,
		homeCurrency: homeCurrency,
		logger:       logger,
		instruments:  make(map[string]domain.InstrumentMeta),
	}
}

// LoadInstruments caches broker metadata for pairs. Pairs the broker does not describe
// are logged and left out; they fail later with ErrInstrumentMissing.
func (s *MarketService) LoadInstruments(ctx context.Context, pairs []string) error {
	list, err := s.broker.GetInstruments(ctx)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}
	byName := make(map[string]domain.InstrumentMeta, len(list))
	for _, inst := range list {
		byName[inst.Name] = inst
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		inst, ok := byName[p]
		if !ok {
			s.logger.Warn("Instrument not offered by broker", zap.String("pair", p))
			continue
		}
		s.instruments[p] = inst
	}
	return nil
}

func (s *MarketService) Instrument(pair string) (domain.InstrumentMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instruments[pair]
	if !ok {
		return domain.InstrumentMeta{}, fmt.Errorf("%s: %w", pair, domain.ErrInstrumentMissing)
	}
	return inst, nil
}

// Candles fetches count completed candles. An empty answer is ErrNoData.
func (s *MarketService) Candles(ctx context.Context, pair string, granularity domain.Granularity, count int) ([]domain.Candle, error) {
	candles, err := s.broker.GetCandles(ctx, pair, granularity, count, true)
	if err != nil {
		return nil, fmt.Errorf("%s %s candles: %w: %w", pair, granularity, domain.ErrNoData, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s %s candles: %w", pair, granularity, domain.ErrNoData)
	}
	return candles, nil
}

// ExchangeRate converts the home currency into the pair's quote currency using the bid
// of HOME_QUOTE. It is 1 when the quote is the home currency or the rate is unavailable.
func (s *MarketService) ExchangeRate(ctx context.Context, pair string) float64 {
	_, quote, ok := strings.Cut(pair, "_")
	if !ok || quote == s.homeCurrency {
		return 1
	}
	conv := s.homeCurrency + "_" + quote
	price, err := s.broker.GetPrice(ctx, conv)
	if err != nil || price == nil || price.Bid <= 0 {
		s.logger.Warn("Exchange rate unavailable, using 1", zap.String("pair", pair), zap.String("conversion", conv), zap.Error(err))
		return 1
	}
	return price.Bid
}

// SpreadThreshold is the median closing spread of the candles, rounded to 5 decimals.
func SpreadThreshold(candles []domain.Candle) float64 {
	spreads := domain.Spreads(candles)
	if len(spreads) == 0 {
		return 0
	}
	slices.Sort(spreads)
	mid := len(spreads) / 2
	median := spreads[mid]
	if len(spreads)%2 == 0 {
		median = (spreads[mid-1] + spreads[mid]) / 2
	}
	return RoundTo(median, 5)
}
