package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/domain"
)

func TestExchangeRate(t *testing.T) {
	broker := NewMockBroker()
	broker.Prices["GBP_USD"] = &domain.Price{Bid: 1.27, Ask: 1.2702}
	svc := NewMarketService(broker, "GBP", zap.NewNop())
	ctx := context.Background()

	assert.Equal(t, 1.27, svc.ExchangeRate(ctx, "EUR_USD"))
	assert.Equal(t, 1.0, svc.ExchangeRate(ctx, "EUR_GBP"))
	// no GBP_JPY quote available
	assert.Equal(t, 1.0, svc.ExchangeRate(ctx, "USD_JPY"))
	assert.Equal(t, 1.0, svc.ExchangeRate(ctx, "XAUUSD"))
}

func TestSpreadThreshold(t *testing.T) {
	var candles []domain.Candle
	for i, spread := range []float64{0.0001, 0.0003, 0.0002, 0.0005} {
		c := candleAt(i, 1, 1, 1, 1)
		c.Bid.Close = 1
		c.Ask.Close = 1 + spread
		candles = append(candles, c)
	}
	assert.Equal(t, 0.00025, SpreadThreshold(candles))
	assert.Equal(t, 0.0002, SpreadThreshold(candles[:3]))

	// candles without bid/ask are ignored
	assert.Equal(t, 0.0, SpreadThreshold([]domain.Candle{{Mid: domain.OHLC{Close: 1}}}))
}

func TestLoadInstruments(t *testing.T) {
	broker := NewMockBroker()
	broker.Instruments = []domain.InstrumentMeta{eurUSD}
	svc := NewMarketService(broker, "GBP", zap.NewNop())
	require.NoError(t, svc.LoadInstruments(context.Background(), []string{"EUR_USD", "USD_CHF"}))

	inst, err := svc.Instrument("EUR_USD")
	require.NoError(t, err)
	assert.Equal(t, 0.0001, inst.PipLocation())

	_, err = svc.Instrument("USD_CHF")
	assert.ErrorIs(t, err, domain.ErrInstrumentMissing)
}

func TestCandlesEmptyIsNoData(t *testing.T) {
	svc := NewMarketService(NewMockBroker(), "GBP", zap.NewNop())
	_, err := svc.Candles(context.Background(), "EUR_USD", domain.M30, 10)
	assert.ErrorIs(t, err, domain.ErrNoData)
}
