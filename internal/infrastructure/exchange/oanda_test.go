package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Header http.Header
	Body   map[string]interface{}
}

// newTestAdapter serves each request from routes keyed by "METHOD path".
func newTestAdapter(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*OandaAdapter, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Query: map[string]string{}}
		for k := range r.URL.Query() {
			rec.Query[k] = r.URL.Query().Get(k)
		}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.Body)
		}
		mu.Lock()
		seen = append(seen, rec)
		mu.Unlock()

		h, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errorMessage":"route not found"}`))
			return
		}
		h(w)
	}))
	t.Cleanup(srv.Close)

	a := NewOandaAdapter("secret", "001-1", srv.URL+"/v3", time.Second, zap.NewNop())
	a.timeNow = func() time.Time { return time.Date(2024, 3, 1, 10, 17, 42, 0, time.UTC) }
	return a, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), seen...)
	}
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestOandaAdapter_GetCandles(t *testing.T) {
	body := `{"candles":[
		{"time":"2024-03-01T08:00:00.000000000Z","volume":120,"complete":true,
		 "mid":{"o":"1.08000","h":"1.08100","l":"1.07950","c":"1.08050"},
		 "bid":{"o":"1.07995","h":"1.08095","l":"1.07945","c":"1.08045"},
		 "ask":{"o":"1.08005","h":"1.08105","l":"1.07955","c":"1.08055"}},
		{"time":"2024-03-01T09:00:00.000000000Z","volume":40,"complete":false,
		 "mid":{"o":"1.08050","h":"1.08060","l":"1.08020","c":"1.08030"}}
	]}`
	a, seen := newTestAdapter(t, map[string]func(http.ResponseWriter){
		"GET /v3/instruments/EUR_USD/candles": reply(200, body),
	})

	candles, err := a.GetCandles(context.Background(), "EUR_USD", domain.H1, 2, true)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	c := candles[0]
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), c.Time)
	assert.Equal(t, 1.0805, c.Mid.Close)
	assert.Equal(t, 1.08095, c.Bid.High)
	assert.InDelta(t, 0.0001, c.Spread(), 1e-9)
	assert.True(t, c.Complete)

	req := seen()[0]
	assert.Equal(t, "H1", req.Query["granularity"])
	assert.Equal(t, "MBA", req.Query["price"])
	assert.Equal(t, "2", req.Query["count"])
	assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
	assert.Equal(t, "RFC3339", req.Header.Get("Accept-Datetime-Format"))

	all, err := a.GetCandles(context.Background(), "EUR_USD", domain.H1, 2, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Zero(t, all[1].Bid.Close)
}

func TestOandaAdapter_GetCandles_Error(t *testing.T) {
	a, _ := newTestAdapter(t, map[string]func(http.ResponseWriter){
		"GET /v3/instruments/EUR_USD/candles": reply(400, `{"errorMessage":"Invalid value specified for 'granularity'"}`),
	})
	_, err := a.GetCandles(context.Background(), "EUR_USD", domain.H1, 10, true)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
	assert.Contains(t, err.Error(), "granularity")
}

func TestOandaAdapter_GetPosition(t *testing.T) {
	a, _ := newTestAdapter(t, map[string]func(http.ResponseWriter){
		"GET /v3/accounts/001-1/positions/EUR_USD": reply(200, `{"position":{"instrument":"EUR_USD","unrealizedPL":"-3.5","marginUsed":"40",
			"long":{"units":"100"},"short":{"units":"-300"}}}`),
		"GET /v3/accounts/001-1/positions/USD_JPY": reply(404, `{"errorCode":"NO_SUCH_POSITION","errorMessage":"no position"}`),
		"GET /v3/accounts/001-1/positions/GBP_USD": reply(200, `{"position":{"long":{"units":"0"},"short":{"units":"0"}}}`),
		"GET /v3/accounts/001-1/positions/AUD_USD": reply(500, `{"errorMessage":"boom"}`),
	})
	ctx := context.Background()

	pos, err := a.GetPosition(ctx, "EUR_USD")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, -200.0, pos.Units)
	assert.Equal(t, -3.5, pos.UnrealizedPL)

	pos, err = a.GetPosition(ctx, "USD_JPY")
	require.NoError(t, err)
	assert.Nil(t, pos)

	pos, err = a.GetPosition(ctx, "GBP_USD")
	require.NoError(t, err)
	assert.Nil(t, pos)

	_, err = a.GetPosition(ctx, "AUD_USD")
	assert.Error(t, err)
}

func TestOandaAdapter_GetOpenTrades(t *testing.T) {
	a, seen := newTestAdapter(t, map[string]func(http.ResponseWriter){
		"GET /v3/accounts/001-1/trades": reply(200, `{"trades":[
			{"id":"11","instrument":"EUR_USD","state":"OPEN","price":"1.0800","currentUnits":"500",
			 "openTime":"2024-03-01T08:00:00Z","stopLossOrder":{"price":"1.0750"}},
			{"id":"12","instrument":"EUR_USD","state":"OPEN","price":"1.0810","currentUnits":"250",
			 "trailingStopLossOrder":{"distance":"0.0030"}}
		]}`),
	})

	trades, err := a.GetOpenTrades(context.Background(), "EUR_USD")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "11", trades[0].ID)
	assert.Equal(t, 500.0, trades[0].CurrentUnits)
	require.NotNil(t, trades[0].StopLossPrice)
	assert.Equal(t, 1.075, *trades[0].StopLossPrice)
	assert.Nil(t, trades[1].StopLossPrice)
	require.NotNil(t, trades[1].TrailingStopDistance)
	assert.Equal(t, 0.003, *trades[1].TrailingStopDistance)

	assert.Equal(t, "EUR_USD", seen()[0].Query["instrument"])
	assert.Equal(t, "OPEN", seen()[0].Query["state"])
}

func TestOandaAdapter_AccountAndPrice(t *testing.T) {
	a, seen := newTestAdapter(t, map[string]func(http.ResponseWriter){
		"GET /v3/accounts/001-1/summary": reply(200, `{"account":{"NAV":"10234.56"}}`),
		"GET /v3/accounts/001-1/pricing": reply(200, `{"prices":[{"instrument":"GBP_USD","time":"2024-03-01T10:00:00Z",
			"bids":[{"price":"1.26310"}],"asks":[{"price":"1.26325"}]}],"homeConversions":[]}`),
	})
	ctx := context.Background()

	nav, err := a.GetAccountNAV(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10234.56, nav)

	price, err := a.GetPrice(ctx, "GBP_USD")
	require.NoError(t, err)
	assert.Equal(t, 1.2631, price.Bid)
	assert.Equal(t, 1.26325, price.Ask)
	assert.Equal(t, "true", seen()[1].Query["includeHomeConversions"])

	_, err = a.GetPrice(ctx, "EUR_USD")
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestOandaAdapter_PlaceOrder(t *testing.T) {
	sl, tp := 1.0750, 1.0900

	t.Run("market order returns fill id", func(t *testing.T) {
		a, seen := newTestAdapter(t, map[string]func(http.ResponseWriter){
			"POST /v3/accounts/001-1/orders": reply(201, `{"orderCreateTransaction":{"id":"20"},"orderFillTransaction":{"id":"21"}}`),
		})
		id, err := a.PlaceOrder(context.Background(), domain.OrderRequest{
			ClientID: "cid", Instrument: "EUR_USD", Units: -2603, Kind: domain.OrderMarket,
			StopLoss: &sl, TakeProfit: &tp, Tag: "open",
		})
		require.NoError(t, err)
		assert.Equal(t, "21", id)

		order := seen()[0].Body["order"].(map[string]interface{})
		assert.Equal(t, "MARKET", order["type"])
		assert.Equal(t, "-2603", order["units"])
		assert.Equal(t, map[string]interface{}{"price": "1.075"}, order["stopLossOnFill"])
		assert.Equal(t, map[string]interface{}{"price": "1.09"}, order["takeProfitOnFill"])
		assert.Equal(t, map[string]interface{}{"id": "cid", "tag": "open"}, order["clientExtensions"])
		assert.NotContains(t, order, "timeInForce")
	})

	t.Run("limit order is good till date", func(t *testing.T) {
		a, seen := newTestAdapter(t, map[string]func(http.ResponseWriter){
			"POST /v3/accounts/001-1/orders": reply(201, `{"orderCreateTransaction":{"id":"30"}}`),
		})
		id, err := a.PlaceOrder(context.Background(), domain.OrderRequest{
			Instrument: "EUR_USD", Units: 100, Kind: domain.OrderLimit, Price: 1.0803, Expiry: 30 * time.Minute,
		})
		require.NoError(t, err)
		assert.Equal(t, "30", id)

		order := seen()[0].Body["order"].(map[string]interface{})
		assert.Equal(t, "LIMIT", order["type"])
		assert.Equal(t, "1.0803", order["price"])
		assert.Equal(t, "GTD", order["timeInForce"])
		assert.Equal(t, "2024-03-01T10:47:00Z", order["gtdTime"])
		assert.NotContains(t, order, "stopLossOnFill")
	})

	t.Run("reject transaction", func(t *testing.T) {
		a, _ := newTestAdapter(t, map[string]func(http.ResponseWriter){
			"POST /v3/accounts/001-1/orders": reply(400, `{"orderRejectTransaction":{"rejectReason":"STOP_LOSS_ON_FILL_LOSS"},
				"errorCode":"STOP_LOSS_ON_FILL_LOSS","errorMessage":"The Stop Loss would cause an immediate loss"}`),
		})
		_, err := a.PlaceOrder(context.Background(), domain.OrderRequest{Instrument: "EUR_USD", Units: 1, Kind: domain.OrderMarket})
		require.ErrorIs(t, err, domain.ErrOrderRejected)
		var rejected *domain.OrderRejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "STOP_LOSS_ON_FILL_LOSS", rejected.Code)
		assert.Equal(t, "STOP_LOSS_ON_FILL_LOSS", rejected.Reason)
	})

	t.Run("market order cancelled", func(t *testing.T) {
		a, _ := newTestAdapter(t, map[string]func(http.ResponseWriter){
			"POST /v3/accounts/001-1/orders": reply(201, `{"orderCreateTransaction":{"id":"40"},"orderCancelTransaction":{"reason":"INSUFFICIENT_MARGIN"}}`),
		})
		_, err := a.PlaceOrder(context.Background(), domain.OrderRequest{Instrument: "EUR_USD", Units: 1, Kind: domain.OrderMarket})
		require.ErrorIs(t, err, domain.ErrOrderRejected)
		assert.Contains(t, err.Error(), "INSUFFICIENT_MARGIN")
	})

	t.Run("server error is not a rejection", func(t *testing.T) {
		a, _ := newTestAdapter(t, map[string]func(http.ResponseWriter){
			"POST /v3/accounts/001-1/orders": reply(503, `{"errorMessage":"unavailable"}`),
		})
		_, err := a.PlaceOrder(context.Background(), domain.OrderRequest{Instrument: "EUR_USD", Units: 1, Kind: domain.OrderMarket})
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrOrderRejected)
	})
}

func TestOandaAdapter_UpdateStopLossAndMargin(t *testing.T) {
	a, seen := newTestAdapter(t, map[string]func(http.ResponseWriter){
		"PUT /v3/accounts/001-1/trades/11/orders": reply(200, `{}`),
		"PATCH /v3/accounts/001-1/configuration":  reply(200, `{}`),
	})
	ctx := context.Background()

	require.NoError(t, a.UpdateStopLoss(ctx, "11", 1.0967))
	assert.Equal(t, map[string]interface{}{"price": "1.0967"}, seen()[0].Body["stopLoss"])

	require.NoError(t, a.SetMarginRate(ctx, 0.2))
	assert.Equal(t, "0.2", seen()[1].Body["marginRate"])

	assert.Error(t, a.UpdateStopLoss(ctx, "99", 1.1))
}

func TestOandaAdapter_GetInstruments(t *testing.T) {
	a, _ := newTestAdapter(t, map[string]func(http.ResponseWriter){
		"GET /v3/accounts/001-1/instruments": reply(200, `{"instruments":[
			{"name":"EUR_USD","type":"CURRENCY","displayName":"EUR/USD","pipLocation":-4,"displayPrecision":5,
			 "tradeUnitsPrecision":0,"marginRate":"0.0333","minimumTrailingStopDistance":"0.00050",
			 "maximumTrailingStopDistance":"1.00000"},
			{"name":"BROKEN","type":"CURRENCY","displayName":"BROKEN","pipLocation":-4}
		]}`),
	})

	insts, err := a.GetInstruments(context.Background())
	require.NoError(t, err)
	require.Len(t, insts, 1)
	eur := insts[0]
	assert.Equal(t, "EUR_USD", eur.Name)
	assert.Equal(t, -4, eur.PipLocationPrecision)
	assert.Equal(t, 0.0333, eur.MarginRate)
	assert.Equal(t, 0.0005, eur.MinimumTrailingStopDistance)
	assert.InDelta(t, 0.0001, eur.PipLocation(), 1e-12)
}

func TestParseInstrument_MissingKey(t *testing.T) {
	_, err := parseInstrument(map[string]json.RawMessage{"name": json.RawMessage(`"X"`)})
	assert.ErrorIs(t, err, domain.ErrMalformedInstrument)
}
