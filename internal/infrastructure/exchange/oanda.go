package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/domain"
)

const (
	OandaPracticeURL = "https://api-fxpractice.oanda.com/v3"
	OandaLiveURL     = "https://api-fxtrade.oanda.com/v3"
)

// APIError is a non-2xx response from the v20 REST API.
type APIError struct {
	Status  int
	Code    string `json:"errorCode"`
	Message string `json:"errorMessage"`
	Body    string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("API error %d: %s %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

type OandaAdapter struct {
	apiKey    string
	accountID string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
	timeNow   func() time.Time
}

func NewOandaAdapter(apiKey, accountID, baseURL string, timeout time.Duration, logger *zap.Logger) *OandaAdapter {
	if baseURL == "" {
		baseURL = OandaPracticeURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OandaAdapter{
		apiKey:    apiKey,
		accountID: accountID,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		timeNow:   time.Now,
	}
}

// --- REST API ---

func (o *OandaAdapter) sendRequest(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(jsonBody)
	}

	full := o.baseURL + "/" + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Datetime-Format", "RFC3339")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Body: string(respBody)}
		_ = json.Unmarshal(respBody, apiErr)
		return respBody, apiErr
	}

	return respBody, nil
}

func (o *OandaAdapter) accountPath(ep string) string {
	return "accounts/" + o.accountID + "/" + ep
}

type candleJSON struct {
	Time     time.Time `json:"time"`
	Volume   float64   `json:"volume"`
	Complete bool      `json:"complete"`
	Mid      *ohlcJSON `json:"mid"`
	Bid      *ohlcJSON `json:"bid"`
	Ask      *ohlcJSON `json:"ask"`
}

type ohlcJSON struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

func (p *ohlcJSON) parse() (domain.OHLC, error) {
	if p == nil {
		return domain.OHLC{}, nil
	}
	var out domain.OHLC
	var err error
	if out.Open, err = strconv.ParseFloat(p.O, 64); err != nil {
		return out, err
	}
	if out.High, err = strconv.ParseFloat(p.H, 64); err != nil {
		return out, err
	}
	if out.Low, err = strconv.ParseFloat(p.L, 64); err != nil {
		return out, err
	}
	out.Close, err = strconv.ParseFloat(p.C, 64)
	return out, err
}

// GetCandles fetches the latest count candles with mid, bid and ask prices, oldest first.
func (o *OandaAdapter) GetCandles(ctx context.Context, pair string, granularity domain.Granularity, count int, completedOnly bool) ([]domain.Candle, error) {
	query := url.Values{}
	query.Set("granularity", granularity.String())
	query.Set("price", "MBA")
	query.Set("count", strconv.Itoa(count))

	resp, err := o.sendRequest(ctx, http.MethodGet, "instruments/"+pair+"/candles", query, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s %s: %w", pair, granularity, err)
	}

	var result struct {
		Candles []candleJSON `json:"candles"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(result.Candles))
	for _, raw := range result.Candles {
		if completedOnly && !raw.Complete {
			continue
		}
		c := domain.Candle{Time: raw.Time.UTC(), Volume: raw.Volume, Complete: raw.Complete}
		if c.Mid, err = raw.Mid.parse(); err != nil {
			return nil, fmt.Errorf("parse candle %s at %s: %w", pair, raw.Time, err)
		}
		if c.Bid, err = raw.Bid.parse(); err != nil {
			return nil, fmt.Errorf("parse candle %s at %s: %w", pair, raw.Time, err)
		}
		if c.Ask, err = raw.Ask.parse(); err != nil {
			return nil, fmt.Errorf("parse candle %s at %s: %w", pair, raw.Time, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (o *OandaAdapter) GetPosition(ctx context.Context, pair string) (*domain.PositionSnapshot, error) {
	resp, err := o.sendRequest(ctx, http.MethodGet, o.accountPath("positions/"+pair), nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Code == "NO_SUCH_POSITION" || apiErr.Status == http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var result struct {
		Position struct {
			Instrument   string `json:"instrument"`
			UnrealizedPL string `json:"unrealizedPL"`
			MarginUsed   string `json:"marginUsed"`
			Long         struct {
				Units string `json:"units"`
			} `json:"long"`
			Short struct {
				Units string `json:"units"`
			} `json:"short"`
		} `json:"position"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	raw := result.Position
	long := parseOptional(raw.Long.Units)
	short := parseOptional(raw.Short.Units)
	units := long + short
	if units == 0 {
		return nil, nil
	}
	return &domain.PositionSnapshot{
		Instrument:   pair,
		Units:        units,
		UnrealizedPL: parseOptional(raw.UnrealizedPL),
		MarginUsed:   parseOptional(raw.MarginUsed),
	}, nil
}

type tradeJSON struct {
	ID                    string           `json:"id"`
	Instrument            string           `json:"instrument"`
	State                 string           `json:"state"`
	Price                 string           `json:"price"`
	CurrentUnits          string           `json:"currentUnits"`
	UnrealizedPL          string           `json:"unrealizedPL"`
	MarginUsed            string           `json:"marginUsed"`
	OpenTime              time.Time        `json:"openTime"`
	StopLossOrder         *priceDetails    `json:"stopLossOrder"`
	TrailingStopLossOrder *distanceDetails `json:"trailingStopLossOrder"`
}

type distanceDetails struct {
	Distance string `json:"distance"`
}

// GetOpenTrades lists open trades for pair, or for the whole account when pair is empty.
func (o *OandaAdapter) GetOpenTrades(ctx context.Context, pair string) ([]domain.OpenTrade, error) {
	path := o.accountPath("openTrades")
	var query url.Values
	if pair != "" {
		path = o.accountPath("trades")
		query = url.Values{}
		query.Set("instrument", pair)
		query.Set("state", "OPEN")
	}

	resp, err := o.sendRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Trades []tradeJSON `json:"trades"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	trades := make([]domain.OpenTrade, 0, len(result.Trades))
	for _, raw := range result.Trades {
		t := domain.OpenTrade{
			ID:           raw.ID,
			Instrument:   raw.Instrument,
			State:        raw.State,
			EntryPrice:   parseOptional(raw.Price),
			CurrentUnits: parseOptional(raw.CurrentUnits),
			UnrealizedPL: parseOptional(raw.UnrealizedPL),
			MarginUsed:   parseOptional(raw.MarginUsed),
			OpenTime:     raw.OpenTime,
		}
		if raw.StopLossOrder != nil {
			if v, err := strconv.ParseFloat(raw.StopLossOrder.Price, 64); err == nil {
				t.StopLossPrice = &v
			}
		}
		if raw.TrailingStopLossOrder != nil {
			if v, err := strconv.ParseFloat(raw.TrailingStopLossOrder.Distance, 64); err == nil {
				t.TrailingStopDistance = &v
			}
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func (o *OandaAdapter) GetAccountNAV(ctx context.Context) (float64, error) {
	resp, err := o.sendRequest(ctx, http.MethodGet, o.accountPath("summary"), nil, nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		Account struct {
			NAV string `json:"NAV"`
		} `json:"account"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(result.Account.NAV, 64)
}

func (o *OandaAdapter) GetPrice(ctx context.Context, pair string) (*domain.Price, error) {
	query := url.Values{}
	query.Set("instruments", pair)
	query.Set("includeHomeConversions", "true")

	resp, err := o.sendRequest(ctx, http.MethodGet, o.accountPath("pricing"), query, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Prices []struct {
			Instrument string    `json:"instrument"`
			Time       time.Time `json:"time"`
			Bids       []struct {
				Price string `json:"price"`
			} `json:"bids"`
			Asks []struct {
				Price string `json:"price"`
			} `json:"asks"`
		} `json:"prices"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	for _, raw := range result.Prices {
		if raw.Instrument != pair || len(raw.Bids) == 0 || len(raw.Asks) == 0 {
			continue
		}
		bid, err := strconv.ParseFloat(raw.Bids[0].Price, 64)
		if err != nil {
			return nil, err
		}
		ask, err := strconv.ParseFloat(raw.Asks[0].Price, 64)
		if err != nil {
			return nil, err
		}
		return &domain.Price{Instrument: pair, Bid: bid, Ask: ask, Time: raw.Time}, nil
	}
	return nil, fmt.Errorf("price for %s: %w", pair, domain.ErrNoData)
}

type priceDetails struct {
	Price string `json:"price"`
}

type orderJSON struct {
	Type             string            `json:"type"`
	Instrument       string            `json:"instrument"`
	Units            string            `json:"units"`
	Price            string            `json:"price,omitempty"`
	TimeInForce      string            `json:"timeInForce,omitempty"`
	GtdTime          string            `json:"gtdTime,omitempty"`
	StopLossOnFill   *priceDetails     `json:"stopLossOnFill,omitempty"`
	TakeProfitOnFill *priceDetails     `json:"takeProfitOnFill,omitempty"`
	ClientExtensions map[string]string `json:"clientExtensions,omitempty"`
}

// PlaceOrder sends a market or good-till-date limit order. Market orders return the fill
// transaction id, limit orders the create transaction id.
func (o *OandaAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	order := orderJSON{
		Type:       string(req.Kind),
		Instrument: req.Instrument,
		Units:      decimal.NewFromFloat(req.Units).String(),
	}
	if req.Kind == domain.OrderLimit {
		expiry := req.Expiry
		if expiry <= 0 {
			expiry = time.Hour
		}
		order.Price = decimal.NewFromFloat(req.Price).String()
		order.TimeInForce = "GTD"
		order.GtdTime = o.timeNow().UTC().Add(expiry).Truncate(time.Minute).Format(time.RFC3339)
	}
	if req.StopLoss != nil {
		order.StopLossOnFill = &priceDetails{Price: decimal.NewFromFloat(*req.StopLoss).String()}
	}
	if req.TakeProfit != nil {
		order.TakeProfitOnFill = &priceDetails{Price: decimal.NewFromFloat(*req.TakeProfit).String()}
	}
	if req.ClientID != "" || req.Tag != "" {
		order.ClientExtensions = map[string]string{}
		if req.ClientID != "" {
			order.ClientExtensions["id"] = req.ClientID
		}
		if req.Tag != "" {
			order.ClientExtensions["tag"] = req.Tag
		}
	}

	resp, err := o.sendRequest(ctx, http.MethodPost, o.accountPath("orders"), nil, map[string]interface{}{"order": order})

	var result struct {
		OrderCreateTransaction *struct {
			ID string `json:"id"`
		} `json:"orderCreateTransaction"`
		OrderFillTransaction *struct {
			ID string `json:"id"`
		} `json:"orderFillTransaction"`
		OrderCancelTransaction *struct {
			Reason string `json:"reason"`
		} `json:"orderCancelTransaction"`
		OrderRejectTransaction *struct {
			RejectReason string `json:"rejectReason"`
		} `json:"orderRejectTransaction"`
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	if len(resp) > 0 {
		_ = json.Unmarshal(resp, &result)
	}

	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status >= 500 {
			return "", err
		}
		rejected := &domain.OrderRejectedError{Code: result.ErrorCode, Reason: result.ErrorMessage}
		if result.OrderRejectTransaction != nil && result.OrderRejectTransaction.RejectReason != "" {
			rejected.Reason = result.OrderRejectTransaction.RejectReason
		}
		if rejected.Reason == "" {
			rejected.Reason = apiErr.Body
		}
		return "", rejected
	}

	switch req.Kind {
	case domain.OrderMarket:
		if result.OrderFillTransaction != nil {
			return result.OrderFillTransaction.ID, nil
		}
		if result.OrderCancelTransaction != nil {
			return "", &domain.OrderRejectedError{Code: "ORDER_CANCELLED", Reason: result.OrderCancelTransaction.Reason}
		}
	default:
		if result.OrderCreateTransaction != nil {
			return result.OrderCreateTransaction.ID, nil
		}
	}
	return "", &domain.OrderRejectedError{Reason: "no transaction in response: " + string(resp)}
}

// UpdateStopLoss replaces the fixed stop-loss order attached to a trade.
func (o *OandaAdapter) UpdateStopLoss(ctx context.Context, tradeID string, price float64) error {
	payload := map[string]interface{}{
		"stopLoss": priceDetails{Price: decimal.NewFromFloat(price).String()},
	}
	_, err := o.sendRequest(ctx, http.MethodPut, o.accountPath("trades/"+tradeID+"/orders"), nil, payload)
	if err != nil {
		return fmt.Errorf("update stop loss for trade %s: %w", tradeID, err)
	}
	return nil
}

// GetInstruments lists the account's tradable instruments. Entries missing a required key
// are logged and skipped.
func (o *OandaAdapter) GetInstruments(ctx context.Context) ([]domain.InstrumentMeta, error) {
	resp, err := o.sendRequest(ctx, http.MethodGet, o.accountPath("instruments"), nil, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Instruments []map[string]json.RawMessage `json:"instruments"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	out := make([]domain.InstrumentMeta, 0, len(result.Instruments))
	for _, raw := range result.Instruments {
		inst, err := parseInstrument(raw)
		if err != nil {
			o.logger.Warn("Skipping instrument", zap.Error(err))
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

var requiredInstrumentKeys = []string{
	"name", "type", "displayName", "pipLocation", "displayPrecision", "tradeUnitsPrecision",
	"marginRate", "minimumTrailingStopDistance", "maximumTrailingStopDistance",
}

func parseInstrument(raw map[string]json.RawMessage) (domain.InstrumentMeta, error) {
	var name string
	_ = json.Unmarshal(raw["name"], &name)
	for _, key := range requiredInstrumentKeys {
		if _, ok := raw[key]; !ok {
			return domain.InstrumentMeta{}, fmt.Errorf("%w: %q lacks %s", domain.ErrMalformedInstrument, name, key)
		}
	}

	var inst domain.InstrumentMeta
	var marginRate, minTrail, maxTrail string
	fields := []struct {
		key string
		dst interface{}
	}{
		{"name", &inst.Name},
		{"type", &inst.Type},
		{"displayName", &inst.DisplayName},
		{"pipLocation", &inst.PipLocationPrecision},
		{"displayPrecision", &inst.DisplayPrecision},
		{"tradeUnitsPrecision", &inst.TradeUnitsPrecision},
		{"marginRate", &marginRate},
		{"minimumTrailingStopDistance", &minTrail},
		{"maximumTrailingStopDistance", &maxTrail},
	}
	for _, f := range fields {
		if err := json.Unmarshal(raw[f.key], f.dst); err != nil {
			return domain.InstrumentMeta{}, fmt.Errorf("%w: %q field %s: %v", domain.ErrMalformedInstrument, name, f.key, err)
		}
	}

	var err error
	if inst.MarginRate, err = strconv.ParseFloat(marginRate, 64); err != nil {
		return domain.InstrumentMeta{}, fmt.Errorf("%w: %q marginRate: %v", domain.ErrMalformedInstrument, name, err)
	}
	inst.MinimumTrailingStopDistance = parseOptional(minTrail)
	inst.MaximumTrailingStopDistance = parseOptional(maxTrail)
	return inst, nil
}

// SetMarginRate changes the account-wide margin rate, i.e. 1/leverage.
func (o *OandaAdapter) SetMarginRate(ctx context.Context, marginRate float64) error {
	payload := map[string]string{
		"marginRate": decimal.NewFromFloat(marginRate).Round(6).String(),
	}
	resp, err := o.sendRequest(ctx, http.MethodPatch, o.accountPath("configuration"), nil, payload)
	if err != nil {
		return fmt.Errorf("set margin rate: %w", err)
	}
	o.logger.Info("Margin rate updated", zap.Float64("margin_rate", marginRate), zap.ByteString("response", resp))
	return nil
}

func parseOptional(s string) float64 {
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
