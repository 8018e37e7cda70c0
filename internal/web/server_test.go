package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/domain"
)

type fakeJournal struct {
	orders     []*domain.OrderRecord
	rejections []*domain.RejectionRecord
	err        error
	lastLimit  int
}

func (f *fakeJournal) SaveOrder(ctx context.Context, rec *domain.OrderRecord) error { return nil }
func (f *fakeJournal) ListOrders(ctx context.Context, limit int) ([]*domain.OrderRecord, error) {
	f.lastLimit = limit
	return f.orders, f.err
}
func (f *fakeJournal) SaveRejection(ctx context.Context, rec *domain.RejectionRecord) error {
	return nil
}
func (f *fakeJournal) ListRejections(ctx context.Context, limit int) ([]*domain.RejectionRecord, error) {
	return f.rejections, f.err
}
func (f *fakeJournal) SaveStopUpdate(ctx context.Context, rec *domain.StopUpdateRecord) error {
	return nil
}
func (f *fakeJournal) ListStopUpdates(ctx context.Context, limit int) ([]*domain.StopUpdateRecord, error) {
	return nil, f.err
}

type fakeTimings []domain.CandleTiming

func (f fakeTimings) Timings() []domain.CandleTiming { return f }

type fakeDecisions []domain.TradeDecision

func (f fakeDecisions) LastDecisions() []domain.TradeDecision { return f }

func newTestServer(journal *fakeJournal, decisions fakeDecisions) (*Server, *DecisionHub) {
	hub := NewDecisionHub(zap.NewNop())
	timings := fakeTimings{{Pair: "EUR_USD", Granularity: "H1", LastTime: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), CompletedOnly: true}}
	return NewServer(0, journal, timings, decisions, hub, true, zap.NewNop()), hub
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_Status(t *testing.T) {
	s, _ := newTestServer(&fakeJournal{}, nil)
	rec := get(t, s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.DryRun)
	require.Len(t, body.Timings, 1)
	assert.Equal(t, "EUR_USD", body.Timings[0].Pair)
}

func TestServer_ListOrders(t *testing.T) {
	journal := &fakeJournal{orders: []*domain.OrderRecord{{ID: "a", Pair: "EUR_USD", Units: 2603, Status: "placed"}}}
	s, _ := newTestServer(journal, nil)

	rec := get(t, s, "/api/orders?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, journal.lastLimit)
	var orders []domain.OrderRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, 2603.0, orders[0].Units)

	get(t, s, "/api/orders")
	assert.Equal(t, defaultListLimit, journal.lastLimit)

	get(t, s, "/api/orders?limit=50000")
	assert.Equal(t, maxListLimit, journal.lastLimit)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/orders?limit=-1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/orders?limit=abc").Code)
}

func TestServer_EmptyListsAreArrays(t *testing.T) {
	s, _ := newTestServer(&fakeJournal{}, nil)
	for _, path := range []string{"/api/rejections", "/api/stop-updates", "/api/decisions"} {
		rec := get(t, s, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()), path)
	}
}

func TestServer_JournalError(t *testing.T) {
	s, _ := newTestServer(&fakeJournal{err: errors.New("disk full")}, nil)
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/api/rejections").Code)
}

func TestServer_DecisionsFilter(t *testing.T) {
	decisions := fakeDecisions{
		{Pair: "EUR_USD", Action: domain.ActionOpen, Quantity: 2603},
		{Pair: "GBP_USD", Action: domain.ActionNone, RejectionReason: "overbought"},
	}
	s, _ := newTestServer(&fakeJournal{}, decisions)

	var got []domain.TradeDecision
	require.NoError(t, json.Unmarshal(get(t, s, "/api/decisions?pair=GBP_USD").Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "overbought", got[0].RejectionReason)

	require.NoError(t, json.Unmarshal(get(t, s, "/api/decisions").Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestDecisionHub_StreamsDecisions(t *testing.T) {
	s, hub := newTestServer(&fakeJournal{}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/decisions", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(domain.TradeDecision{Pair: "EUR_USD", Action: domain.ActionOpen, Quantity: 2603, Trigger: 1})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got domain.TradeDecision
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "EUR_USD", got.Pair)
	assert.Equal(t, domain.ActionOpen, got.Action)
	assert.Equal(t, 1, got.Trigger)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestDecisionHub_PublishWithoutClients(t *testing.T) {
	hub := NewDecisionHub(zap.NewNop())
	assert.NotPanics(t, func() { hub.Publish(domain.TradeDecision{Pair: "EUR_USD"}) })
	assert.Zero(t, hub.ClientCount())
}
