package web

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/domain"
)

// TimingSource reports the candle timing of every configured pair.
type TimingSource interface {
	Timings() []domain.CandleTiming
}

// DecisionSource reports the latest decision per pair.
type DecisionSource interface {
	LastDecisions() []domain.TradeDecision
}

type Server struct {
	router    *http.ServeMux
	server    *http.Server
	journal   domain.JournalRepository
	timings   TimingSource
	decisions DecisionSource
	hub       *DecisionHub
	dryRun    bool
	logger    *zap.Logger
}

func NewServer(
	port int,
	journal domain.JournalRepository,
	timings TimingSource,
	decisions DecisionSource,
	hub *DecisionHub,
	dryRun bool,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		journal:   journal,
		timings:   timings,
		decisions: decisions,
		hub:       hub,
		dryRun:    dryRun,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Journal
	s.router.HandleFunc("GET /api/orders", s.handleListOrders)
	s.router.HandleFunc("GET /api/rejections", s.handleListRejections)
	s.router.HandleFunc("GET /api/stop-updates", s.handleListStopUpdates)

	// Decisions
	s.router.HandleFunc("GET /api/decisions", s.handleDecisions)
	s.router.HandleFunc("GET /ws/decisions", s.hub.ServeWS)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
