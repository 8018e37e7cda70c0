package web

import (
	"net/http"
	"time"

	"github.com/vitos/ha_trader/internal/domain"
)

type statusResponse struct {
	Status    string                `json:"status"`
	DryRun    bool                  `json:"dry_run"`
	Clients   int                   `json:"ws_clients"`
	Timings   []domain.CandleTiming `json:"timings"`
	CheckedAt time.Time             `json:"checked_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	timings := s.timings.Timings()
	if timings == nil {
		timings = []domain.CandleTiming{}
	}
	s.writeJSON(w, statusResponse{
		Status:    "ok",
		DryRun:    s.dryRun,
		Clients:   s.hub.ClientCount(),
		Timings:   timings,
		CheckedAt: time.Now().UTC(),
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	decisions := s.decisions.LastDecisions()
	if pair := r.URL.Query().Get("pair"); pair != "" {
		filtered := decisions[:0:0]
		for _, d := range decisions {
			if d.Pair == pair {
				filtered = append(filtered, d)
			}
		}
		decisions = filtered
	}
	if decisions == nil {
		decisions = []domain.TradeDecision{}
	}
	s.writeJSON(w, decisions)
}
