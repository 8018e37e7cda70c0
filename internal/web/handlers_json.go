package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func listLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

// serveList handles the shared limit parsing and error reporting of the journal endpoints.
func serveList[T any](s *Server, w http.ResponseWriter, r *http.Request, what string, list func(ctx context.Context, limit int) ([]T, error)) {
	limit, ok := listLimit(r)
	if !ok {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return
	}
	items, err := list(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list "+what, zap.Error(err))
		http.Error(w, "Failed to list "+what, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []T{}
	}
	s.writeJSON(w, items)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, "orders", s.journal.ListOrders)
}

func (s *Server) handleListRejections(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, "rejections", s.journal.ListRejections)
}

func (s *Server) handleListStopUpdates(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, "stop updates", s.journal.ListStopUpdates)
}
