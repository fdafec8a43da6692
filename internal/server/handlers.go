package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/quantbridge/ibgate/internal/gateway"
	"github.com/quantbridge/ibgate/internal/model"
	"github.com/quantbridge/ibgate/internal/pool"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, hint string) {
	writeJSON(w, status, errorBody{Error: msg, Hint: hint})
}

// writeAcquireError maps pool acquisition failures onto 503 responses.
// Connect failures carry the pool's remediation hint verbatim.
func writeAcquireError(w http.ResponseWriter, err error) {
	var cf *pool.ConnectFailedError
	switch {
	case errors.As(err, &cf):
		writeError(w, http.StatusServiceUnavailable, cf.Error(), cf.Hint)
	case errors.Is(err, pool.ErrPoolExhausted):
		writeError(w, http.StatusServiceUnavailable, err.Error(),
			"all pooled sessions are leased; retry shortly or raise pool.capacity")
	case errors.Is(err, pool.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "")
	default:
		writeError(w, http.StatusServiceUnavailable, err.Error(), "")
	}
}

// withLease brackets fn in an acquire/release pair.
func (s *Server) withLease(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, conn gateway.Conn) (any, error)) {
	lease, err := s.pool.Acquire(r.Context(), 0)
	if err != nil {
		writeAcquireError(w, err)
		return
	}
	defer lease.Release()

	result, err := fn(r.Context(), lease.Conn())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleHealth reports liveness plus pool health. It always answers 200
// once the process is up: sessions connect lazily, so an idle pool with
// zero connections is not a failure.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.pool.Status()

	status := "healthy"
	if st.Healthy == 0 && st.Leased == 0 {
		status = "idle"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"healthy":  st.Healthy,
		"capacity": st.Total,
	})
}

// handleStatus returns the full pool snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	duration := r.URL.Query().Get("duration")
	if duration == "" {
		duration = "1 D"
	}
	barSize := r.URL.Query().Get("bar_size")
	if barSize == "" {
		barSize = "5 mins"
	}

	s.withLease(w, r, func(ctx context.Context, conn gateway.Conn) (any, error) {
		bars, err := conn.HistoricalBars(ctx, symbol, duration, barSize)
		if err != nil {
			return nil, err
		}
		return model.HistoricalData{
			Symbol:      symbol,
			BarSize:     barSize,
			Duration:    duration,
			Bars:        bars,
			Count:       len(bars),
			LastUpdated: time.Now(),
		}, nil
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	s.withLease(w, r, func(ctx context.Context, conn gateway.Conn) (any, error) {
		return conn.Snapshot(ctx, symbol)
	})
}

func (s *Server) handleAccountSummary(w http.ResponseWriter, r *http.Request) {
	s.withLease(w, r, func(ctx context.Context, conn gateway.Conn) (any, error) {
		return conn.AccountSummary(ctx)
	})
}
