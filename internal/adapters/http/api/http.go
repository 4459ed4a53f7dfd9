// Package api declares the operator HTTP surface and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/pairup/internal/adapters/storage"
	service "github.com/okian/pairup/internal/app"
	"github.com/okian/pairup/internal/domain/matching"
	"github.com/okian/pairup/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service.
type Dependencies interface {
	QueueIDs() []string
	Profile(ctx context.Context, participantID string) (model.ProfileSnapshot, error)
	RecentSessions(ctx context.Context, limit int) ([]model.Session, error)
	PairCohorts(ctx context.Context, cohortA, cohortB string) ([]model.Session, error)
}

// StatsProvider returns the monitoring snapshot.
type StatsProvider interface {
	GetStats(ctx context.Context) (service.Stats, error)
}

// Server wires HTTP routes for the operator API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	queueHandler    *QueueHandler
	sessionsHandler *SessionsHandler
	profileHandler  *ProfileHandler
	pairingsHandler *PairingsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(statsProvider),
		statsHandler:    NewStatsHandler(statsProvider),
		queueHandler:    NewQueueHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
		profileHandler:  NewProfileHandler(deps),
		pairingsHandler: NewPairingsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux. The WebSocket handler is mounted
// without the metrics wrapper since it hijacks the connection.
func (s *Server) Register(_ context.Context, mux *http.ServeMux, ws http.Handler) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("/{$}", MetricsMiddleware(s.healthHandler.HandleStatus, "status"))
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/queue", MetricsMiddleware(s.queueHandler.HandleGetQueue, "queue"))
	mux.HandleFunc("/sessions", MetricsMiddleware(s.sessionsHandler.HandleGetSessions, "sessions"))
	mux.HandleFunc("/profiles/", MetricsMiddleware(s.profileHandler.HandleGetProfile, "profiles"))
	mux.HandleFunc("/pairings", MetricsMiddleware(s.pairingsHandler.HandlePostPairings, "pairings"))
	if ws != nil {
		mux.Handle("/ws", ws)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps domain and storage sentinels to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrBadRequest), errors.Is(err, matching.ErrInvalidCohort):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
