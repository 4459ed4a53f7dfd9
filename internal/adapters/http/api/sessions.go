package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/pairup/internal/adapters/notify"
	"github.com/okian/pairup/internal/adapters/storage"
	"github.com/okian/pairup/internal/domain/model"
)

// maxSessionLimit caps a single page of sessions.
const maxSessionLimit = 500

// SessionsDependencies reads committed sessions.
type SessionsDependencies interface {
	RecentSessions(ctx context.Context, limit int) ([]model.Session, error)
}

// SessionsHandler handles session history requests.
type SessionsHandler struct {
	deps SessionsDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionsDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleGetSessions handles GET /sessions?limit=n requests, newest first.
func (h *SessionsHandler) HandleGetSessions(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_sessions"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	limit := storage.DefaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
			return
		}
		limit = min(n, maxSessionLimit)
	}

	sessions, err := h.deps.RecentSessions(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]notify.SessionView, len(sessions))
	for i, s := range sessions {
		out[i] = notify.NewSessionView(s)
	}
	writeJSON(w, http.StatusOK, out)
}
