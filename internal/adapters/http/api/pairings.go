package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/pairup/internal/adapters/notify"
	"github.com/okian/pairup/internal/domain/model"
)

// PairingsDependencies runs cohort pairing.
type PairingsDependencies interface {
	PairCohorts(ctx context.Context, cohortA, cohortB string) ([]model.Session, error)
}

// PairingsHandler triggers a stable pairing between two cohorts.
type PairingsHandler struct {
	deps PairingsDependencies
}

// NewPairingsHandler creates a new pairings handler.
func NewPairingsHandler(deps PairingsDependencies) *PairingsHandler {
	return &PairingsHandler{deps: deps}
}

type pairingsResponse struct {
	Proposers string               `json:"proposers"`
	Receivers string               `json:"receivers"`
	Sessions  []notify.SessionView `json:"sessions"`
}

// HandlePostPairings handles POST /pairings?a=<cohort>&b=<cohort> requests.
// Cohort a proposes.
func (h *PairingsHandler) HandlePostPairings(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_pairings"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	a, b := strings.TrimSpace(q.Get("a")), strings.TrimSpace(q.Get("b"))
	if a == "" || b == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, nil))
		return
	}

	sessions, err := h.deps.PairCohorts(r.Context(), a, b)
	if err != nil {
		writeDomainError(w, wrapKind(op, err, nil))
		return
	}
	views := make([]notify.SessionView, len(sessions))
	for i, s := range sessions {
		views[i] = notify.NewSessionView(s)
	}
	writeJSON(w, http.StatusOK, pairingsResponse{Proposers: a, Receivers: b, Sessions: views})
}
