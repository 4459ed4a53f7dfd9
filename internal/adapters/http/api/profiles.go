package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/pairup/internal/adapters/notify"
	"github.com/okian/pairup/internal/adapters/storage"
	"github.com/okian/pairup/internal/domain/model"
)

// ProfileDependencies reads stored profiles.
type ProfileDependencies interface {
	Profile(ctx context.Context, participantID string) (model.ProfileSnapshot, error)
}

// ProfileHandler handles profile lookups.
type ProfileHandler struct {
	deps ProfileDependencies
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(deps ProfileDependencies) *ProfileHandler {
	return &ProfileHandler{deps: deps}
}

// HandleGetProfile handles GET /profiles/{id} requests.
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_profile"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/profiles/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, nil))
		return
	}

	p, err := h.deps.Profile(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notify.NewProfileView(p))
}
