package api

import (
	"net/http"
)

// QueueDependencies lists queued participants.
type QueueDependencies interface {
	QueueIDs() []string
}

// QueueHandler handles queue inspection requests.
type QueueHandler struct {
	deps QueueDependencies
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(deps QueueDependencies) *QueueHandler {
	return &QueueHandler{deps: deps}
}

type queueResponse struct {
	Size         int      `json:"size"`
	Participants []string `json:"participants"`
}

// HandleGetQueue handles GET /queue requests.
func (h *QueueHandler) HandleGetQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	ids := h.deps.QueueIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, queueResponse{Size: len(ids), Participants: ids})
}
