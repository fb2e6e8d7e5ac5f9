package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/radworker/internal/domain/model"
)

// maxJobBytes bounds the size of a POST /jobs body.
const maxJobBytes = 64 << 20

// JobsHandler handles job intake requests.
type JobsHandler struct {
	deps Dependencies
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps Dependencies) *JobsHandler {
	return &JobsHandler{deps: deps}
}

// HandlePostJob handles POST /jobs requests. Only the JSON shape is checked
// here; job validation belongs to the worker unit.
func (h *JobsHandler) HandlePostJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_job"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var job model.Job
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJobBytes)).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	unit, err := h.deps.Enqueue(r.Context(), job, r.Header.Get(model.IdentityHeader))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Unit: unit})
}
