package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/fleetcron/queue"
)

// QueueEntry is one member of a queue set. Score is the due time for
// pending and the claim deadline for processing.
type QueueEntry struct {
	JobID string    `json:"job_id"`
	Score time.Time `json:"score"`
}

func (a *API) queueEntries(w http.ResponseWriter, r *http.Request) {
	set := chi.URLParam(r, "set")
	if set != queue.SetPending && set != queue.SetProcessing {
		writeError(w, http.StatusBadRequest, "set must be pending or processing")
		return
	}
	entries, err := a.eng.Queue().Entries(r.Context(), set)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]QueueEntry, len(entries))
	for i, e := range entries {
		out[i] = QueueEntry{JobID: e.JobID.String(), Score: e.Score.UTC()}
	}
	writeJSON(w, http.StatusOK, out)
}
