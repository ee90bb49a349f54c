package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/sshexec"
)

const ndjsonContentType = "application/x-ndjson"

func (a *API) runCommand(w http.ResponseWriter, r *http.Request) {
	var req RunCommandRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hostID, err := id.ParseHostID(req.HostID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.eng.Orchestrator().Run(r.Context(), sshexec.Request{
		HostID:      hostID,
		Command:     req.Command,
		ExecTimeout: time.Duration(req.Timeout) * time.Second,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// runBatch streams one NDJSON line per host in completion order. Errors
// resolving the group are reported before the stream starts; per-host
// failures are lines with exit_code 1.
func (a *API) runBatch(w http.ResponseWriter, r *http.Request) {
	var req RunBatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	groupID, err := id.ParseGroupID(req.GroupID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := a.eng.Store().GetGroup(r.Context(), groupID); err != nil {
		writeErr(w, err)
		return
	}

	stream, err := a.eng.Orchestrator().RunFleet(r.Context(), sshexec.Request{
		GroupID:     groupID,
		Command:     req.Command,
		ExecTimeout: time.Duration(req.Timeout) * time.Second,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", ndjsonContentType)
	w.WriteHeader(http.StatusOK)
	if err := stream.WriteNDJSON(w); err != nil {
		a.eng.Logger().Warn("batch stream aborted",
			slog.String("group_id", groupID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (a *API) testConnection(w http.ResponseWriter, r *http.Request) {
	hostID, err := id.ParseHostID(chi.URLParam(r, "hostId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.eng.Orchestrator().TestConnection(r.Context(), hostID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
