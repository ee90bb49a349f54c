package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/execlog"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func limit(r *http.Request) int {
	return min(queryInt(r, "limit", defaultLimit), maxLimit)
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var opts []job.Option
	if req.HostID != "" {
		hostID, err := id.ParseHostID(req.HostID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts = append(opts, job.WithHost(hostID))
	}
	if req.GroupID != "" {
		groupID, err := id.ParseGroupID(req.GroupID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts = append(opts, job.WithGroup(groupID))
	}
	if req.Description != "" {
		opts = append(opts, job.WithDescription(req.Description))
	}
	if req.Timeout > 0 {
		opts = append(opts, job.WithTimeout(time.Duration(req.Timeout)*time.Second))
	}
	if req.RetryCount != nil {
		opts = append(opts, job.WithRetryCount(*req.RetryCount))
	}
	if req.Disabled {
		opts = append(opts, job.WithDisabled())
	}

	d := job.New(req.Name, req.Schedule, req.Command, opts...)
	if err := a.eng.CreateJob(r.Context(), d); err != nil {
		// A missing target is a bad definition, not a missing resource.
		if errors.Is(err, fleetcron.ErrHostNotFound) || errors.Is(err, fleetcron.ErrGroupNotFound) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.eng.Store().ListJobs(r.Context(), job.ListOpts{
		EnabledOnly: r.URL.Query().Get("enabled") == "true",
		Limit:       limit(r),
		Offset:      queryInt(r, "offset", 0),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Definition{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	d, err := a.eng.Store().GetJob(r.Context(), jobID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	if err := a.eng.DeleteJob(r.Context(), jobID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setJobEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		if err := a.eng.SetJobEnabled(r.Context(), jobID, enabled); err != nil {
			writeErr(w, err)
			return
		}
		d, err := a.eng.Store().GetJob(r.Context(), jobID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func (a *API) listJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	if _, err := a.eng.Store().GetJob(r.Context(), jobID); err != nil {
		writeErr(w, err)
		return
	}
	a.writeLogs(w, r, execlog.ListOpts{JobID: jobID, Limit: limit(r)})
}

func (a *API) listLogs(w http.ResponseWriter, r *http.Request) {
	a.writeLogs(w, r, execlog.ListOpts{Limit: limit(r)})
}

func (a *API) writeLogs(w http.ResponseWriter, r *http.Request, opts execlog.ListOpts) {
	entries, err := a.eng.Store().ListExecutionLogs(r.Context(), opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	if entries == nil {
		entries = []*execlog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (id.JobID, bool) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return id.Nil, false
	}
	return jobID, true
}
