package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/fleetcron/engine"
)

// API serves the HTTP routes over an Engine.
type API struct {
	eng     *engine.Engine
	metrics *httpMetrics
}

// Option configures an API.
type Option func(*API)

// WithPrometheus records request counts and latencies in reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(a *API) { a.metrics = newHTTPMetrics(reg) }
}

// New creates an API from an Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if a.metrics != nil {
		r.Use(a.metrics.middleware)
	}
	r.Route("/v1", a.RegisterRoutes)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

// RegisterRoutes registers every route on r.
func (a *API) RegisterRoutes(r chi.Router) {
	a.registerSSHRoutes(r)
	a.registerJobRoutes(r)
	a.registerHostRoutes(r)
	a.registerQueueRoutes(r)
}

func (a *API) registerSSHRoutes(r chi.Router) {
	r.Post("/ssh", a.runCommand)
	r.Post("/ssh/batch", a.runBatch)
	r.Get("/ssh/{hostId}", a.testConnection)
}

func (a *API) registerJobRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", a.createJob)
		r.Get("/", a.listJobs)
		r.Get("/{jobId}", a.getJob)
		r.Delete("/{jobId}", a.deleteJob)
		r.Post("/{jobId}/enable", a.setJobEnabled(true))
		r.Post("/{jobId}/disable", a.setJobEnabled(false))
		r.Get("/{jobId}/logs", a.listJobLogs)
	})
	r.Get("/logs", a.listLogs)
}

func (a *API) registerHostRoutes(r chi.Router) {
	r.Post("/groups", a.createGroup)
	r.Get("/groups", a.listGroups)
	r.Get("/groups/{groupId}", a.getGroup)
	r.Get("/groups/{groupId}/hosts", a.listGroupHosts)
	r.Post("/hosts", a.createHost)
	r.Get("/hosts/{hostId}", a.getHost)
}

func (a *API) registerQueueRoutes(r chi.Router) {
	r.Get("/queue/{set}", a.queueEntries)
}
