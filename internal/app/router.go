package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dsarhub/dsarhub/internal/export"
	govhttp "github.com/dsarhub/dsarhub/internal/governance/http"
	"github.com/dsarhub/dsarhub/internal/observability"
	"github.com/dsarhub/dsarhub/internal/runs"
	"github.com/dsarhub/dsarhub/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	RunsHandler       *runs.Handler
	ExportHandler     *export.Handler
	GovernanceHandler *govhttp.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		if params.RunsHandler != nil {
			params.RunsHandler.MountRoutes(api)
		}
		if params.ExportHandler != nil {
			params.ExportHandler.MountRoutes(api)
		}
		if params.GovernanceHandler != nil {
			params.GovernanceHandler.MountRoutes(api)
		}
		if params.JobsHandler != nil {
			params.JobsHandler.MountRoutes(api)
		}
	})

	return r
}
