package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/papertrail/internal/auth"
	"github.com/odyssey-erp/papertrail/internal/billing"
	"github.com/odyssey-erp/papertrail/internal/challans"
	"github.com/odyssey-erp/papertrail/internal/observability"
	"github.com/odyssey-erp/papertrail/internal/platform/idempotency"
	"github.com/odyssey-erp/papertrail/internal/requests"
	"github.com/odyssey-erp/papertrail/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Auth            auth.Middleware
	RequestsHandler *requests.Handler
	ChallansHandler *challans.Handler
	BillsHandler    *billing.Handler
	InvoicesHandler *billing.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
	Idempotency     *idempotency.Store
}

// NewRouter constructs the chi.Router with papertrail defaults.
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
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Auth.Authenticate)
		r.Route("/api", func(r chi.Router) {
			if params.Idempotency != nil {
				r.Use(idempotency.Middleware(params.Idempotency, params.Logger))
			}
			r.Route("/material-requests", params.RequestsHandler.MountRoutes)
			r.Route("/challans", params.ChallansHandler.MountRoutes)
			r.Route("/bills", params.BillsHandler.MountRoutes)
			r.Route("/invoices", params.InvoicesHandler.MountRoutes)
		})
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

// NewWorkerRouter serves liveness and metrics for the background worker.
func NewWorkerRouter(metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}
