package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/backoffice/internal/console"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/users"
	"github.com/odyssey-erp/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionHandler     *console.Handler
	PermissionsHandler *rbac.PermissionsHandler
	UsersHandler       *users.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	// Ready reports dependency health for /readyz; nil means always ready.
	Ready func(*http.Request) error
}

// NewRouter constructs the chi.Router with gateway defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("readiness check failed", slog.Any("error", err))
				}
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/v1", func(r chi.Router) {
		if params.SessionHandler == nil {
			return
		}
		r.Route("/session", params.SessionHandler.MountRoutes)
		r.Group(func(r chi.Router) {
			r.Use(params.SessionHandler.Middleware)
			if params.PermissionsHandler != nil {
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
		})
	})

	return r
}
