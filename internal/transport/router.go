package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/propfolio/vacate/internal/config"
	"github.com/propfolio/vacate/internal/observability"
	"github.com/propfolio/vacate/internal/termination"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Service      *termination.Service
	Metrics      *observability.Metrics
	Readiness    observability.ReadinessChecks
	Authenticate func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes — bypass authentication.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	// Authenticated routes — full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	svc := deps.Service
	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Get("/ui/subjects/{subjectId}", handleSubjectGet(svc))

		r.Get("/ui/terminations", handleTerminationList(svc))
		r.Get("/ui/terminations/{subjectId}", handleTerminationGet(svc))
		r.Put("/ui/terminations/{subjectId}/details", handleTerminationDetails(svc))
		r.Post("/ui/terminations/{subjectId}/next", handleTransition(svc, "next"))
		r.Post("/ui/terminations/{subjectId}/previous", handleTransition(svc, "previous"))
		r.Post("/ui/terminations/{subjectId}/skip", handleTransition(svc, "skip"))
		r.Post("/ui/terminations/{subjectId}/submit", handleTransition(svc, "submit"))
		r.Post("/ui/terminations/{subjectId}/media", handleMediaAdd(svc, deps.Config.Server.MaxUploadBytes))
		r.Delete("/ui/terminations/{subjectId}/media/{index}", handleMediaRemove(svc))
		r.Post("/ui/terminations/{subjectId}/damages", handleDamageAdd(svc))
		r.Delete("/ui/terminations/{subjectId}/damages/{index}", handleDamageRemove(svc))
		r.Post("/ui/terminations/{subjectId}/invoice-items", handleInvoiceItemsAdd(svc))
		r.Delete("/ui/terminations/{subjectId}", handleTerminationAbandon(svc))
	})

	return r
}
