package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/workboard/authgate/internal/config"
	"github.com/workboard/authgate/internal/gate"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Authenticate func(http.Handler) http.Handler
	Gate         *gate.Gate
	Capabilities CapabilitySource
	Invalidator  Invalidator
	AdminToken   string
	Metrics      http.Handler
	Health       http.HandlerFunc
	Ready        http.HandlerFunc
	Instrument   func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Instrument != nil {
		r.Use(deps.Instrument)
	}

	// Public routes.
	health := deps.Health
	if health == nil {
		health = func(w http.ResponseWriter, _ *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}
	}
	ready := deps.Ready
	if ready == nil {
		ready = health
	}
	r.Get("/authz/health", health)
	r.Get("/authz/ready", ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, deps.Metrics)
	}

	// Authenticated routes.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildPrincipal)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)

		r.Post("/v1/authz/check", handleCheck(deps.Gate))
		r.Get("/v1/authz/capabilities", handleCapabilities(deps.Capabilities))
		r.Post("/v1/authz/invalidate", handleInvalidate(deps.Invalidator, deps.AdminToken))

		// Resource routes guarded by the gate as middleware.
		r.Route("/v1/tasks/{taskID}", func(r chi.Router) {
			r.With(RequireCapability(deps.Gate, "task", "view", ResourceAttributes)).
				Post("/view", handleTaskView)
			r.With(RequireCapability(deps.Gate, "task", "update", ResourceAttributes)).
				Patch("/", handleTaskUpdate)
		})
	})

	return r
}
