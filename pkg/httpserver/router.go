package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OpsRoutes describes the operational endpoints of a service.
type OpsRoutes struct {
	Checks       []Check
	CheckTimeout time.Duration
	Metrics      http.Handler // nil leaves /metrics unmounted
	Logger       *slog.Logger
}

// NewOpsRouter mounts /healthz, /readyz and /metrics.
func NewOpsRouter(o OpsRoutes) http.Handler {
	timeout := o.CheckTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", LivenessHandler())
	r.Get("/readyz", ReadinessHandler(o.Logger, timeout, o.Checks...))
	if o.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.Metrics)
	}
	return r
}
