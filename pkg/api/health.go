package api

import (
	"net/http"

	"github.com/cuemby/burrow/pkg/metrics"
)

// registerHealth mounts the liveness, readiness and Prometheus endpoints.
// Component health is reported by the manager into metrics.Health().
func registerHealth(mux *http.ServeMux) {
	hc := metrics.Health()
	mux.Handle("GET /health", hc.HealthHandler())
	mux.Handle("GET /ready", hc.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())
}
