package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prefork/internal/handlers"
	"prefork/internal/middleware"
	"prefork/internal/supervisor"
)

type Router struct {
	*mux.Router
}

// NewRouter builds the read-only admin surface: health/readiness probes,
// worker pool status, the event ring, and Prometheus metrics.
func NewRouter(sup *supervisor.Supervisor) *Router {
	r := mux.NewRouter()

	statusHandler := handlers.NewStatusHandler(sup)

	r.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/ready", statusHandler.ReadyCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", statusHandler.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/workers", statusHandler.GetWorkers).Methods(http.MethodGet)
	api.HandleFunc("/events", statusHandler.GetEvents).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(sup.MetricsRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)

	return &Router{Router: r}
}
