package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics carries the supervisor's own registry so the admin endpoint can
// serve it without touching the process-global default registry.
type Metrics struct {
	Registry *prometheus.Registry

	readyWorkers prometheus.Gauge
	crashes      prometheus.Counter
	restarts     prometheus.Counter
}

func newMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		readyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prefork_workers_ready",
			Help: "Number of worker processes currently accepting traffic.",
		}),
		crashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prefork_worker_crashes_total",
			Help: "Total unexpected worker exits.",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prefork_worker_restarts_total",
			Help: "Total worker restarts performed by the supervisor.",
		}),
	}

	m.Registry.MustRegister(m.readyWorkers, m.crashes, m.restarts)
	return m
}
