// Package telemetry exposes Prometheus metrics for the job lifecycle.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsAdmitted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "penguinblur_jobs_admitted_total", Help: "Jobs admitted"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "penguinblur_jobs_completed_total", Help: "Jobs that completed successfully"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "penguinblur_jobs_failed_total", Help: "Jobs that failed, timed out or were cancelled"})
	JobsReaped       = prometheus.NewCounter(prometheus.CounterOpts{Name: "penguinblur_jobs_reaped_total", Help: "Jobs removed by the expiry sweep"})
	OrphansReaped    = prometheus.NewCounter(prometheus.CounterOpts{Name: "penguinblur_orphan_files_reaped_total", Help: "Untracked files removed by the expiry sweep"})
	JobsActive       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "penguinblur_jobs_active", Help: "Jobs currently tracked by the registry"})
	EventSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{Name: "penguinblur_event_subscribers", Help: "Connected event stream subscribers"})

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "penguinblur_http_requests_total", Help: "HTTP requests by method and status"},
		[]string{"method", "status"},
	)
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsAdmitted,
			JobsCompleted,
			JobsFailed,
			JobsReaped,
			OrphansReaped,
			JobsActive,
			EventSubscribers,
			HTTPRequests,
		)
	})
	return promhttp.Handler()
}
