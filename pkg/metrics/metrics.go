// Package metrics exposes the Prometheus instruments for the deployment
// pipeline and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the registry and the instruments registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	// Deploys counts deploy and rollback attempts by action and outcome.
	Deploys *prometheus.CounterVec

	// PublishFailures counts artifact publications that failed after a
	// committed deployment.
	PublishFailures prometheus.Counter

	// RequestDuration observes HTTP handler latency by method and status.
	RequestDuration *prometheus.HistogramVec
}

// New creates a Metrics with a fresh registry, including the standard Go
// and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		Deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liveops_deploys_total",
			Help: "Deploy and rollback attempts by action and outcome.",
		}, []string{"action", "outcome"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveops_publish_failures_total",
			Help: "Artifact publications that failed after a committed deployment.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liveops_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	registry.MustRegister(
		m.Deploys,
		m.PublishFailures,
		m.RequestDuration,
	)
	return m
}

// ObserveDeploy records one deploy or rollback attempt.
func (m *Metrics) ObserveDeploy(action string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Deploys.WithLabelValues(action, outcome).Inc()
}
