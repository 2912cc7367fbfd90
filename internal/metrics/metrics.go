// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors for the service.
type Metrics struct {
	AccessDecisions *prometheus.CounterVec
	TokenOperations *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New registers the collectors on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors on a specific registerer. Tests pass a
// fresh registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AccessDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Access decisions by outcome and reason",
		}, []string{"decision", "reason"}),
		TokenOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "post_sale_tokens_total",
			Help: "Post-sale token operations by outcome",
		}, []string{"op", "outcome"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
