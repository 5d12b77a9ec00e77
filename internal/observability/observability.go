// Package observability provides metrics and monitoring capabilities for
// training and prediction runs.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/camtrap/camtrap-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Training *metrics.TrainingMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any metric collector fails to
// initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	trainingMetrics, err := metrics.NewTrainingMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create training metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Training: trainingMetrics,
	}, nil
}

// Handler returns an HTTP handler exposing the registry in the Prometheus
// text exposition format, for runs long enough to be worth scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
