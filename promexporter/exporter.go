// Package promexporter exposes hotrod client statistics to Prometheus.
package promexporter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter manages Prometheus metrics export
type Exporter struct {
	registry *prometheus.Registry
}

// NewExporter creates an exporter with its own registry, collecting the
// given clients.
func NewExporter(sources ...StatsSource) *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewClientCollector(sources...))

	return &Exporter{registry: registry}
}

// Registry returns the registry, to add other collectors.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns an HTTP handler for the /metrics endpoint
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP starts the metrics HTTP server. It blocks until the server fails.
func (e *Exporter) ServeHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	return http.ListenAndServe(addr, mux)
}
