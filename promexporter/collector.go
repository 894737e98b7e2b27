package promexporter

import (
	"github.com/pior/hotrod"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// StatsSource is implemented by *hotrod.RemoteCache.
type StatsSource interface {
	CacheName() string
	ClientStats() hotrod.ClientStats
	CircuitBreakerState() gobreaker.State
}

var (
	opsDesc = prometheus.NewDesc(
		"hotrod_client_operations_total",
		"Total number of successful round trips by kind",
		[]string{"cache", "kind"}, nil, // kind: get, write, remove, other
	)
	getHitsDesc = prometheus.NewDesc(
		"hotrod_client_get_hits_total",
		"Total number of gets that found the key",
		[]string{"cache"}, nil,
	)
	notAppliedDesc = prometheus.NewDesc(
		"hotrod_client_not_applied_total",
		"Total number of conditional operations whose precondition failed",
		[]string{"cache"}, nil,
	)
	errorsDesc = prometheus.NewDesc(
		"hotrod_client_errors_total",
		"Total number of failed operations by type",
		[]string{"cache", "type"}, nil, // type: server, other
	)
	circuitStateDesc = prometheus.NewDesc(
		"hotrod_circuit_breaker_state",
		"Circuit breaker state (0=closed, 1=half-open, 2=open)",
		[]string{"cache"}, nil,
	)
)

// ClientCollector exports the counters of one or more clients. Values are
// read from the clients at scrape time.
type ClientCollector struct {
	sources []StatsSource
}

// NewClientCollector creates a collector over sources.
func NewClientCollector(sources ...StatsSource) *ClientCollector {
	return &ClientCollector{sources: sources}
}

// Describe implements prometheus.Collector.
func (c *ClientCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- opsDesc
	ch <- getHitsDesc
	ch <- notAppliedDesc
	ch <- errorsDesc
	ch <- circuitStateDesc
}

// Collect implements prometheus.Collector.
func (c *ClientCollector) Collect(ch chan<- prometheus.Metric) {
	for _, src := range c.sources {
		cache := src.CacheName()
		stats := src.ClientStats()

		counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), append([]string{cache}, labels...)...)
		}

		counter(opsDesc, stats.Gets, "get")
		counter(opsDesc, stats.Writes, "write")
		counter(opsDesc, stats.Removes, "remove")
		counter(opsDesc, stats.Others, "other")
		counter(getHitsDesc, stats.GetHits)
		counter(notAppliedDesc, stats.NotApplied)
		counter(errorsDesc, stats.ServerErrors, "server")
		counter(errorsDesc, stats.Errors-stats.ServerErrors, "other")

		ch <- prometheus.MustNewConstMetric(circuitStateDesc, prometheus.GaugeValue,
			float64(src.CircuitBreakerState()), cache)
	}
}
