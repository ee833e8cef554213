// Package metrics exposes Prometheus metrics for policy imports.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "policyimport"

// Metrics implements core.Recorder.
type Metrics struct {
	importsTotal   *prometheus.CounterVec
	rowsTotal      *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	inFlight       prometheus.Gauge
}

// New registers the import metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		importsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Total number of import runs by outcome.",
		}, []string{"outcome"}),
		rowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Total number of rows processed by table kind and result.",
		}, []string{"table_kind", "result"}),
		importDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Duration of import runs.",
			Buckets: []float64{
				0.01, 0.05, 0.1, 0.5,
				1, 2, 5, 10, 30,
				60, 120, 300,
			},
		}, []string{"outcome"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "imports_in_flight",
			Help:      "Number of imports currently running.",
		}),
	}
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	return New(prometheus.DefaultRegisterer)
})

// Default returns metrics registered with the default Prometheus registry.
func Default() *Metrics {
	return defaultMetrics()
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ImportStarted implements core.Recorder.
func (m *Metrics) ImportStarted() {
	m.inFlight.Inc()
}

// ImportFinished implements core.Recorder.
func (m *Metrics) ImportFinished(outcome string, elapsed time.Duration) {
	m.inFlight.Dec()
	m.importsTotal.WithLabelValues(outcome).Inc()
	m.importDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RowsProcessed implements core.Recorder. Failed rows are not split by
// table; they count under table_kind "any".
func (m *Metrics) RowsProcessed(importInserted, aggregateInserted, failed int) {
	m.rowsTotal.WithLabelValues("import", "inserted").Add(float64(importInserted))
	m.rowsTotal.WithLabelValues("aggregate", "inserted").Add(float64(aggregateInserted))
	m.rowsTotal.WithLabelValues("any", "failed").Add(float64(failed))
}
