// Package metrics records per-stage pipeline measurements in a Prometheus
// registry and writes them out in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns a private registry so repeated runs in one process do not
// collide on the global default registerer.
type Metrics struct {
	reg *prometheus.Registry

	StageRowsIn   *prometheus.GaugeVec
	StageRowsOut  *prometheus.GaugeVec
	StageDuration *prometheus.GaugeVec
	RunsTotal     prometheus.Counter
	FetchesTotal  *prometheus.CounterVec
}

// New builds and registers the pricetrack collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		StageRowsIn: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "pricetrack_stage_rows_in", Help: "Rows entering a pipeline stage"},
			[]string{"stage"},
		),
		StageRowsOut: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "pricetrack_stage_rows_out", Help: "Rows leaving a pipeline stage"},
			[]string{"stage"},
		),
		StageDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "pricetrack_stage_duration_seconds", Help: "Wall time spent in a pipeline stage"},
			[]string{"stage"},
		),
		RunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "pricetrack_runs_total", Help: "Pipeline runs completed"},
		),
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "pricetrack_fetches_total", Help: "Country panel downloads"},
			[]string{"country", "status"},
		),
	}
	m.reg.MustRegister(m.StageRowsIn, m.StageRowsOut, m.StageDuration, m.RunsTotal, m.FetchesTotal)
	return m
}

// ObserveStage records one stage's row counts and elapsed time.
func (m *Metrics) ObserveStage(stage string, rowsIn, rowsOut int, elapsed time.Duration) {
	m.StageRowsIn.WithLabelValues(stage).Set(float64(rowsIn))
	m.StageRowsOut.WithLabelValues(stage).Set(float64(rowsOut))
	m.StageDuration.WithLabelValues(stage).Set(elapsed.Seconds())
}

// ObserveFetch counts one panel download; ok=false records a failure.
func (m *Metrics) ObserveFetch(country string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.FetchesTotal.WithLabelValues(country, status).Inc()
}

// Gatherer exposes the registry for callers that want to scrape it directly.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

// WriteTextfile writes every collected metric to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
