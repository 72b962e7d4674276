package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JonMunkholm/uploaduser/internal/core"
)

// Metrics counts rows and runs in Prometheus.
type Metrics struct {
	rowsTotal   *prometheus.CounterVec
	codesTotal  *prometheus.CounterVec
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		rowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploaduser_rows_total",
				Help: "Rows processed by action and result",
			},
			[]string{"action", "result"},
		),
		codesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploaduser_row_errors_total",
				Help: "Fatal row errors by code",
			},
			[]string{"code"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploaduser_runs_total",
				Help: "Finished runs by status",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "uploaduser_run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
			},
		),
	}
}

func (m *Metrics) Start(string) {}

func (m *Metrics) RowResult(o core.Outcome) {
	m.rowsTotal.WithLabelValues(o.Action.String(), result(o)).Inc()
	for _, e := range o.Errors {
		m.codesTotal.WithLabelValues(string(e.Code)).Inc()
	}
}

func (m *Metrics) RunSummary(s core.Summary) {
	status := "completed"
	if s.Aborted {
		status = "aborted"
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(s.Duration().Seconds())
}
