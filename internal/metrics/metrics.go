// Package metrics holds the Prometheus collectors of the HTTP service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors registered for one service instance.
type Metrics struct {
	Runs            *prometheus.CounterVec
	FeaturesWritten *prometheus.CounterVec
	Unmatched       prometheus.Counter
	RunSeconds      *prometheus.HistogramVec
	ActiveRuns      prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Runs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "geojoin_runs_total",
			Help: "Total number of algorithm runs by algorithm and status.",
		}, []string{"algorithm", "status"}),
		FeaturesWritten: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "geojoin_features_written_total",
			Help: "Total number of output features written.",
		}, []string{"algorithm"}),
		Unmatched: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "geojoin_join_unmatched_total",
			Help: "Source features left unmatched because the reference layer was empty.",
		}),
		RunSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geojoin_run_duration_seconds",
			Help:    "Duration of algorithm runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"algorithm"}),
		ActiveRuns: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "geojoin_active_runs",
			Help: "Current number of runs in progress.",
		}),
	}
}

// Observe records the outcome of a finished run.
func (m *Metrics) Observe(algorithm string, written int, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Runs.WithLabelValues(algorithm, status).Inc()
	m.RunSeconds.WithLabelValues(algorithm).Observe(seconds)
	if err == nil {
		m.FeaturesWritten.WithLabelValues(algorithm).Add(float64(written))
	}
}
