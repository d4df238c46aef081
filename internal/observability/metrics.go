package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the process counters and histograms. Each instance owns an
// independent registry so tests and repeated initialization never collide on
// collector registration.
type Metrics struct {
	Registry *prometheus.Registry

	LogsIngested      prometheus.Counter
	AnomaliesDetected *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
	TailerLines       prometheus.Counter
	TailerAlerts      prometheus.Counter
	SyncImports       prometheus.Counter
	SyncAnomalies     prometheus.Counter
}

// NewMetrics builds and registers the metric set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,

		LogsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "logs_ingested_total",
			Help:      "Log records ingested into the local store.",
		}),
		AnomaliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "anomalies_detected_total",
			Help:      "Anomalies persisted, partitioned by severity.",
		}, []string{"severity"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quorum",
			Name:      "analysis_session_seconds",
			Help:      "Wall-clock duration of analysis sessions.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		TailerLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "tailer_lines_total",
			Help:      "Lines consumed by the real-time tailer.",
		}),
		TailerAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "tailer_alerts_total",
			Help:      "Stream events that crossed the persist threshold.",
		}),
		SyncImports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "sync_imports_total",
			Help:      "Sync packages imported on the hub.",
		}),
		SyncAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "sync_anomalies_merged_total",
			Help:      "Anomalies merged from sync packages after deduplication.",
		}),
	}

	registry.MustRegister(
		m.LogsIngested,
		m.AnomaliesDetected,
		m.SessionDuration,
		m.TailerLines,
		m.TailerAlerts,
		m.SyncImports,
		m.SyncAnomalies,
	)

	return m
}
