package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"

	"mediq/pkg/monitoring"
)

// Metrics holds the domain counters surfaced at /metrics.
type Metrics struct {
	Assessments *prometheus.CounterVec
	Samples     *prometheus.CounterVec
	Anomalies   *prometheus.CounterVec
	Alerts      *prometheus.CounterVec
}

func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		Assessments: mc.NewCounter("assessments_total",
			"Completed assessments", []string{"risk_level", "esi_level"}),
		Samples: mc.NewCounter("vitals_samples_total",
			"Streaming vitals samples received", []string{"status"}),
		Anomalies: mc.NewCounter("vitals_anomalies_total",
			"Baseline deviations detected", []string{"metric"}),
		Alerts: mc.NewCounter("prevention_alerts_total",
			"Prevention alerts by outcome", []string{"outcome"}),
	}
}
