package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTimestampMetrics() {
	r.TimestampsIssuedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sqlgate_timestamps_issued_total",
			Help: "Total number of timestamps issued by this issuer",
		},
	)

	r.TimestampCounter = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlgate_timestamp_counter",
			Help: "Next timestamp value this issuer will emit",
		},
	)

	r.TimestampCheckpoints = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sqlgate_timestamp_checkpoints_total",
			Help: "Total number of counter checkpoints written",
		},
	)

	r.TimestampResetsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sqlgate_timestamp_resets_total",
			Help: "Total number of administrative counter resets",
		},
	)
}
