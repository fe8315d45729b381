package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alertmonitor",
			Subsystem: "monitor",
			Name:      "passes_total",
			Help:      "Total number of completed evaluation passes",
		},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alertmonitor",
			Subsystem: "monitor",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one evaluation pass",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	alertsTriggeredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alertmonitor",
			Subsystem: "monitor",
			Name:      "alerts_triggered_total",
			Help:      "Total number of alerts triggered",
		},
	)

	priceFetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alertmonitor",
			Subsystem: "monitor",
			Name:      "price_fetch_failures_total",
			Help:      "Total number of failed price fetches",
		},
		[]string{"symbol"},
	)
)
