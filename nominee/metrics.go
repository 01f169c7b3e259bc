package nominee

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	saves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentry",
		Subsystem: "nominee",
		Name:      "saves_total",
		Help:      "Nominee save sequences by result.",
	}, []string{"result"})

	loads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentry",
		Subsystem: "nominee",
		Name:      "loads_total",
		Help:      "Nominee view loads by result.",
	}, []string{"result"})

	confirm = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentry",
		Subsystem: "nominee",
		Name:      "confirm_seconds",
		Help:      "Time waited for the confirmation of registry transactions.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), //nolint:gomnd // 1s to ~8.5m
	})
)
