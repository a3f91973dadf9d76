package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ActionDuration measures datastore action duration by action name.
	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "datastore_action_duration_seconds",
			Help: "Datastore action duration in seconds",
			// Buckets optimized for database queries: 100µs to 10s
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"action"},
	)

	// ActionsTotal counts datastore actions by action name and status.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_actions_total",
			Help: "Total number of datastore actions",
		},
		[]string{"action", "status"},
	)
)

// registerActionMetrics registers all action-related metrics.
func registerActionMetrics() error {
	metrics := []prometheus.Collector{
		ActionDuration,
		ActionsTotal,
	}

	for _, metric := range metrics {
		if err := Registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}
