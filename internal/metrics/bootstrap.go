package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CheckDuration measures privilege check duration by check name.
	CheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "datastore_privilege_check_duration_seconds",
			Help: "Privilege check duration in seconds",
			// Buckets optimized for introspection queries: 1ms to 10s
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"check"},
	)

	// ChecksTotal counts privilege checks by check name and outcome.
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_privilege_checks_total",
			Help: "Total number of privilege checks",
		},
		[]string{"check", "outcome"},
	)

	// BootstrapState reports the bootstrap state machine's terminal state
	// (1 for the current state, 0 otherwise).
	BootstrapState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datastore_bootstrap_state",
			Help: "Current bootstrap state (1 = active state)",
		},
		[]string{"state"},
	)

	// ConfigureDuration measures the whole configure sequence duration.
	ConfigureDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "datastore_configure_duration_seconds",
			Help: "Duration of the configure sequence in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		},
	)
)

// registerBootstrapMetrics registers all bootstrap-related metrics.
func registerBootstrapMetrics() error {
	metrics := []prometheus.Collector{
		CheckDuration,
		ChecksTotal,
		BootstrapState,
		ConfigureDuration,
	}

	for _, metric := range metrics {
		if err := Registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}
