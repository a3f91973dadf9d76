package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestDuration measures HTTP request duration by method, path, and status.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRateLimited counts requests rejected by the rate limiter.
	HTTPRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datastore_http_rate_limited_total",
			Help: "Total number of rate-limited HTTP requests",
		},
	)
)

// registerHTTPMetrics registers all HTTP-related metrics.
func registerHTTPMetrics() error {
	metrics := []prometheus.Collector{
		HTTPRequestDuration,
		HTTPRequestsTotal,
		HTTPRateLimited,
	}

	for _, metric := range metrics {
		if err := Registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}
