package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// IngestionsTotal counts item ingestions by kind (image, tweet, url) and outcome.
	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspirations_ingestions_total",
			Help: "Item ingestions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspirations_cache_invalidations_total",
			Help: "Listing cache invalidations by outcome",
		},
		[]string{"outcome"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspirations_cache_lookups_total",
			Help: "Listing cache lookups by result",
		},
		[]string{"result"},
	)

	OpenViews = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inspirations_open_views",
			Help: "Collection views currently open",
		},
	)
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
