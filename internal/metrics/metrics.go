package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation pipeline
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_recommend_requests_total",
			Help: "Total number of recommendation engine calls",
		},
		[]string{"operation", "outcome"}, // outcome: "ok", "not_found", "fallback", "error"
	)

	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moviematch_recommend_duration_seconds",
			Help:    "Duration of recommendation engine calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CorpusSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moviematch_corpus_movies",
			Help: "Number of movies in the loaded feature matrix",
		},
	)

	FeatureCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moviematch_corpus_features",
			Help: "Number of columns in the loaded feature matrix",
		},
	)

	// Catalog client
	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_catalog_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"endpoint", "outcome"}, // outcome: "ok", "not_found", "error", "rejected"
	)

	CatalogCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_catalog_cache_hits_total",
			Help: "Total number of catalog cache hits",
		},
		[]string{"cache"},
	)

	CatalogCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_catalog_cache_misses_total",
			Help: "Total number of catalog cache misses",
		},
		[]string{"cache"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moviematch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HTTP API
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moviematch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveRecommend records one engine call.
func ObserveRecommend(operation, outcome string, start time.Time) {
	RecommendRequests.WithLabelValues(operation, outcome).Inc()
	RecommendDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// SetCorpus publishes the shape of the loaded feature matrix.
func SetCorpus(movies, features int) {
	CorpusSize.Set(float64(movies))
	FeatureCount.Set(float64(features))
}
