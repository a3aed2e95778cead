package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Search metrics
	SearchTotal    *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec

	// Guide resolution metrics
	ResolutionTotal *prometheus.CounterVec

	// Guide playback metrics
	GuidePlayTotal *prometheus.CounterVec

	// Suggestion cache metrics
	SuggestionCacheTotal *prometheus.CounterVec
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics creates a new Metrics instance with all required metrics
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	// Return existing instance if already created
	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		SearchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "search_total",
			Help: "Total number of search queries",
		}, []string{"type", "status"}),

		SearchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Search query duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"type", "status"}),

		ResolutionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guide_resolution_total",
			Help: "Total number of audio guide resolutions",
		}, []string{"pipeline", "outcome"}),

		GuidePlayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guide_play_total",
			Help: "Total number of counted guide playbacks",
		}, []string{"source"}),

		SuggestionCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suggestion_cache_total",
			Help: "Total number of suggestion cache lookups",
		}, []string{"result"}),
	}

	// Register metrics with the default registry
	registerMetrics(m)

	// Store as global instance
	globalMetrics = m

	return m
}

// registerMetrics registers all metrics with the default registry
func registerMetrics(m *Metrics) {
	// Try to register each metric, ignore if already registered
	registerOrGet(m.HTTPRequestTotal)
	registerOrGet(m.HTTPRequestDuration)
	registerOrGet(m.SearchTotal)
	registerOrGet(m.SearchDuration)
	registerOrGet(m.ResolutionTotal)
	registerOrGet(m.GuidePlayTotal)
	registerOrGet(m.SuggestionCacheTotal)
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		// If already registered, return the existing collector
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
