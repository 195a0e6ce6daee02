package providers

import (
	"time"

	"feedmirror/internal/structures"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	IncMerges(changed bool)
	IncReplays()
	IncUpdatesPublished()
	IncBackfills(kind string)
	IncFetchErrors(op string)
	SetEntitiesTotal(kind string, count int)
	SetLoading(count int)
}

type MetricsProvider struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	merges           *prometheus.CounterVec
	replays          prometheus.Counter
	updatesPublished prometheus.Counter
	backfills        *prometheus.CounterVec
	fetchErrors      *prometheus.CounterVec
	entitiesTotal    *prometheus.GaugeVec
	loading          prometheus.Gauge
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) IncMerges(changed bool) {
	if changed {
		m.merges.WithLabelValues("changed").Inc()
	} else {
		m.merges.WithLabelValues("noop").Inc()
	}
}

func (m *MetricsProvider) IncReplays() {
	m.replays.Inc()
}

func (m *MetricsProvider) IncUpdatesPublished() {
	m.updatesPublished.Inc()
}

func (m *MetricsProvider) IncBackfills(kind string) {
	m.backfills.WithLabelValues(kind).Inc()
}

func (m *MetricsProvider) IncFetchErrors(op string) {
	m.fetchErrors.WithLabelValues(op).Inc()
}

func (m *MetricsProvider) SetEntitiesTotal(kind string, count int) {
	m.entitiesTotal.WithLabelValues(kind).Set(float64(count))
}

func (m *MetricsProvider) SetLoading(count int) {
	m.loading.Set(float64(count))
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	return &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feedmirror_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedmirror_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "feedmirror_cache_hits_total",
			Help: "Total number of response cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "feedmirror_cache_misses_total",
			Help: "Total number of response cache misses",
		}),

		merges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feedmirror_merges_total",
			Help: "Total number of update merges by outcome",
		}, []string{"outcome"}),

		replays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "feedmirror_replays_total",
			Help: "Total number of full-state replays broadcast to consumers",
		}),

		updatesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "feedmirror_updates_published_total",
			Help: "Total number of update events published on the bus",
		}),

		backfills: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feedmirror_backfills_total",
			Help: "Total number of backfill fetches by kind",
		}, []string{"kind"}),

		fetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feedmirror_fetch_errors_total",
			Help: "Total number of failed upstream fetches by operation",
		}, []string{"op"}),

		entitiesTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feedmirror_entities_total",
			Help: "Number of entities currently held in the mirror",
		}, []string{"kind"}),

		loading: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "feedmirror_loading",
			Help: "Number of in-flight upstream operations",
		}),
	}
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits()                                    {}
func (n *noopMetrics) IncCacheMisses()                                  {}
func (n *noopMetrics) IncMerges(_ bool)                                 {}
func (n *noopMetrics) IncReplays()                                      {}
func (n *noopMetrics) IncUpdatesPublished()                             {}
func (n *noopMetrics) IncBackfills(_ string)                            {}
func (n *noopMetrics) IncFetchErrors(_ string)                          {}
func (n *noopMetrics) SetEntitiesTotal(_ string, _ int)                 {}
func (n *noopMetrics) SetLoading(_ int)                                 {}
