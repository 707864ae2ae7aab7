package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lclpaste_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lclpaste_paste_updated_total",
		Help: "no. of pastes updated",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lclpaste_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	PasteListed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lclpaste_paste_listed_total",
			Help: "no. of listing queries served",
		},
		[]string{"listing"},
	)
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lclpaste_cache_hits_total",
		Help: "no. of cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lclpaste_cache_misses_total",
		Help: "no. of cache misses",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lclpaste_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lclpaste_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
)

func Init() {
}
