package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilefetch_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tilefetch_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheSize tracks bytes written to the cache by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tilefetch_cache_size_bytes",
			Help: "Bytes written to the cache",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheStores tracks responses stored by the caching transport
	CacheStores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tilefetch_cache_stores_total",
			Help: "Total number of responses stored in the cache",
		},
	)

	// CacheSkipped tracks responses not stored by reason
	CacheSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilefetch_cache_skipped_total",
			Help: "Total number of responses not stored in the cache",
		},
		[]string{"reason"}, // "too_large", "expired"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilefetch_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "purge"
	)
)
