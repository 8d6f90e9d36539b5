package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups that found an entry.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clientrt_cache_hits_total",
			Help: "Total number of revalidation cache hits",
		},
	)

	// CacheMisses tracks lookups that found nothing.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clientrt_cache_misses_total",
			Help: "Total number of revalidation cache misses",
		},
	)

	// Revalidated tracks 304 responses answered from a stored entry.
	Revalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clientrt_cache_revalidated_total",
			Help: "Total number of 304 Not Modified responses served from cache",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientrt_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "touch"
	)
)
