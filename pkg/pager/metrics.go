package pager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for listing operations.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrt_pager_pages_total",
		Help: "Total pages fetched by operation",
	}, []string{"operation"})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrt_pager_items_total",
		Help: "Total items yielded at the item level by operation",
	}, []string{"operation"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrt_pager_fetch_errors_total",
		Help: "Total page fetch failures by operation",
	}, []string{"operation"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clientrt_pager_fetch_duration_seconds",
		Help:    "Page fetch duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})
)
