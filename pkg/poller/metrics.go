package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for long-running operations.
var (
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrt_poller_polls_total",
		Help: "Total status checks by operation and observed status",
	}, []string{"operation", "status"})

	terminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrt_poller_terminal_total",
		Help: "Total operations that reached a terminal status",
	}, []string{"operation", "status"})

	pollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrt_poller_errors_total",
		Help: "Total status checks that failed with a transport or decoding error",
	}, []string{"operation"})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clientrt_poller_wait_seconds",
		Help:    "Time spent waiting between status checks",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)
