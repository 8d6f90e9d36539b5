// Package metrics provides the Prometheus registry and HTTP handler shared by
// the runtime packages. Collectors are defined next to the code they measure
// (pager, poller, client, cache, checkpoint) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the runtime.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back what Registry collects.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the collected metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Pagination Metrics (pkg/pager):
//   - clientrt_pager_pages_total{operation} (Counter): Pages fetched
//   - clientrt_pager_items_total{operation} (Counter): Items received
//   - clientrt_pager_fetch_errors_total{operation} (Counter): Failed page fetches
//   - clientrt_pager_fetch_duration_seconds{operation} (Histogram): Page fetch latency
//
// Polling Metrics (pkg/poller):
//   - clientrt_poller_polls_total{operation, status} (Counter): Status checks by observed status
//   - clientrt_poller_terminal_total{operation, status} (Counter): Operations that finished
//   - clientrt_poller_errors_total{operation} (Counter): Failed status checks
//   - clientrt_poller_wait_seconds (Histogram): Time spent between status checks
//
// Request Metrics (pkg/client):
//   - clientrt_http_requests_total{method, status} (Counter): Requests by method and HTTP status
//   - clientrt_http_request_duration_seconds{method} (Histogram): Request duration
//   - clientrt_http_errors_total{class} (Counter): Errors by class (client, server, throttled, network)
//
// Cache Metrics (pkg/cache):
//   - clientrt_cache_hits_total (Counter): Lookups that found an entry
//   - clientrt_cache_misses_total (Counter): Lookups that found nothing
//   - clientrt_cache_revalidated_total (Counter): 304 responses served from an entry
//   - clientrt_cache_errors_total{operation} (Counter): Cache operation errors
//
// Checkpoint Metrics (pkg/checkpoint):
//   - clientrt_checkpoint_writes_total{kind} (Counter): Checkpoints written
//   - clientrt_checkpoint_errors_total{operation} (Counter): Store errors
//
// Example Prometheus Queries:
//
//   # Average pages per listing run
//   rate(clientrt_pager_pages_total[5m])
//
//   # Operations that failed server-side
//   sum by (operation) (rate(clientrt_poller_terminal_total{status="Failed"}[1h]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(clientrt_http_request_duration_seconds_bucket[5m]))
//
//   # Revalidation hit ratio
//   rate(clientrt_cache_revalidated_total[5m]) / rate(clientrt_http_requests_total{method="GET"}[5m])
