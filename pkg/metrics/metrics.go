// Package metrics exposes the Prometheus registry used by tile-fetch.
// Metrics themselves are defined next to the code that records them
// (transport, batch, fetch, cache) and registered through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the exposition format for everything in Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Transport Metrics (pkg/transport):
//   - tilefetch_requests_total{method, status} (Counter): Finished requests by method and HTTP status
//   - tilefetch_request_duration_seconds{method} (Histogram): Request duration by method
//   - tilefetch_requests_inflight (Gauge): Requests issued and not yet finished
//   - tilefetch_errors_total{class} (Counter): Failures by class (client, server, network)
//   - tilefetch_aborts_total (Counter): Requests aborted before completion
//
// Batch Metrics (pkg/batch):
//   - tilefetch_batches_total{outcome} (Counter): Batches by outcome (complete, cancelled)
//   - tilefetch_batch_requests_total{outcome} (Counter): Batch requests by outcome (ok, error, aborted)
//   - tilefetch_batch_duration_seconds (Histogram): Wall time of FetchAll
//   - tilefetch_batch_size (Histogram): Requests per batch
//
// Fetch Metrics (pkg/fetch):
//   - tilefetch_url_checks_total{result} (Counter): CheckExists outcomes (ok, failed)
//   - tilefetch_redirects_followed_total (Counter): Permanent redirects followed
//   - tilefetch_loads_total{result} (Counter): Load outcomes (ok, failed)
//
// Cache Metrics (pkg/cache):
//   - tilefetch_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - tilefetch_cache_misses_total (Counter): Cache misses
//   - tilefetch_cache_size_bytes{layer="redis"} (Gauge): Bytes written to the cache
//   - tilefetch_cache_stores_total (Counter): Responses stored
//   - tilefetch_cache_skipped_total{reason} (Counter): Responses not stored (too_large, expired)
//   - tilefetch_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(tilefetch_cache_hits_total[5m])) /
//   (sum(rate(tilefetch_cache_hits_total[5m])) + sum(rate(tilefetch_cache_misses_total[5m])))
//
//   # Share of batch requests that failed
//   sum(rate(tilefetch_batch_requests_total{outcome="error"}[5m])) /
//   sum(rate(tilefetch_batch_requests_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(tilefetch_request_duration_seconds_bucket[5m]))
