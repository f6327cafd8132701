// Package metrics exposes the Prometheus registry shared by the catalog
// browser. Collectors are defined next to the code they measure (browse,
// client, cache, ratelimit) via promauto; this package only serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the catalog browser.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Fetch Orchestration Metrics (pkg/browse):
//   - catalog_fetch_outcomes_total{lineage, outcome} (Counter): settled fetches by lineage
//     (limit, category, categories) and outcome (committed, shadowed, failed, superseded)
//   - catalog_fetch_duration_seconds{lineage} (Histogram): fetch latency by lineage
//   - catalog_fetches_in_flight{lineage} (Gauge): outstanding fetches by lineage
//
// Rate Limit Metrics (pkg/ratelimit):
//   - catalog_rate_limit_remaining (Gauge): upstream requests remaining, -1 when unknown
//   - catalog_rate_limit_blocks_total (Counter): requests refused after a 429
//   - catalog_rate_limit_wait_seconds (Histogram): time spent in the token bucket
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - catalog_cache_misses_total (Counter): Cache misses
//   - catalog_cache_size_bytes{layer="redis"} (Gauge): bytes cached by this session
//   - catalog_304_responses_total (Counter): 304 Not Modified responses
//   - catalog_conditional_requests_total (Counter): Conditional requests sent
//   - catalog_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - catalog_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status
//   - catalog_request_duration_seconds{endpoint} (Histogram): request duration by endpoint
//   - catalog_errors_total{class} (Counter): errors by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client, only with http.max_attempts > 1):
//   - catalog_retries_total{error_class} (Counter): Retry attempts by error class
//   - catalog_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - catalog_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Share of fetches discarded as stale
//   sum(rate(catalog_fetch_outcomes_total{outcome="superseded"}[5m])) /
//   sum(rate(catalog_fetch_outcomes_total[5m]))
//
//   # Failed category fetches
//   rate(catalog_fetch_outcomes_total{lineage="category",outcome="failed"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
