// Package cache provides an optional Redis-backed response cache for
// tile-fetch, exposed as a transport.Transport decorator.
//
// The cache layer implements:
//
// - Response caching for successful GET requests (HTTP 200)
// - TTL taken from the Expires header, DefaultTTL otherwise
// - Cache-Control: no-store responses are never stored
// - Deterministic cache keys; API keys and tokens enter them only as a
//   digest, so each credential has its own entries
// - Per-entry size limit and TTL cap (ManagerConfig)
// - Host-wide invalidation with PurgeHost
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, cache.DefaultManagerConfig())
//	cached := cache.NewTransport(httpTransport, manager, logger)
//
//	// cached is used wherever a transport.Transport is expected
//	client, err := fetch.New(fetch.DefaultConfig(cached))
//
// HEAD requests (existence checks) always go to the network.
// A GET request served from the cache yields a handle that is already
// complete, so a batch made entirely of cache hits finishes after a single
// polling iteration.
//
// # Metrics
//
//   - tilefetch_cache_hits_total{layer="redis"} - Cache hits
//   - tilefetch_cache_misses_total - Cache misses
//   - tilefetch_cache_size_bytes{layer="redis"} - Bytes written to cache
//   - tilefetch_cache_stores_total - Responses stored
//   - tilefetch_cache_skipped_total{reason} - Responses not stored
//   - tilefetch_cache_errors_total{operation} - Cache operation errors
package cache
