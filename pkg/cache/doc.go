// Package cache provides an in-session HTTP response cache with a Redis backend.
//
// The cache never serves a response without asking the upstream first: it
// only remembers validators (ETag, Last-Modified) so that a repeated request
// can be answered with 304 Not Modified and the stored body.
//
// Every Manager owns a random session namespace. Keys from one session are
// never read by another, and Purge removes them when the session ends, so no
// result survives a restart.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//	defer manager.Purge(context.Background())
//
//	key := cache.CacheKey{
//		Endpoint:    "pokeapi.co/api/v2/pokemon",
//		QueryParams: url.Values{"limit": []string{"20"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// plain request
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Metrics
//
//   - catalog_cache_hits_total{layer="redis"}
//   - catalog_cache_misses_total
//   - catalog_cache_size_bytes{layer="redis"}
//   - catalog_304_responses_total
//   - catalog_conditional_requests_total
//   - catalog_cache_errors_total{operation}
package cache
