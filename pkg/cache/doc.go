// Package cache provides a Redis-backed revalidation cache for GET responses.
//
// The cache never serves a stored response on its own. Every lookup is
// followed by a conditional request to the server; the stored body is used
// only when the server answers 304 Not Modified. This keeps pagination and
// polling semantics intact: each page fetch and each status check still
// reaches the server exactly once.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, cache.DefaultTTL)
//
//	key := cache.NewKey(req.Method, req.URL)
//	entry, err := manager.Get(ctx, key)
//	if err == nil {
//		cache.AddConditionalHeaders(&req, entry)
//	}
//
// # Storing Responses
//
// Only successful GET responses carrying an ETag or Last-Modified header can
// be revalidated, so only those are stored:
//
//	if entry, ok := cache.FromResponse(resp); ok {
//		_ = manager.Set(ctx, key, entry)
//	}
//
// The TTL passed to NewManager bounds how long an entry stays in Redis. It
// does not make the entry fresh.
//
// # Metrics
//
//   - clientrt_cache_hits_total - lookups that found an entry
//   - clientrt_cache_misses_total - lookups that found nothing
//   - clientrt_cache_revalidated_total - 304 responses served from an entry
//   - clientrt_cache_errors_total{operation} - Redis or decoding failures
package cache
