package redis

import (
	"context"
	"errors"
	"time"
)

// ResponseCache stores raw portal response bodies keyed by request URL.
type ResponseCache struct {
	cache *Cache
}

// NewResponseCache creates a response cache on top of cache.
func NewResponseCache(cache *Cache) *ResponseCache {
	return &ResponseCache{cache: cache}
}

// Get returns the cached body, or ok=false on a miss.
func (r *ResponseCache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	body, err := r.cache.GetBytes(ctx, ResponseKey(url))
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// Set caches body for ttl; TTLResponse when ttl is zero.
func (r *ResponseCache) Set(ctx context.Context, url string, body []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = TTLResponse
	}
	return r.cache.SetBytes(ctx, ResponseKey(url), body, ttl)
}

// Flush drops every cached response.
func (r *ResponseCache) Flush(ctx context.Context) (int, error) {
	return r.cache.DeleteByPattern(ctx, PrefixResponse+"*")
}
