// Package httpcache stores whole HTTP responses in a cache.GenericCache and
// serves them back while they are younger than the configured TTL.
package httpcache

import (
	"time"

	"github.com/iTrooz/bandcache/internal/cache"
)

func New(store cache.GenericCache, ttl time.Duration) *HTTPCache {
	return &HTTPCache{
		cache: store,
		ttl:   ttl,
		now:   time.Now,
	}
}
