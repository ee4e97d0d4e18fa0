package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a typed TTL cache over go-cache, used for read-model snapshots
// the HTTP surface serves (aggregates refresh often; stale reads within the
// TTL are acceptable for the dashboard).
type Cache[V any] struct {
	backing *gocache.Cache
	ttl     time.Duration
}

func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache[V]{
		backing: gocache.New(ttl, 2*ttl),
		ttl:     ttl,
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	raw, found := c.backing.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	value, ok := raw.(V)
	if !ok {
		var zero V
		return zero, false
	}
	return value, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.backing.Set(key, value, gocache.DefaultExpiration)
}

func (c *Cache[V]) Invalidate(key string) {
	c.backing.Delete(key)
}

func (c *Cache[V]) Flush() {
	c.backing.Flush()
}

func (c *Cache[V]) Len() int {
	return c.backing.ItemCount()
}
