package main

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cache is the uniform read-through cache used by the registries: bounded
// LRU with TTL, loader on miss, explicit invalidation before writes.
type cache[V any] struct {
	lru  *expirable.LRU[string, V]
	load func(key string) (V, error)
}

func newCache[V any](size int, ttl time.Duration, load func(string) (V, error)) *cache[V] {
	return &cache[V]{
		lru:  expirable.NewLRU[string, V](size, nil, ttl),
		load: load,
	}
}

func (c *cache[V]) getOrLoad(key string) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err := c.load(key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.lru.Add(key, v)
	return v, nil
}

func (c *cache[V]) invalidate(key string) {
	c.lru.Remove(key)
}
