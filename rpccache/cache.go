// Package rpccache memoizes hot ledger reads for a bounded time.
package rpccache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const DefaultSize = 1024

// Cache is a read-through cache bounded in both size and age. A key is
// written once by its loader and then served until it expires or is
// evicted. Concurrent misses on the same key share one loader call. Failed
// loads are never cached.
type Cache[K comparable, V any] struct {
	name  string
	lru   *expirable.LRU[K, V]
	group singleflight.Group
}

// New keeps up to size entries, each for ttl.
func New[K comparable, V any](name string, size int, ttl time.Duration) *Cache[K, V] {
	if size <= 0 {
		size = DefaultSize
	}
	return &Cache[K, V]{
		name: name,
		lru:  expirable.NewLRU[K, V](size, nil, ttl),
	}
}

// Get returns a live entry without loading.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// GetOrLoad returns the cached value for key or calls loader once and keeps
// its result.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, loader func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	sfKey := fmt.Sprintf("%v", key)
	ch := c.group.DoChan(sfKey, func() (interface{}, error) {
		// A concurrent caller may have filled the entry between Get and here.
		if v, ok := c.Get(key); ok {
			return v, nil
		}

		v, err := loader(ctx)
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		logger.WithFields(logger.Fields{
			"cache": c.name,
			"key":   sfKey,
		}).Trace("cache filled")
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.lru.Purge()
}

func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}
