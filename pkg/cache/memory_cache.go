// Package cache provides a TTL in-memory cache safe for concurrent use.
// The supplier cost cache and webhook replay table are built on it.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value      any
	expiration int64 // unix nanos, 0 = no expiry
}

// MemoryCache is a concurrent map with per-key TTL. Expired entries are
// reaped by a background sweeper until Stop is called.
type MemoryCache struct {
	items    sync.Map
	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a cache and starts its sweeper. sweepInterval <= 0 defaults to
// one minute.
func New(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	c := &MemoryCache{stop: make(chan struct{})}
	go c.sweep(sweepInterval)
	return c
}

// Set stores a value with a TTL. A zero TTL never expires.
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}
	c.items.Store(key, &entry{value: value, expiration: exp})
}

// Get returns the value for key if present and unexpired.
func (c *MemoryCache) Get(key string) (any, bool) {
	v, ok := c.items.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if e.expiration > 0 && time.Now().UnixNano() > e.expiration {
		c.items.Delete(key)
		return nil, false
	}
	return e.value, true
}

// GetOrCompute returns the cached value for key, computing and storing it
// with the given TTL on a miss. Concurrent misses may compute more than
// once; the last write wins.
func (c *MemoryCache) GetOrCompute(key string, ttl time.Duration, compute func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(key string) {
	c.items.Delete(key)
}

// Clear removes all keys.
func (c *MemoryCache) Clear() {
	c.items.Range(func(key, _ any) bool {
		c.items.Delete(key)
		return true
	})
}

// Len counts unexpired entries.
func (c *MemoryCache) Len() int {
	n := 0
	now := time.Now().UnixNano()
	c.items.Range(func(_, v any) bool {
		e := v.(*entry)
		if e.expiration == 0 || now <= e.expiration {
			n++
		}
		return true
	})
	return n
}

// Stop terminates the background sweeper. The cache remains usable but no
// longer reaps expired entries proactively.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now().UnixNano()
			c.items.Range(func(key, v any) bool {
				e := v.(*entry)
				if e.expiration > 0 && now > e.expiration {
					c.items.Delete(key)
				}
				return true
			})
		}
	}
}
