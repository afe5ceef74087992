package vault

import (
	"sync"
	"time"
)

type ttlItem[T any] struct {
	v   T
	exp time.Time
}

// TTLCache is a small goroutine-safe key/value cache with a fixed capacity
// and a time-to-live applied to each entry.
//
//   - Expiration: entries expire lazily on Get.
//   - Eviction: when full, the oldest inserted key is evicted (FIFO, not LRU).
//     Re-setting an existing key refreshes its expiry without growing the queue.
//   - Zero value: not ready for use; call NewTTLCache.
type TTLCache[T any] struct {
	mu   sync.Mutex
	ttl  time.Duration
	size int
	now  func() time.Time
	data map[string]ttlItem[T]
	keys []string
}

// NewTTLCache constructs a TTLCache with the given maximum size and TTL per
// entry. A non-positive ttl disables caching; a non-positive size is treated
// as one.
func NewTTLCache[T any](size int, ttl time.Duration) *TTLCache[T] {
	if size <= 0 {
		size = 1
	}
	return &TTLCache[T]{ttl: ttl, size: size, now: time.Now, data: make(map[string]ttlItem[T])}
}

// WithClock replaces the time source. Intended for tests.
func (c *TTLCache[T]) WithClock(now func() time.Time) *TTLCache[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Get returns the cached value for k if present and not expired.
func (c *TTLCache[T]) Get(k string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.data[k]
	if !ok {
		return zero, false
	}
	if !c.now().Before(it.exp) {
		delete(c.data, k)
		c.dropKey(k)
		return zero, false
	}
	return it.v, true
}

// Set inserts or replaces the value for k.
func (c *TTLCache[T]) Set(k string, v T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if _, ok := c.data[k]; ok {
		c.data[k] = ttlItem[T]{v: v, exp: exp}
		return
	}
	for len(c.data) >= c.size && len(c.keys) > 0 {
		old := c.keys[0]
		c.keys = c.keys[1:]
		delete(c.data, old)
	}
	c.data[k] = ttlItem[T]{v: v, exp: exp}
	c.keys = append(c.keys, k)
}

// Len reports the number of stored entries, expired or not.
func (c *TTLCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *TTLCache[T]) dropKey(k string) {
	for i, key := range c.keys {
		if key == k {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			return
		}
	}
}
