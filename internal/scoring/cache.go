package scoring

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"ally/pkg/metrics"
)

// resultCache is a fixed-capacity LRU keyed by (provider, request
// fingerprint). It short-circuits identical repeated signal calls; the oldest
// entry is evicted when the cache is full. Safe under concurrent access.
type resultCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type cacheEntry struct {
	key   string
	value interface{}
}

func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &resultCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// fingerprint hashes the request text so cache keys stay bounded regardless
// of message length.
func fingerprint(provider, text string) string {
	sum := sha256.Sum256([]byte(text))
	return provider + ":" + hex.EncodeToString(sum[:])
}

func (c *resultCache) get(provider, text string) (interface{}, bool) {
	key := fingerprint(provider, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		metrics.SignalCacheHitsTotal.WithLabelValues(provider, "miss").Inc()
		return nil, false
	}
	c.order.MoveToFront(elem)
	metrics.SignalCacheHitsTotal.WithLabelValues(provider, "hit").Inc()
	return elem.Value.(*cacheEntry).value, true
}

func (c *resultCache) put(provider, text string, value interface{}) {
	key := fingerprint(provider, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).value = value
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value})
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
