package cas

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Proxy-granting tickets arrive on a separate, unauthenticated callback
// keyed by an IOU, so the cache bridging the two requests is both
// capacity-bounded and time-bounded: unauthenticated IOU submissions cannot
// grow it without limit, and stale pairs age out on their own.
const (
	defaultIOUCacheSize = 1024
	defaultIOUCacheTTL  = 5 * time.Minute
)

// IOUCache pairs proxy-granting-ticket IOUs with the tickets CAS delivers
// out of band. Entries are consumed at most once; the mutex makes the
// read-and-evict in Take a single critical section, since the lru's own lock
// covers Get and Remove separately.
type IOUCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, string]
}

// NewIOUCache creates a cache with the given capacity and entry TTL; zero
// values select the defaults.
func NewIOUCache(size int, ttl time.Duration) *IOUCache {
	if size <= 0 {
		size = defaultIOUCacheSize
	}
	if ttl <= 0 {
		ttl = defaultIOUCacheTTL
	}
	return &IOUCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Put records the IOU to proxy-granting-ticket pairing delivered by the CAS
// callback.
func (c *IOUCache) Put(iou, pgt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(iou, pgt)
}

// Take returns the proxy-granting ticket for an IOU and evicts it, so a
// replayed or concurrent second read misses. Validation fails closed on a
// miss.
func (c *IOUCache) Take(iou string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pgt, ok := c.lru.Get(iou)
	if ok {
		c.lru.Remove(iou)
	}
	return pgt, ok
}

// Len returns the number of live entries.
func (c *IOUCache) Len() int {
	return c.lru.Len()
}
