package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// lruCacheItem is the internal structure stored in the linked list.
type lruCacheItem[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// InMemoryLRUCache is a thread-safe, size-limited in-memory cache with LRU eviction and
// an optional per-entry TTL. On a miss it reads through to its fallback.
type InMemoryLRUCache[K comparable, V any] struct {
	maxSize  int
	ttl      time.Duration
	fallback Fetcher[K, V]
	now      func() time.Time

	mu    sync.Mutex
	ll    *list.List          // recency order, most recent at the front
	cache map[K]*list.Element // fast key lookup
}

// NewInMemoryLRUCache creates a cache holding at most maxSize entries. A ttl of zero keeps
// entries until they are evicted or invalidated.
func NewInMemoryLRUCache[K comparable, V any](maxSize int, ttl time.Duration, fallback Fetcher[K, V]) (*InMemoryLRUCache[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &InMemoryLRUCache[K, V]{
		maxSize:  maxSize,
		ttl:      ttl,
		fallback: fallback,
		now:      time.Now,
		ll:       list.New(),
		cache:    make(map[K]*list.Element),
	}, nil
}

// Fetch returns a live cached entry or reads through to the fallback. Fallback errors are
// returned unchanged and nothing is cached for them.
func (c *InMemoryLRUCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	if elem, ok := c.cache[key]; ok {
		item := elem.Value.(*lruCacheItem[K, V])
		if c.ttl <= 0 || c.now().Before(item.expiresAt) {
			c.ll.MoveToFront(elem)
			c.mu.Unlock()
			return item.value, nil
		}
		c.ll.Remove(elem)
		delete(c.cache, key)
	}
	c.mu.Unlock()

	var zero V
	if c.fallback == nil {
		return zero, fmt.Errorf("%w: key '%v' not in LRU cache and no fallback is configured", ErrCacheMiss, key)
	}

	sourceValue, err := c.fallback.Fetch(ctx, key)
	if err != nil {
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have populated the key while we were fetching.
	if elem, ok := c.cache[key]; ok {
		c.ll.MoveToFront(elem)
		return elem.Value.(*lruCacheItem[K, V]).value, nil
	}

	element := c.ll.PushFront(&lruCacheItem[K, V]{key: key, value: sourceValue, expiresAt: c.now().Add(c.ttl)})
	c.cache[key] = element
	if c.ll.Len() > c.maxSize {
		c.evict()
	}
	return sourceValue, nil
}

// Invalidate drops key from this layer only.
func (c *InMemoryLRUCache[K, V]) Invalidate(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.ll.Remove(elem)
		delete(c.cache, key)
	}
	return nil
}

// Len reports the number of cached entries, expired or not.
func (c *InMemoryLRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// evict removes the least recently used item. Callers hold mu.
func (c *InMemoryLRUCache[K, V]) evict() {
	elementToRemove := c.ll.Back()
	if elementToRemove != nil {
		itemToRemove := c.ll.Remove(elementToRemove).(*lruCacheItem[K, V])
		delete(c.cache, itemToRemove.key)
	}
}

// Close closes the fallback chain.
func (c *InMemoryLRUCache[K, V]) Close() error {
	if c.fallback != nil {
		return c.fallback.Close()
	}
	return nil
}
