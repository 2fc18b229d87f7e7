package llm

import (
	"container/list"
	"sync"
	"time"
)

// responseCache is a bounded, TTL-expiring LRU cache keyed by a hash of the
// prompt (or path+mtime for images, per spec.md §4.4). Built on
// container/list since no third-party LRU cache appears anywhere in the
// example pack; this is the one piece of the LLM facade left on the
// standard library.
type responseCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxItems int
	items    map[string]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key     string
	value   any
	expires time.Time
}

func newResponseCache(ttl time.Duration, maxItems int) *responseCache {
	return &responseCache{
		ttl:      ttl,
		maxItems: maxItems,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *responseCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.value, true
}

func (c *responseCache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = value
		el.Value.(*cacheEntry).expires = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, value: value, expires: time.Now().Add(c.ttl)})
	c.items[key] = el

	for c.order.Len() > c.maxItems {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

func (c *responseCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
