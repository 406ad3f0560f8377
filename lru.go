package chronos

import "sync"

// lruCache is a small LRU byte cache used by remote snapshot backends
// to avoid refetching hot snapshots.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string][]byte
	order    []string
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		items:    make(map[string][]byte),
	}
}

func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.moveToEnd(key)
	return data, true
}

func (c *lruCache) put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; ok {
		c.items[key] = data
		c.moveToEnd(key)
		return
	}

	for len(c.items) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}

	c.items[key] = data
	c.order = append(c.order, key)
}

func (c *lruCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *lruCache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			break
		}
	}
}
