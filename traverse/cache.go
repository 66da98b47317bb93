package traverse

import (
	"sync"

	"github.com/tailbits/hypermedia/model"
)

// Cache is the session-scoped store of decoded resources. It is safe for
// concurrent use: reads share a lock, writes are exclusive.
type Cache struct {
	mu      sync.RWMutex
	entries map[model.Identifier]model.Resource
	// hrefs maps fetched URLs to the identifier they decoded to.
	hrefs map[string]model.Identifier
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[model.Identifier]model.Resource),
		hrefs:   make(map[string]model.Identifier),
	}
}

func (c *Cache) Get(id model.Identifier) (model.Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res, ok := c.entries[id]
	return res, ok
}

// Lookup returns the resource last fetched from href.
func (c *Cache) Lookup(href string) (model.Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.hrefs[href]
	if !ok {
		return model.Resource{}, false
	}
	res, ok := c.entries[id]
	return res, ok
}

// PutAll stores resources, replacing older entries with the same identifier.
func (c *Cache) PutAll(resources ...model.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, res := range resources {
		c.entries[res.Identifier()] = res
	}
}

// PutFetched stores the result of fetching href in one exclusive section.
func (c *Cache) PutFetched(href string, res model.Resource, included ...model.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, inc := range included {
		c.entries[inc.Identifier()] = inc
	}
	c.entries[res.Identifier()] = res
	if href != "" {
		c.hrefs[href] = res.Identifier()
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *Cache) Invalidate(id model.Identifier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[model.Identifier]model.Resource)
	c.hrefs = make(map[string]model.Identifier)
}
