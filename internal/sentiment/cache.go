package sentiment

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/grouppulse/grouppulse/internal/database"
)

// cacheKey identifies a cached score. Scores cached for one scope are never
// visible to another.
type cacheKey struct {
	scope      database.Scope
	externalID int64
}

type cacheEntry struct {
	key   cacheKey
	score Score
}

// Cache is a fixed-capacity LRU of classification results, safe for
// concurrent use. Entries are written once per message; a hit never changes
// an existing score.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[cacheKey]*list.Element
}

// NewCache creates a cache holding up to capacity scores.
func NewCache(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[cacheKey]*list.Element, capacity),
	}, nil
}

// Get returns the cached score for a message, if present.
func (c *Cache) Get(scope database.Scope, externalID int64) (Score, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[cacheKey{scope: scope, externalID: externalID}]
	if !ok {
		return Score{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).score, true
}

// Put stores a score for a message, evicting the least recently used entry
// when full. An existing entry is left untouched so a stored classification
// can never be replaced.
func (c *Cache) Put(scope database.Scope, externalID int64, score Score) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{scope: scope, externalID: externalID}
	if elem, ok := c.entries[key]; ok {
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
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, score: score})
}

// Len returns the number of cached scores.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
