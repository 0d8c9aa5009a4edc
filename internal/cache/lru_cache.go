package cache

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"time"
)

// entry represents a cached vector
type entry struct {
	key       string
	value     []float32
	expiresAt time.Time
}

// LRUCache is an in-process Least Recently Used vector cache. It is safe for
// concurrent use.
type LRUCache struct {
	mu         sync.Mutex
	maxSize    int
	ttl        time.Duration
	cache      map[string]*list.Element
	doubleList *list.List
	now        func() time.Time
}

// NewLRUCache creates a new LRU cache holding at most maxSize vectors. A zero
// ttl keeps entries until they are evicted.
func NewLRUCache(maxSize int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		maxSize:    maxSize,
		ttl:        ttl,
		cache:      make(map[string]*list.Element),
		doubleList: list.New(),
		now:        time.Now,
	}
}

// Set adds or updates a vector in the cache. The cache keeps its own copy.
func (l *LRUCache) Set(_ context.Context, key string, value []float32) {
	if l.maxSize <= 0 || len(value) == 0 {
		return
	}
	value = slices.Clone(value)
	l.mu.Lock()
	defer l.mu.Unlock()

	var expiresAt time.Time
	if l.ttl > 0 {
		expiresAt = l.now().Add(l.ttl)
	}

	// If key exists, update its value and move to front
	if element, exists := l.cache[key]; exists {
		l.doubleList.MoveToFront(element)
		e := element.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		return
	}

	ele := l.doubleList.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	l.cache[key] = ele

	// Remove oldest if cache is full
	if l.doubleList.Len() > l.maxSize {
		if oldest := l.doubleList.Back(); oldest != nil {
			l.removeElement(oldest)
		}
	}
}

// Get retrieves a vector from the cache by key
func (l *LRUCache) Get(_ context.Context, key string) ([]float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	element, exists := l.cache[key]
	if !exists {
		return nil, false
	}
	e := element.Value.(*entry)
	if !e.expiresAt.IsZero() && l.now().After(e.expiresAt) {
		l.removeElement(element)
		return nil, false
	}

	// Move to front (most recently used)
	l.doubleList.MoveToFront(element)
	return slices.Clone(e.value), true
}

// Len returns the number of cached vectors.
func (l *LRUCache) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doubleList.Len()
}

// removeElement removes an element from the cache
func (l *LRUCache) removeElement(element *list.Element) {
	l.doubleList.Remove(element)
	e := element.Value.(*entry)
	delete(l.cache, e.key)
}
