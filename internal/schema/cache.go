package schema

import (
	"context"
	"sync"
	"time"

	"github.com/askdb/askdb/internal/observability"
)

// Cached serves schema documents from memory, keyed by schema name. A zero
// TTL keeps entries until ClearCache is called.
type Cached struct {
	source Introspector
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	doc      Document
	loadedAt time.Time
}

func NewCached(source Introspector, ttl time.Duration) *Cached {
	return &Cached{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cached) GetSchema(ctx context.Context, schemaName string) (Document, error) {
	schemaName = NormalizeName(schemaName)

	c.mu.RLock()
	entry, ok := c.entries[schemaName]
	c.mu.RUnlock()
	if ok && !c.expired(entry) {
		observability.ObserveSchemaCache(true)
		return entry.doc.Clone(), nil
	}
	observability.ObserveSchemaCache(false)

	doc, err := c.source.GetSchema(ctx, schemaName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[schemaName] = cacheEntry{doc: doc.Clone(), loadedAt: c.now()}
	c.mu.Unlock()
	return doc, nil
}

// ClearCache drops the named entries, or every entry when called without names.
func (c *Cached) ClearCache(schemaNames ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(schemaNames) == 0 {
		c.entries = make(map[string]cacheEntry)
		return
	}
	for _, name := range schemaNames {
		delete(c.entries, NormalizeName(name))
	}
}

func (c *Cached) expired(entry cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(entry.loadedAt) >= c.ttl
}
