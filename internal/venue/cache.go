package venue

import (
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

// Cache holds venues discovered during one run. Entries are only ever added;
// a key that is already present keeps its first value. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	table   *Table
	entries map[string]*Entry // city|venue key -> entry
	order   []string
}

// NewCache creates an empty run-scoped cache keyed with t's normalization.
func NewCache(t *Table) *Cache {
	return &Cache{
		table:   t,
		entries: make(map[string]*Entry),
	}
}

// Get returns the cached venue for name in city, or nil.
func (c *Cache) Get(city, name string) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[c.cacheKey(city, name)]
}

// Add stores e unless an entry with the same key exists. Reports whether e was
// added.
func (c *Cache) Add(e *Entry) bool {
	key := c.cacheKey(e.City, e.Name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return false
	}
	c.entries[key] = e
	c.order = append(c.order, key)
	return true
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns the cached venues in the order they were discovered.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, *c.entries[k])
	}
	return out
}

// WriteYAML writes the discovered venues as a "venues:" document that can be
// reviewed and merged into the curated table.
func (c *Cache) WriteYAML(w io.Writer) error {
	doc := struct {
		Venues []Entry `yaml:"venues"`
	}{Venues: c.Entries()}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding discovered venues: %w", err)
	}
	return enc.Close()
}

// cacheKey generates a cache key from city and venue name.
func (c *Cache) cacheKey(city, name string) string {
	return city + "|" + c.table.venueKey(name)
}
