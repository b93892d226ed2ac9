// Package nettable mirrors named tables of numeric entries shared between the
// robot and its coprocessors.
//
// Reads never block: every Table answers from a local latest-value cache that
// background subscribers keep current.
package nettable

import (
	"sort"
	"sync"
)

// Table is a read-only view of one table.
type Table interface {
	// Number returns a scalar entry. Arrays of length one also count.
	Number(key string) (float64, bool)
	Array(key string) ([]float64, bool)
}

// Writer publishes entries into a table.
type Writer interface {
	SetNumber(key string, v float64)
	SetArray(key string, v []float64)
}

// cache is the latest-value store shared by every backend.
type cache struct {
	mu      sync.RWMutex
	entries map[string][]float64
}

func newCache() *cache { return &cache{entries: make(map[string][]float64)} }

func (c *cache) Number(key string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	if !ok || len(v) != 1 {
		return 0, false
	}
	return v[0], true
}

func (c *cache) Array(key string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), v...), true
}

func (c *cache) store(key string, v []float64) {
	c.mu.Lock()
	c.entries[key] = append([]float64(nil), v...)
	c.mu.Unlock()
}

func (c *cache) remove(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *cache) keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Memory is an in-process table.
type Memory struct {
	*cache
}

func NewMemory() *Memory { return &Memory{cache: newCache()} }

func (m *Memory) SetNumber(key string, v float64) { m.store(key, []float64{v}) }

func (m *Memory) SetArray(key string, v []float64) { m.store(key, v) }

// Delete removes an entry.
func (m *Memory) Delete(key string) { m.remove(key) }

// Keys returns the entry names in sorted order.
func (m *Memory) Keys() []string { return m.keys() }
