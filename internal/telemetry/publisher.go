// Package telemetry publishes named numeric values out of the control loop.
//
// Publishing is fire-and-forget: implementations must not block the caller
// and never report failures back into the loop.
package telemetry

import (
	"strings"
	"sync"
)

// Publisher accepts named scalar and array values.
type Publisher interface {
	Publish(key string, v float64)
	PublishArray(key string, v []float64)
}

// PublishBool publishes b as 1 or 0.
func PublishBool(p Publisher, key string, b bool) {
	if b {
		p.Publish(key, 1)
		return
	}
	p.Publish(key, 0)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(string, float64)        {}
func (Nop) PublishArray(string, []float64) {}

// Prefixed returns a publisher that namespaces keys under table, joined with
// a slash.
func Prefixed(p Publisher, table string) Publisher {
	if p == nil {
		return Nop{}
	}
	return prefixed{inner: p, prefix: strings.TrimSuffix(table, "/") + "/"}
}

type prefixed struct {
	inner  Publisher
	prefix string
}

func (p prefixed) Publish(key string, v float64) { p.inner.Publish(p.prefix+key, v) }

func (p prefixed) PublishArray(key string, v []float64) { p.inner.PublishArray(p.prefix+key, v) }

// Memory keeps the latest value of every key. It is used by tests and by the
// debug snapshot endpoint.
type Memory struct {
	mu     sync.RWMutex
	values map[string]float64
	arrays map[string][]float64
}

// NewMemory returns an empty Memory publisher.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]float64), arrays: make(map[string][]float64)}
}

func (m *Memory) Publish(key string, v float64) {
	m.mu.Lock()
	m.values[key] = v
	m.mu.Unlock()
}

func (m *Memory) PublishArray(key string, v []float64) {
	cp := append([]float64(nil), v...)
	m.mu.Lock()
	m.arrays[key] = cp
	m.mu.Unlock()
}

// Value returns the latest scalar for key.
func (m *Memory) Value(key string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Array returns the latest array for key.
func (m *Memory) Array(key string) ([]float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.arrays[key]
	return v, ok
}
