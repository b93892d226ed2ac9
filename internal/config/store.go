package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"tailscale.com/tsweb"

	"github.com/blackknights-robotics/motioncore/internal/httputil"
)

// Tunables is a read-only view of live tuning values. Missing keys yield the
// supplied default.
type Tunables interface {
	Get(key string, def float64) float64
}

// MapTunables is a fixed Tunables backed by a map.
type MapTunables map[string]float64

// Get returns m[key] or def.
func (m MapTunables) Get(key string, def float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// Store holds live tuning values loaded from a JSON object of numbers. It is
// safe for concurrent use; reads never block on file I/O.
type Store struct {
	path string

	mu       sync.RWMutex
	values   map[string]float64
	defaults map[string]float64
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		values:   make(map[string]float64),
		defaults: make(map[string]float64),
	}
}

// OpenStore loads a store from a JSON file. The file may be reloaded later
// with Reload.
func OpenStore(path string) (*Store, error) {
	s := NewStore()
	s.path = path
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the backing file and atomically replaces all values.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := readJSONFile(s.path)
	if err != nil {
		return err
	}
	values := make(map[string]float64)
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse tunables JSON: %w", err)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Get returns the value for key, or def when the key is absent. The default
// is remembered so that Snapshot lists every key the robot has asked for.
func (s *Store) Get(key string, def float64) float64 {
	s.mu.RLock()
	v, ok := s.values[key]
	_, seen := s.defaults[key]
	s.mu.RUnlock()
	if ok {
		return v
	}
	if !seen {
		s.mu.Lock()
		s.defaults[key] = def
		s.mu.Unlock()
	}
	return def
}

// Set overrides a value in memory.
func (s *Store) Set(key string, v float64) {
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
}

// Snapshot returns every known key with its effective value.
func (s *Store) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.values)+len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Keys returns the sorted keys of Snapshot.
func (s *Store) Keys() []string {
	snap := s.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AttachAdminRoutes serves the effective tunables at /debug/tunables and a
// reload trigger at /debug/tunables-reload.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("tunables", "effective tuning values", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s.Snapshot()); err != nil {
			http.Error(w, "failed to encode tunables", http.StatusInternalServerError)
		}
	})
	debug.HandleSilentFunc("tunables-reload", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequirePost(w, r) {
			return
		}
		if err := s.Reload(); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("reload failed: %v", err))
			return
		}
		fmt.Fprintf(w, "reloaded %d tunables", len(s.Keys()))
	})
}
