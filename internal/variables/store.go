// Package variables stores values captured from responses for reuse by
// later steps in a suite.
package variables

import "sync"

// Store holds named string values scoped to one suite run.
type Store interface {
	// Set stores a value under the given name, replacing any previous value.
	Set(name, value string)

	// Get retrieves a value by name. Returns (value, true) if present,
	// or ("", false) otherwise.
	Get(name string) (string, bool)

	// Snapshot returns a copy of all stored values.
	Snapshot() map[string]string

	// Merge combines stored values with a set of defaults. Stored values
	// win over defaults with the same name. Returns the merged map.
	Merge(defaults map[string]string) map[string]string

	// Clear removes all stored values.
	Clear()
}

// MemoryStore is a map-backed Store, safe for concurrent use so readers
// like progress displays can observe values while a step runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewStore returns an empty MemoryStore.
func NewStore() Store {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

// Seed returns a MemoryStore preloaded with the given values.
func Seed(initial map[string]string) Store {
	s := &MemoryStore{
		values: make(map[string]string, len(initial)),
	}
	for name, value := range initial {
		s.values[name] = value
	}
	return s
}

// Set stores a value under the given name, replacing any previous value.
func (m *MemoryStore) Set(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

// Get retrieves a value by name. Returns (value, true) if present,
// or ("", false) otherwise.
func (m *MemoryStore) Get(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[name]
	return value, ok
}

// Snapshot returns a copy of all stored values.
func (m *MemoryStore) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string, len(m.values))
	for name, value := range m.values {
		result[name] = value
	}
	return result
}

// Merge combines stored values with a set of defaults. Stored values
// win over defaults with the same name. Returns the merged map.
func (m *MemoryStore) Merge(defaults map[string]string) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string, len(defaults)+len(m.values))
	for name, value := range defaults {
		result[name] = value
	}
	for name, value := range m.values {
		result[name] = value
	}
	return result
}

// Clear removes all stored values.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
}
