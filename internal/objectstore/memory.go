package objectstore

import (
	"context"
	"sync"
)

// PutRecord is one observed Put call.
type PutRecord struct {
	Key  string
	Body []byte
}

// MemoryStore keeps objects in memory. It backs dry runs and tests.
type MemoryStore struct {
	name    string
	mu      sync.Mutex
	objects map[string][]byte
	puts    []PutRecord
	failFn  func(key string) error
}

// NewMemoryStore returns an empty store reporting name as its location.
func NewMemoryStore(name string) *MemoryStore {
	if name == "" {
		name = "memory"
	}
	return &MemoryStore{name: name, objects: make(map[string][]byte)}
}

// FailWith installs a hook that can reject Puts. A nil hook accepts everything.
func (m *MemoryStore) FailWith(fn func(key string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFn = fn
}

// Put stores a copy of body under key.
func (m *MemoryStore) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failFn != nil {
		if err := m.failFn(key); err != nil {
			return err
		}
	}

	cp := append([]byte(nil), body...)
	m.objects[key] = cp
	m.puts = append(m.puts, PutRecord{Key: key, Body: cp})
	return nil
}

// Location returns the store name.
func (m *MemoryStore) Location() string {
	return m.name
}

// Get returns the current object stored under key.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	return body, ok
}

// Len returns the number of distinct keys stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Puts returns every successful Put in call order, including overwrites.
func (m *MemoryStore) Puts() []PutRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PutRecord(nil), m.puts...)
}
