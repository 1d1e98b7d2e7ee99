package storage

import (
	"context"
	"sync"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

// MemoryStore is an in-process Store. Records are copied on the way in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*event.NormalizedEvent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*event.NormalizedEvent)}
}

// FindByFingerprint implements Store.
func (m *MemoryStore) FindByFingerprint(ctx context.Context, key string) (*event.NormalizedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.events[key]; ok {
		return e.Clone(), nil
	}
	return nil, ErrNotFound
}

// Upsert implements Store.
func (m *MemoryStore) Upsert(ctx context.Context, e *event.NormalizedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.Fingerprint] = e.Clone()
	return nil
}

// UpsertMany implements BatchUpserter.
func (m *MemoryStore) UpsertMany(ctx context.Context, events []*event.NormalizedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.events[e.Fingerprint] = e.Clone()
	}
	return nil
}

// Events returns every stored event ordered by start time.
func (m *MemoryStore) Events() []*event.NormalizedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedClones(m.events)
}

// List implements Lister.
func (m *MemoryStore) List(ctx context.Context, city string) ([]*event.NormalizedEvent, error) {
	return FilterCity(m.Events(), city), nil
}

// Len returns the number of stored events.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Close implements Closer.
func (m *MemoryStore) Close(context.Context) error {
	return nil
}
