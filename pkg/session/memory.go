package session

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps session records in process memory. It is the default
// backend for the demo server and the test suite; its method set matches the
// TicketStore backend callbacks so it binds directly:
//
//	store, err := session.NewTicketStore(session.TicketStoreOptions{
//		Codec:         codec,
//		GetSession:    mem.Get,
//		StoreSession:  mem.Put,
//		RemoveSession: mem.Delete,
//		RenewSession:  mem.Put,
//	})
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]Record)}
}

// Get returns the record under key, or nil when absent or expired.
func (m *MemoryBackend) Get(ctx context.Context, key string) (*Record, error) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		m.mu.Lock()
		delete(m.records, key)
		m.mu.Unlock()
		return nil, nil
	}
	out := rec
	return &out, nil
}

// Put stores or replaces the record under its session key.
func (m *MemoryBackend) Put(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	m.records[rec.SessionKey] = *rec
	m.mu.Unlock()
	return nil
}

// Delete removes the record under key. Absent keys are not an error.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live records.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
