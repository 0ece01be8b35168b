package journal

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory journal for tests and short-lived processes.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry                 // append order
	keys    map[string]map[int]bool // eventID -> sequence
	closed  bool
}

// NewMemoryStore creates a new in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]map[int]bool),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Reject the whole batch before storing any of it
	batch := make(map[string]map[int]bool)
	for _, e := range entries {
		if m.keys[e.EventID][e.Sequence] || batch[e.EventID][e.Sequence] {
			return ErrDuplicateEntry
		}
		if batch[e.EventID] == nil {
			batch[e.EventID] = make(map[int]bool)
		}
		batch[e.EventID][e.Sequence] = true
	}

	for _, e := range entries {
		if m.keys[e.EventID] == nil {
			m.keys[e.EventID] = make(map[int]bool)
		}
		m.keys[e.EventID][e.Sequence] = true
		e.Timestamp = e.Timestamp.UTC()
		m.entries = append(m.entries, e)
	}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, eventID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	out := []Entry{}
	for _, e := range m.entries {
		if e.EventID == eventID {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

// ListByType implements Store.
func (m *MemoryStore) ListByType(_ context.Context, eventType string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	out := []Entry{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].EventType != eventType {
			continue
		}
		out = append(out, m.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entries = nil
	m.keys = nil
	return nil
}

// Len returns the number of stored entries.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}
