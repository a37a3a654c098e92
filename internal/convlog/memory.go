package convlog

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string][]Entry
	defaultLimit int
	clock        func() time.Time
}

// NewMemoryStore keeps entries in process memory. defaultLimit caps List
// when the caller passes limit <= 0; zero means unlimited.
func NewMemoryStore(defaultLimit int) *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string][]Entry),
		defaultLimit: defaultLimit,
		clock:        time.Now,
	}
}

func (m *MemoryStore) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.sessions[e.SessionID]
	e.Seq = int64(len(entries)) + 1
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.clock().UTC()
	}
	m.sessions[e.SessionID] = append(entries, e)
	return e, nil
}

// List returns up to limit of the newest entries, in append order.
func (m *MemoryStore) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.defaultLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.sessions[sessionID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]Entry(nil), entries...), nil
}

func (m *MemoryStore) Forget(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
