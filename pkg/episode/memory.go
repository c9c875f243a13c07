package episode

import (
	"context"
	"sync"
)

// DefaultCapacity is the number of episodes kept by a Memory store.
const DefaultCapacity = 500

// Memory is an in-process Store holding the most recent episodes.
type Memory struct {
	mu       sync.RWMutex
	episodes []Episode // oldest first
	capacity int
}

// NewMemory creates a store that keeps at most capacity episodes.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{capacity: capacity}
}

// Save appends e, evicting the oldest episode when full.
func (m *Memory) Save(ctx context.Context, e Episode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.episodes = append(m.episodes, e)
	if len(m.episodes) > m.capacity {
		m.episodes = m.episodes[len(m.episodes)-m.capacity:]
	}
	return nil
}

// List returns episodes newest first.
func (m *Memory) List(ctx context.Context, limit int) ([]Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.episodes)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Episode, 0, n)
	for i := len(m.episodes) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.episodes[i])
	}
	return out, nil
}

// Get finds an episode by ID.
func (m *Memory) Get(ctx context.Context, id string) (Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.episodes) - 1; i >= 0; i-- {
		if m.episodes[i].ID == id {
			return m.episodes[i], nil
		}
	}
	return Episode{}, ErrNotFound
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// Len returns the number of stored episodes.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.episodes)
}

var _ Store = (*Memory)(nil)
