package feed

import (
	"context"
	"sync"

	"CCNLMonitor/internal/ports"
)

// MemorySeenStore keeps processed GUIDs for the lifetime of the process.
type MemorySeenStore struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

var _ ports.SeenStore = (*MemorySeenStore)(nil)

// NewMemorySeenStore builds an empty store.
func NewMemorySeenStore() *MemorySeenStore {
	return &MemorySeenStore{seen: map[string]struct{}{}}
}

// Seen reports whether guid was marked before.
func (m *MemorySeenStore) Seen(_ context.Context, guid string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seen[guid]
	return ok, nil
}

// MarkSeen records guid.
func (m *MemorySeenStore) MarkSeen(_ context.Context, guid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[guid] = struct{}{}
	return nil
}
