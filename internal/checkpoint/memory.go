package checkpoint

import (
	"context"
	"sync"
)

// Memory keeps snapshots in-process. Runs do not survive a restart; use the
// postgres backend when that matters.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string][]byte)}
}

func (m *Memory) Save(_ context.Context, runID string, snapshot []byte) error {
	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)
	m.mu.Lock()
	m.snapshots[runID] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, runID string) ([]byte, error) {
	m.mu.RLock()
	snap, ok := m.snapshots[runID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(snap))
	copy(cp, snap)
	return cp, nil
}

func (m *Memory) Delete(_ context.Context, runID string) error {
	m.mu.Lock()
	delete(m.snapshots, runID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	return ids, nil
}
