package tier

import (
	"context"
	"fmt"
	"sync"
)

// mockTierStore is a thread-safe in-memory TierStore for testing.
type mockTierStore struct {
	mu      sync.Mutex
	chunks  map[ChunkRef][]byte
	synced  map[ChunkRef]bool
	putErr  error
	readErr error
	syncErr error
	syncs   int
	tier    Tier
}

func newMockStore(t Tier) *mockTierStore {
	return &mockTierStore{
		chunks: make(map[ChunkRef][]byte),
		synced: make(map[ChunkRef]bool),
		tier:   t,
	}
}

func (m *mockTierStore) Put(_ context.Context, ref ChunkRef, data []byte) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	m.chunks[ref] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *mockTierStore) ReadAt(_ context.Context, ref ChunkRef, buf []byte, off int64) (int, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	m.mu.Lock()
	data, ok := m.chunks[ref]
	m.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("chunk not found: %s/%d", ref.Key, ref.Index)
	}
	return copy(buf, data[off:]), nil
}

func (m *mockTierStore) Delete(_ context.Context, ref ChunkRef) error {
	m.mu.Lock()
	delete(m.chunks, ref)
	m.mu.Unlock()
	return nil
}

func (m *mockTierStore) Exists(_ context.Context, ref ChunkRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.chunks[ref]
	return ok, nil
}

func (m *mockTierStore) Sync(_ context.Context) error {
	if m.syncErr != nil {
		return m.syncErr
	}
	m.mu.Lock()
	for ref := range m.chunks {
		m.synced[ref] = true
	}
	m.syncs++
	m.mu.Unlock()
	return nil
}

func (m *mockTierStore) Stats(_ context.Context) (TierStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var used int64
	for _, c := range m.chunks {
		used += int64(len(c))
	}
	return TierStats{Tier: m.tier, ChunkCount: int64(len(m.chunks)), UsedBytes: used}, nil
}

func (m *mockTierStore) Close() error {
	return nil
}

func (m *mockTierStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}
