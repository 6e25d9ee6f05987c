package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gftdcojp/tier-workloads/internal/tier"
	"go.uber.org/zap"
)

// Store implements tier.TierStore in process memory. Contents do not
// survive a restart, so Sync has nothing to flush.
type Store struct {
	mu         sync.RWMutex
	tier       tier.Tier
	chunks     map[tier.ChunkRef][]byte
	totalBytes int64
	logger     *zap.Logger
}

func NewStore(t tier.Tier, logger *zap.Logger) *Store {
	return &Store{
		tier:   t,
		chunks: make(map[tier.ChunkRef][]byte),
		logger: logger,
	}
}

func (s *Store) Put(_ context.Context, ref tier.ChunkRef, data []byte) error {
	// Writers reuse their buffers.
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, exists := s.chunks[ref]; exists {
		s.totalBytes -= int64(len(prev))
	}
	s.chunks[ref] = buf
	s.totalBytes += int64(len(buf))

	s.logger.Debug("chunk stored in memory",
		zap.String("key", ref.Key),
		zap.Uint32("index", ref.Index),
		zap.Int("size", len(buf)),
		zap.Int64("total_bytes", s.totalBytes),
	)

	return nil
}

func (s *Store) ReadAt(_ context.Context, ref tier.ChunkRef, buf []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.chunks[ref]
	if !ok {
		return 0, fmt.Errorf("chunk %s/%d not found in %s tier", ref.Key, ref.Index, s.tier)
	}
	if off < 0 || off > int64(len(data)) {
		return 0, fmt.Errorf("offset %d out of range for chunk %s/%d of %d bytes", off, ref.Key, ref.Index, len(data))
	}
	return copy(buf, data[off:]), nil
}

func (s *Store) Delete(_ context.Context, ref tier.ChunkRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.chunks[ref]
	if !ok {
		return nil
	}
	s.totalBytes -= int64(len(data))
	delete(s.chunks, ref)
	return nil
}

func (s *Store) Exists(_ context.Context, ref tier.ChunkRef) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chunks[ref]
	return ok, nil
}

func (s *Store) Sync(_ context.Context) error {
	return nil
}

func (s *Store) Stats(_ context.Context) (tier.TierStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tier.TierStats{
		Tier:       s.tier,
		ChunkCount: int64(len(s.chunks)),
		UsedBytes:  s.totalBytes,
	}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.totalBytes = 0
	return nil
}
