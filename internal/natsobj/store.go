// Package natsobj stores tier chunks in a JetStream object store bucket.
package natsobj

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gftdcojp/tier-workloads/internal/chunk"
	"github.com/gftdcojp/tier-workloads/internal/tier"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// Store implements tier.TierStore on a JetStream object store. Each chunk
// is one framed object named <escaped key>/<index>.
type Store struct {
	nc     *nats.Conn
	obs    jetstream.ObjectStore
	tier   tier.Tier
	bucket string
	logger *zap.Logger

	mu         sync.RWMutex
	sizes      map[string]int64
	totalBytes int64
}

// NewStore binds (creating if needed) the object store bucket and rebuilds
// usage from the objects already in it.
func NewStore(ctx context.Context, nc *nats.Conn, js jetstream.JetStream, t tier.Tier, bucket string, logger *zap.Logger) (*Store, error) {
	obs, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("%s tier chunks", t),
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("binding object store %s: %w", bucket, err)
	}

	s := &Store{
		nc:     nc,
		obs:    obs,
		tier:   t,
		bucket: bucket,
		logger: logger,
		sizes:  make(map[string]int64),
	}

	infos, err := obs.List(ctx)
	if err != nil && !errors.Is(err, jetstream.ErrNoObjectsFound) {
		return nil, fmt.Errorf("listing object store %s: %w", bucket, err)
	}
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		n := int64(info.Size) - chunk.HeaderSize
		s.sizes[info.Name] = n
		s.totalBytes += n
	}

	logger.Info("nats tier opened",
		zap.String("tier", t.String()),
		zap.String("bucket", bucket),
		zap.Int("chunks", len(s.sizes)),
		zap.Int64("bytes", s.totalBytes),
	)
	return s, nil
}

func objectName(ref tier.ChunkRef) string {
	return fmt.Sprintf("%s/%010d", url.PathEscape(ref.Key), ref.Index)
}

func (s *Store) Put(ctx context.Context, ref tier.ChunkRef, data []byte) error {
	name := objectName(ref)
	if _, err := s.obs.PutBytes(ctx, name, chunk.Encode(ref.Index, data)); err != nil {
		return fmt.Errorf("putting chunk %s into %s: %w", name, s.bucket, err)
	}

	s.mu.Lock()
	s.totalBytes += int64(len(data)) - s.sizes[name]
	s.sizes[name] = int64(len(data))
	s.mu.Unlock()

	s.logger.Debug("chunk stored in object store",
		zap.String("bucket", s.bucket),
		zap.String("name", name),
		zap.Int("size", len(data)),
	)
	return nil
}

// ReadAt fetches the whole frame; the object store has no range reads.
func (s *Store) ReadAt(ctx context.Context, ref tier.ChunkRef, buf []byte, off int64) (int, error) {
	name := objectName(ref)
	raw, err := s.obs.GetBytes(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return 0, fmt.Errorf("chunk %s not found in %s tier: %w", name, s.tier, err)
		}
		return 0, fmt.Errorf("getting chunk %s from %s: %w", name, s.bucket, err)
	}

	_, payload, err := chunk.Decode(raw)
	if err != nil {
		return 0, err
	}
	if off < 0 || off > int64(len(payload)) {
		return 0, fmt.Errorf("offset %d out of range for chunk %s of %d bytes", off, name, len(payload))
	}
	return copy(buf, payload[off:]), nil
}

func (s *Store) Delete(ctx context.Context, ref tier.ChunkRef) error {
	name := objectName(ref)
	if err := s.obs.Delete(ctx, name); err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("deleting chunk %s from %s: %w", name, s.bucket, err)
	}

	s.mu.Lock()
	s.totalBytes -= s.sizes[name]
	delete(s.sizes, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) Exists(ctx context.Context, ref tier.ChunkRef) (bool, error) {
	name := objectName(ref)
	if _, err := s.obs.GetInfo(ctx, name); err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("stat chunk %s in %s: %w", name, s.bucket, err)
	}
	return true, nil
}

// Sync flushes the connection. PutBytes already waits for the stream to
// acknowledge every chunk message.
func (s *Store) Sync(ctx context.Context) error {
	if err := s.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing nats connection: %w", err)
	}
	return nil
}

func (s *Store) Stats(_ context.Context) (tier.TierStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tier.TierStats{
		Tier:       s.tier,
		ChunkCount: int64(len(s.sizes)),
		UsedBytes:  s.totalBytes,
	}, nil
}

// Close leaves the connection open; it is shared with other tiers.
func (s *Store) Close() error {
	return nil
}
