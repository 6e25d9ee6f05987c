package tier

import (
	"context"

	"github.com/gftdcojp/tier-workloads/internal/types"
)

// Re-export types for convenience.
type Tier = types.Tier
type ChunkRef = types.ChunkRef
type TierStats = types.TierStats

// Re-export constants.
const (
	TierFastest = types.TierFastest
	TierFast    = types.TierFast
	TierSlow    = types.TierSlow
)

// TierStore is the chunk backend every storage tier must implement.
type TierStore interface {
	Put(ctx context.Context, ref ChunkRef, data []byte) error
	// ReadAt reads len(buf) bytes of chunk ref starting at off. Callers never
	// read past the chunk's recorded length.
	ReadAt(ctx context.Context, ref ChunkRef, buf []byte, off int64) (int, error)
	Delete(ctx context.Context, ref ChunkRef) error
	Exists(ctx context.Context, ref ChunkRef) (bool, error)
	// Sync makes every prior Put durable.
	Sync(ctx context.Context) error
	Stats(ctx context.Context) (TierStats, error)
	Close() error
}
