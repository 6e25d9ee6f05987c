// Package lifecycle reconciles the catalog with the chunks the tier stores
// actually hold.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/gftdcojp/tier-workloads/internal/meta"
	"github.com/gftdcojp/tier-workloads/internal/metrics"
	"github.com/gftdcojp/tier-workloads/internal/tier"
	"github.com/gftdcojp/tier-workloads/internal/types"
	"go.uber.org/zap"
)

// CollectOrphans drops catalog entries that reference a chunk missing from
// its tier store, along with the chunks of that object that did survive.
// Volatile tiers lose every chunk on restart, so objects with any chunk in
// memory become unreadable and are collected here before the engine loads
// the catalog.
func CollectOrphans(ctx context.Context, metaStore meta.Store, stores [types.NumTiers]tier.TierStore, logger *zap.Logger) (int, error) {
	entries, err := metaStore.ListObjects(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("listing catalog: %w", err)
	}

	collected := 0
	for _, entry := range entries {
		missing, err := firstMissing(ctx, &entry, stores)
		if err != nil {
			return collected, err
		}
		if missing == nil {
			continue
		}

		logger.Warn("orphaned catalog entry found, cleaning up",
			zap.String("key", entry.Key),
			zap.Uint32("chunk", missing.Index),
			zap.String("tier", missing.Tier.String()),
		)
		for _, c := range entry.Chunks {
			if err := stores[c.Tier].Delete(ctx, entry.Ref(c)); err != nil {
				logger.Error("failed to delete surviving chunk",
					zap.String("key", entry.Key), zap.Uint32("chunk", c.Index), zap.Error(err))
			}
		}
		if err := metaStore.DeleteObject(ctx, entry.Key); err != nil {
			return collected, fmt.Errorf("deleting catalog entry %q: %w", entry.Key, err)
		}
		collected++
		metrics.OrphansCollected.Inc()
	}

	if collected > 0 {
		if err := metaStore.Sync(); err != nil {
			return collected, fmt.Errorf("syncing catalog: %w", err)
		}
	}
	return collected, nil
}

func firstMissing(ctx context.Context, entry *meta.ObjectEntry, stores [types.NumTiers]tier.TierStore) (*meta.ChunkEntry, error) {
	for i := range entry.Chunks {
		c := &entry.Chunks[i]
		ok, err := stores[c.Tier].Exists(ctx, entry.Ref(*c))
		if err != nil {
			return nil, fmt.Errorf("checking chunk %d of %q in %s tier: %w", c.Index, entry.Key, c.Tier, err)
		}
		if !ok {
			return c, nil
		}
	}
	return nil, nil
}
