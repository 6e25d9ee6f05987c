package workload

import (
	"context"
	"fmt"

	"github.com/gftdcojp/tier-workloads/internal/randbytes"
	"github.com/gftdcojp/tier-workloads/internal/types"
	"go.uber.org/zap"
)

// CheckpointShape describes a checkpoint run: every generation rewrites one
// object per entry of Sizes under fresh keys on the fastest tier.
type CheckpointShape struct {
	Sizes       []int64
	Generations int
	ChunkSize   int64
}

// DefaultCheckpointShape returns five objects of 256, 256, 1, 384 and
// 128 MiB over 20 generations.
func DefaultCheckpointShape() CheckpointShape {
	mib := []int64{256, 256, 1, 384, 128}
	sizes := make([]int64, len(mib))
	for i, m := range mib {
		sizes[i] = m << 20
	}
	return CheckpointShape{
		Sizes:       sizes,
		Generations: 20,
		ChunkSize:   randbytes.ChunkSize,
	}
}

func checkpointKey(gen, id int) string {
	return fmt.Sprintf("%d_%d", gen, id)
}

// RunCheckpoints writes every generation on the fastest tier and syncs after
// each one, then syncs once more.
func RunCheckpoints(ctx context.Context, c *Client, shape CheckpointShape) (err error) {
	c.println("running checkpoints")
	log := c.Logger.Named("checkpoints")

	var perGen int64
	for _, s := range shape.Sizes {
		perGen += s
	}
	bar := c.Progress.ByteBar("checkpoints ", perGen*int64(shape.Generations))
	defer func() { settle(bar, err) }()

	for gen := 0; gen < shape.Generations; gen++ {
		for id, size := range shape.Sizes {
			key := checkpointKey(gen, id)
			if err := c.writeObject(ctx, "checkpoints", key, types.TierFastest, size, shape.ChunkSize, func(n int) {
				bar.IncrBy(n)
			}); err != nil {
				return err
			}
		}
		if err := c.Sync(ctx, MsgSyncFailed); err != nil {
			return err
		}
		log.Info("generation written", zap.Int("generation", gen), zap.Int64("bytes", perGen))
	}

	return c.Sync(ctx, MsgSyncFailed)
}
