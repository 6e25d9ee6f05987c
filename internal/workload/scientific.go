package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/gftdcojp/tier-workloads/internal/metrics"
	"github.com/gftdcojp/tier-workloads/internal/randbytes"
	"github.com/gftdcojp/tier-workloads/internal/types"
	"go.uber.org/zap"
)

// ScientificKey names the single object of a scientific evaluation run.
const ScientificKey = "important_research"

// ScientificShape describes a write-once, read-at-random-positions run.
type ScientificShape struct {
	ObjectSize int64
	FetchSize  int64
	Positions  int
	ChunkSize  int64
}

// DefaultScientificShape is a 10 GiB object read through a 12 MiB buffer at
// 256 positions.
func DefaultScientificShape() ScientificShape {
	return ScientificShape{
		ObjectSize: 10 << 30,
		FetchSize:  12 << 20,
		Positions:  256,
		ChunkSize:  randbytes.ChunkSize,
	}
}

// Position is one planned read.
type Position struct {
	Offset uint64
	Length uint64
}

// planPositions draws n positions with Offset < size-1 and Length below
// fetch, clamped so no read extends past the object.
func planPositions(c *Client, shape ScientificShape) []Position {
	size := uint64(shape.ObjectSize)
	positions := make([]Position, shape.Positions)
	for i := range positions {
		start := c.RNG.Uint64() % (size - 1)
		length := c.RNG.Uint64() % uint64(shape.FetchSize)
		if rem := size - start; length > rem {
			length = rem
		}
		positions[i] = Position{Offset: start, Length: length}
	}
	return positions
}

// RunScientific writes one object on the fast tier, then replays reads at
// planned positions cyclically until runtime has elapsed. The deadline is
// checked after each read, so at least one read is always issued.
func RunScientific(ctx context.Context, c *Client, shape ScientificShape, runtime time.Duration) (err error) {
	c.println("running scientific_evaluation")
	log := c.Logger.Named("scientific")

	if shape.ObjectSize < 2 || shape.FetchSize < 1 || shape.Positions < 1 {
		return fmt.Errorf("invalid scientific shape %+v", shape)
	}

	start := time.Now()
	bar := c.Progress.ByteBar("scientific ", shape.ObjectSize)
	err = c.writeObject(ctx, "scientific_evaluation", ScientificKey, types.TierFast, shape.ObjectSize, shape.ChunkSize, func(n int) {
		bar.IncrBy(n)
	})
	settle(bar, err)
	if err != nil {
		return err
	}
	c.println(fmt.Sprintf("Initial write took %ds", int64(time.Since(start).Seconds())))

	if err := c.Sync(ctx, MsgSyncFailed); err != nil {
		return err
	}

	positions := planPositions(c, shape)

	obj, info, err := c.Engine.OpenObjectWithInfo(ctx, []byte(ScientificKey))
	if err != nil {
		return fmt.Errorf("reopening %q: %w", ScientificKey, err)
	}
	log.Info("object reopened", zap.Int64("size", info.Size), zap.String("pref", info.Pref.String()))

	buf := make([]byte, shape.FetchSize)
	reads := metrics.WorkloadReads.WithLabelValues("scientific_evaluation", "positions")
	readStart := time.Now()
	n := 0
	for {
		pos := positions[n%len(positions)]
		if err := c.readAt(ctx, "scientific_evaluation", obj, buf[:pos.Length], int64(pos.Offset)); err != nil {
			return fmt.Errorf("reading %q at %d: %w", ScientificKey, pos.Offset, err)
		}
		reads.Inc()
		n++

		if time.Since(readStart) >= runtime {
			break
		}
		if err := ctx.Err(); err != nil {
			log.Info("read phase interrupted", zap.Int("reads", n))
			return err
		}
	}

	log.Info("read phase complete", zap.Int("reads", n), zap.Duration("elapsed", time.Since(readStart)))
	return nil
}
