package workload

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/gftdcojp/tier-workloads/internal/config"
	"github.com/gftdcojp/tier-workloads/internal/metrics"
	"github.com/gftdcojp/tier-workloads/internal/placement"
	"github.com/gftdcojp/tier-workloads/internal/randbytes"
	"github.com/gftdcojp/tier-workloads/internal/types"
	"go.uber.org/zap"
)

// NumGroups is the number of access-frequency groups: barely, seldom, often.
const NumGroups = 3

var groupNames = [NumGroups]string{"barely", "seldom", "often"}

// SizeRange is a half-open byte range [Min, Max).
type SizeRange struct {
	Min, Max int64
}

// FilesystemShape describes a mixed-filesystem run. A shape populates either
// from fixed Sizes with per-group Counts, or from size Classes with per-group
// Amount objects whose class is drawn from Distribution.
type FilesystemShape struct {
	Variant string
	Probs   [NumGroups]float64

	Sizes  []int64
	Counts [NumGroups][]int

	Classes      []SizeRange
	Distribution []float64
	Amount       [NumGroups]int

	Placement     placement.Variant
	SyncEachWrite bool

	Runs           int
	ReadBufferSize int64
	ChunkSize      int64
}

// LANLShape is the LANL size reference. Sizes are decimal.
func LANLShape() FilesystemShape {
	return FilesystemShape{
		Variant: config.FilesystemLANL,
		Probs:   [NumGroups]float64{0.01, 0.20, 0.90},
		Sizes:   []int64{64 * 1000, 256 * 1000, 1_000_000, 4_000_000, 1_000_000_000},
		Counts: [NumGroups][]int{
			{1022, 256, 1364, 1364, 24},
			{164, 40, 220, 220, 4},
			{12, 4, 16, 16, 2},
		},
		Placement:      placement.HeadroomLive,
		Runs:           10_000,
		ReadBufferSize: 2 << 30,
		ChunkSize:      randbytes.ChunkSize,
	}
}

// CoarseShape draws sizes from small, medium and large classes.
func CoarseShape() FilesystemShape {
	return FilesystemShape{
		Variant: config.FilesystemCoarse,
		Probs:   [NumGroups]float64{0.01, 0.20, 0.90},
		Classes: []SizeRange{
			{Min: 1 << 10, Max: 256 << 10},
			{Min: 1 << 20, Max: 200 << 20},
			{Min: 200 << 20, Max: 2 << 30},
		},
		Distribution:   []float64{0.9, 0.09, 0.01},
		Amount:         [NumGroups]int{2000, 300, 20},
		Placement:      placement.HeadroomLive,
		Runs:           10_000,
		ReadBufferSize: 2 << 30,
		ChunkSize:      randbytes.ChunkSize,
	}
}

// CoarseReservedShape plans placement against a reserved view with the
// simple-fit predicate and reads less often.
func CoarseReservedShape() FilesystemShape {
	s := CoarseShape()
	s.Variant = config.FilesystemCoarseReserved
	s.Probs = [NumGroups]float64{0.01, 0.10, 0.60}
	s.Placement = placement.SimpleFitReserved
	return s
}

// CoarseReservedSyncShape additionally syncs after every object.
func CoarseReservedSyncShape() FilesystemShape {
	s := CoarseReservedShape()
	s.Variant = config.FilesystemCoarseReservedSync
	s.SyncEachWrite = true
	return s
}

// FilesystemShapeFor returns the shape of a named variant.
func FilesystemShapeFor(variant string) (FilesystemShape, error) {
	switch variant {
	case config.FilesystemLANL:
		return LANLShape(), nil
	case config.FilesystemCoarse:
		return CoarseShape(), nil
	case config.FilesystemCoarseReserved:
		return CoarseReservedShape(), nil
	case config.FilesystemCoarseReservedSync:
		return CoarseReservedSyncShape(), nil
	}
	return FilesystemShape{}, fmt.Errorf("unknown filesystem variant %q", variant)
}

// objectCount is the population size of the shape.
func (s FilesystemShape) objectCount() int {
	n := 0
	for g := 0; g < NumGroups; g++ {
		if s.Classes != nil {
			n += s.Amount[g]
			continue
		}
		for _, c := range s.Counts[g] {
			n += c
		}
	}
	return n
}

// drawClassSize picks a class by Distribution, then a size uniformly from it.
func (s FilesystemShape) drawClassSize(rng *rand.Rand) int64 {
	u := rng.Float64()
	idx := len(s.Classes) - 1
	var acc float64
	for i, p := range s.Distribution {
		acc += p
		if u < acc {
			idx = i
			break
		}
	}
	r := s.Classes[idx]
	return r.Min + rng.Int64N(r.Max-r.Min)
}

// RunFilesystem populates three frequency groups, syncs, then reads random
// objects from each group with that group's probability for Runs rounds.
func RunFilesystem(ctx context.Context, c *Client, shape FilesystemShape) error {
	c.println("running filesystem")
	log := c.Logger.Named("filesystem").With(zap.String("variant", shape.Variant))

	placer, err := placement.NewPlacer(ctx, shape.Placement, c.Engine)
	if err != nil {
		return err
	}

	c.println("initialize state")
	groups, err := populate(ctx, c, shape, placer, log)
	if err != nil {
		return err
	}

	c.println("sync db")
	if err := c.Sync(ctx, MsgSyncFailed); err != nil {
		return err
	}

	c.println("start reading")
	return readGroups(ctx, c, shape, groups)
}

func populate(ctx context.Context, c *Client, shape FilesystemShape, placer *placement.Placer, log *zap.Logger) (groups [NumGroups][]string, err error) {
	bar := c.Progress.CountBar("filesystem ", int64(shape.objectCount()))
	defer func() { settle(bar, err) }()

	counter := 1
	create := func(g int, size int64) error {
		desired := types.Tier(c.RNG.IntN(types.NumTiers))
		actual, err := placer.Place(ctx, desired, size)
		if err != nil {
			return err
		}

		key := "key" + strconv.Itoa(counter)
		counter++
		if err := c.writeObject(ctx, "filesystem", key, actual, size, shape.ChunkSize, nil); err != nil {
			return err
		}
		groups[g] = append(groups[g], key)

		if shape.SyncEachWrite {
			if err := c.Sync(ctx, MsgWriteIncomplete); err != nil {
				return err
			}
		}
		bar.Increment()
		return nil
	}

	for g := 0; g < NumGroups; g++ {
		if shape.Classes != nil {
			for i := 0; i < shape.Amount[g]; i++ {
				if err := create(g, shape.drawClassSize(c.RNG)); err != nil {
					return groups, err
				}
			}
		} else {
			for i, count := range shape.Counts[g] {
				for j := 0; j < count; j++ {
					if err := create(g, shape.Sizes[i]); err != nil {
						return groups, err
					}
				}
			}
		}
		log.Info("group populated",
			zap.String("group", groupNames[g]),
			zap.Int("objects", len(groups[g])),
		)
	}
	return groups, nil
}

func readGroups(ctx context.Context, c *Client, shape FilesystemShape, groups [NumGroups][]string) error {
	buf := make([]byte, shape.ReadBufferSize)

	var reads [NumGroups]int
	for run := 0; run < shape.Runs; run++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.println(fmt.Sprintf("Reading generation %d of %d", run, shape.Runs))
		for g, prob := range shape.Probs {
			if !bernoulli(c.RNG, prob) || len(groups[g]) == 0 {
				continue
			}
			// The read schedule does not need to be reproducible, so keys
			// come from the global source rather than the client's.
			key := groups[g][rand.IntN(len(groups[g]))]
			obj, err := c.Engine.OpenObject(ctx, []byte(key))
			if err != nil {
				return fmt.Errorf("opening object %q: %w", key, err)
			}
			if err := c.readAt(ctx, "filesystem", obj, buf, 0); err != nil {
				return fmt.Errorf("reading object %q: %w", key, err)
			}
			metrics.WorkloadReads.WithLabelValues("filesystem", groupNames[g]).Inc()
			reads[g]++
		}
	}

	c.Logger.Info("read phase complete",
		zap.Int("runs", shape.Runs),
		zap.Ints("reads", reads[:]),
	)
	return nil
}

func bernoulli(rng *rand.Rand, p float64) bool {
	switch {
	case p <= 0:
		return false
	case p >= 1:
		return true
	}
	return rng.Float64() < p
}
