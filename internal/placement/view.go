package placement

import (
	"context"
	"fmt"
	"sync"

	"github.com/gftdcojp/tier-workloads/internal/types"
)

// SpaceSource reports per-tier free space. engine.Engine satisfies it.
type SpaceSource interface {
	FreeSpaceTier(ctx context.Context) (types.FreeSpace, error)
}

// View supplies the free-space figures a Placer evaluates.
type View interface {
	Snapshot(ctx context.Context) (types.FreeSpace, error)
	// Commit records that size bytes were placed on t.
	Commit(t types.Tier, size int64)
}

// LiveView queries the engine for every decision. It lags any writes the
// engine has not accounted for yet.
type LiveView struct {
	src SpaceSource
}

func NewLiveView(src SpaceSource) *LiveView {
	return &LiveView{src: src}
}

func (v *LiveView) Snapshot(ctx context.Context) (types.FreeSpace, error) {
	space, err := v.src.FreeSpaceTier(ctx)
	if err != nil {
		return types.FreeSpace{}, fmt.Errorf("querying free space: %w", err)
	}
	return space, nil
}

func (v *LiveView) Commit(types.Tier, int64) {}

// ReservedView plans against one engine snapshot taken at construction and
// deducts each placement locally. Later engine updates are ignored.
type ReservedView struct {
	mu    sync.Mutex
	space types.FreeSpace
}

func NewReservedView(ctx context.Context, src SpaceSource) (*ReservedView, error) {
	space, err := src.FreeSpaceTier(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying free space: %w", err)
	}
	return &ReservedView{space: space}, nil
}

// NewReservedViewFrom starts a reservation vector from a known snapshot.
func NewReservedViewFrom(space types.FreeSpace) *ReservedView {
	return &ReservedView{space: space}
}

func (v *ReservedView) Snapshot(context.Context) (types.FreeSpace, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.space, nil
}

func (v *ReservedView) Commit(t types.Tier, size int64) {
	if !t.Valid() {
		return
	}
	v.mu.Lock()
	v.space[t].Free -= size
	v.mu.Unlock()
}
