package placement

import (
	"context"
	"errors"
	"fmt"

	"github.com/gftdcojp/tier-workloads/internal/metrics"
	"github.com/gftdcojp/tier-workloads/internal/types"
)

// Variant names a policy paired with a view.
type Variant string

const (
	HeadroomLive      Variant = "headroom-live"
	SimpleFitReserved Variant = "simplefit-reserved"
)

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case HeadroomLive, SimpleFitReserved:
		return v, nil
	}
	return "", fmt.Errorf("unknown placement variant %q", s)
}

// Placer applies a Policy to a View and commits each decision.
type Placer struct {
	Policy Policy
	View   View
}

// NewPlacer builds the placer for v. The reserved variant snapshots src
// immediately.
func NewPlacer(ctx context.Context, v Variant, src SpaceSource) (*Placer, error) {
	switch v {
	case HeadroomLive:
		return &Placer{Policy: HeadroomPolicy(), View: NewLiveView(src)}, nil
	case SimpleFitReserved:
		view, err := NewReservedView(ctx, src)
		if err != nil {
			return nil, err
		}
		return &Placer{Policy: SimpleFitPolicy(), View: view}, nil
	}
	return nil, fmt.Errorf("unknown placement variant %q", v)
}

// Place picks the tier for an object of size bytes that would like to live
// on desired.
func (p *Placer) Place(ctx context.Context, desired types.Tier, size int64) (types.Tier, error) {
	space, err := p.View.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	actual, err := p.Policy.Place(desired, size, space)
	if err != nil {
		if errors.Is(err, ErrPlacementExhausted) {
			metrics.PlacementExhausted.Inc()
		}
		return 0, err
	}
	p.View.Commit(actual, size)
	metrics.PlacementDecisions.WithLabelValues(desired.String(), actual.String()).Inc()
	return actual, nil
}
