// Package placement decides which tier a new object is written to.
//
// A Policy walks from the desired tier toward SLOW and accepts the first tier
// whose predicate holds for the object's size. It never moves an object to a
// faster tier than desired. The free-space figures it evaluates come from a
// View, which is either re-queried from the engine for every decision or
// planned locally from a single snapshot.
package placement

import (
	"errors"
	"fmt"

	"github.com/gftdcojp/tier-workloads/internal/types"
)

// DefaultHeadroom is the fraction of a tier's total capacity that must stay
// free after placing an object under the Headroom predicate.
const DefaultHeadroom = 0.20

// ErrPlacementExhausted is returned when no tier from the desired one down
// to SLOW accepts the object.
var ErrPlacementExhausted = errors.New("placement exhausted")

// Predicate selects the acceptance test applied to each tier.
type Predicate int

const (
	// Headroom accepts t when free-size stays strictly above headroom*total.
	Headroom Predicate = iota
	// SimpleFit accepts t when free is strictly greater than size.
	SimpleFit
)

func (p Predicate) String() string {
	switch p {
	case Headroom:
		return "headroom"
	case SimpleFit:
		return "simplefit"
	default:
		return "unknown"
	}
}

// Policy is a pure placement function.
type Policy struct {
	Predicate Predicate
	// Headroom is only consulted by the Headroom predicate.
	Headroom float64
}

// HeadroomPolicy keeps DefaultHeadroom of every tier free.
func HeadroomPolicy() Policy {
	return Policy{Predicate: Headroom, Headroom: DefaultHeadroom}
}

// SimpleFitPolicy accepts any tier with more free bytes than the object.
func SimpleFitPolicy() Policy {
	return Policy{Predicate: SimpleFit}
}

// Accepts reports whether an object of size bytes may go to a tier with
// the given space.
func (p Policy) Accepts(space types.TierSpace, size int64) bool {
	switch p.Predicate {
	case SimpleFit:
		return space.Free > size
	default:
		// The reserve is truncated to whole bytes before comparing.
		reserve := int64(float64(space.Total) * p.Headroom)
		return space.Free-size > reserve
	}
}

// Place returns the first tier at or below desired that accepts size.
func (p Policy) Place(desired types.Tier, size int64, space types.FreeSpace) (types.Tier, error) {
	if !desired.Valid() {
		return 0, fmt.Errorf("invalid desired tier %d", desired)
	}
	for t := desired; t <= types.TierSlow; t++ {
		if p.Accepts(space[t], size) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %d bytes desiring %s under %s", ErrPlacementExhausted, size, desired, p.Predicate)
}
