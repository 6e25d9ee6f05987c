package types

import (
	"fmt"
	"time"
)

// Tier identifies a storage tier. Lower values are faster.
type Tier int

const (
	TierFastest Tier = iota
	TierFast
	TierSlow
)

// NumTiers is the number of tiers the engine partitions capacity into.
const NumTiers = 3

// Tiers lists every tier from fastest to slowest.
var Tiers = [NumTiers]Tier{TierFastest, TierFast, TierSlow}

func (t Tier) String() string {
	switch t {
	case TierFastest:
		return "fastest"
	case TierFast:
		return "fast"
	case TierSlow:
		return "slow"
	default:
		return "unknown"
	}
}

// Valid reports whether t names one of the three tiers.
func (t Tier) Valid() bool {
	return t >= TierFastest && t <= TierSlow
}

// ParseTier parses a tier name as produced by Tier.String.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "fastest":
		return TierFastest, nil
	case "fast":
		return TierFast, nil
	case "slow":
		return TierSlow, nil
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// TierSpace reports free and total capacity of a tier in bytes.
type TierSpace struct {
	Free  int64
	Total int64
}

// FreeSpace is a per-tier space snapshot indexed by Tier.
type FreeSpace [NumTiers]TierSpace

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key        string
	Pref       Tier
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// ChunkRef identifies one chunk of an object within a tier store.
type ChunkRef struct {
	Key   string
	Index uint32
}

// TierStats reports usage for a single tier store.
type TierStats struct {
	Tier       Tier
	ChunkCount int64
	UsedBytes  int64
}
