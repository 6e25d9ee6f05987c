package meta

import (
	"encoding/binary"
	"time"

	"github.com/gftdcojp/tier-workloads/internal/types"
)

// Bucket names in BoltDB.
var (
	bucketSystem     = []byte("system")
	bucketObjects    = []byte("objects")
	keySchemaVersion = []byte("schema_version")

	// Schema v2: objects indexed by preferred tier.
	bucketPrefIndex = []byte("pref_index")
)

const currentSchemaVersion = 2

// ObjectEntry is the catalog record for a single object.
type ObjectEntry struct {
	Key        string
	Pref       types.Tier
	Size       int64
	Chunks     []ChunkEntry
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// ChunkEntry locates one chunk of an object. Chunks are ordered by Offset
// and cover the object without gaps.
type ChunkEntry struct {
	Index  uint32
	Tier   types.Tier
	Offset int64
	Length int64
}

// Info returns the public view of the entry.
func (e *ObjectEntry) Info() types.ObjectInfo {
	return types.ObjectInfo{
		Key:        e.Key,
		Pref:       e.Pref,
		Size:       e.Size,
		CreatedAt:  e.CreatedAt,
		ModifiedAt: e.ModifiedAt,
	}
}

// Ref returns the ChunkRef of chunk c of this object.
func (e *ObjectEntry) Ref(c ChunkEntry) types.ChunkRef {
	return types.ChunkRef{Key: e.Key, Index: c.Index}
}

// Clone returns a deep copy of the entry.
func (e *ObjectEntry) Clone() ObjectEntry {
	c := *e
	c.Chunks = append([]ChunkEntry(nil), e.Chunks...)
	return c
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// prefIndexKey orders the index by tier first, then object key.
func prefIndexKey(t types.Tier, key string) []byte {
	b := make([]byte, 1, 1+len(key))
	b[0] = byte(t)
	return append(b, key...)
}
