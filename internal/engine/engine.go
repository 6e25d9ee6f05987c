// Package engine defines the object-storage contract the workloads drive.
//
// Objects are keyed byte sequences pinned to a preferred tier. A cursor
// writes sequentially from offset 0; a new cursor on an existing object
// replaces its contents. Objects are read back at arbitrary offsets. Sync is
// a global durability barrier: every write issued before a successful Sync
// survives a restart of the engine, as long as it landed on a persistent
// tier. Chunks held by a volatile (memory) tier are lost on restart.
package engine

import (
	"context"
	"errors"
	"io"

	"github.com/gftdcojp/tier-workloads/internal/types"
)

var (
	// ErrObjectNotFound is returned by OpenObject for unknown keys.
	ErrObjectNotFound = errors.New("object not found")
	// ErrTierFull is returned when no tier at or below the preferred one can
	// take a chunk.
	ErrTierFull = errors.New("no tier has space for chunk")
	// ErrOverwrite is returned when a cursor writes past offset 0 at a
	// position other than the object's end, e.g. after another cursor
	// rewrote the object.
	ErrOverwrite = errors.New("in-place overwrite is not supported")
)

// Engine is a three-tier object store.
type Engine interface {
	// OpenOrCreateObjectWithPref opens key, creating it if needed, and pins
	// its preferred tier to pref.
	OpenOrCreateObjectWithPref(ctx context.Context, key []byte, pref types.Tier) (Object, types.ObjectInfo, error)
	OpenObject(ctx context.Context, key []byte) (Object, error)
	OpenObjectWithInfo(ctx context.Context, key []byte) (Object, types.ObjectInfo, error)
	// FreeSpaceTier returns a per-tier snapshot of free and total bytes.
	FreeSpaceTier(ctx context.Context) (types.FreeSpace, error)
	Sync(ctx context.Context) error
}

// Object is a handle to a stored object.
type Object interface {
	// CursorWithPref returns a sequential writer starting at offset 0 whose
	// writes prefer tier pref.
	CursorWithPref(pref types.Tier) Cursor
	// ReadAt reads into buf starting at off. It returns fewer bytes than
	// len(buf) without error when the object ends before off+len(buf).
	ReadAt(ctx context.Context, buf []byte, off int64) (int, error)
}

// Cursor writes every byte it is given or returns an error.
type Cursor interface {
	io.Writer
}
