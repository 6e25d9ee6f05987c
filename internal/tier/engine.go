package tier

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/gftdcojp/tier-workloads/internal/engine"
	"github.com/gftdcojp/tier-workloads/internal/meta"
	"github.com/gftdcojp/tier-workloads/internal/metrics"
	"github.com/gftdcojp/tier-workloads/internal/types"
	"go.uber.org/zap"
)

// EngineConfig holds dependencies for the tiered engine.
type EngineConfig struct {
	Stores   [types.NumTiers]TierStore
	Capacity [types.NumTiers]int64
	Meta     meta.Store
	Logger   *zap.Logger
}

// Engine stores objects as chunk sequences spread across three tier stores
// and keeps the chunk layout in the catalog.
type Engine struct {
	stores   [types.NumTiers]TierStore
	capacity [types.NumTiers]int64
	meta     meta.Store
	logger   *zap.Logger

	// wmu serializes writers and sync.
	wmu sync.Mutex

	mu      sync.RWMutex
	objects map[string]*meta.ObjectEntry
	dirty   map[string]struct{}
	used    [types.NumTiers]int64
}

var _ engine.Engine = (*Engine)(nil)

// NewEngine loads the catalog and returns an engine serving it.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	for _, t := range types.Tiers {
		if cfg.Stores[t] == nil {
			return nil, fmt.Errorf("no store configured for %s tier", t)
		}
	}

	entries, err := cfg.Meta.ListObjects(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	e := &Engine{
		stores:   cfg.Stores,
		capacity: cfg.Capacity,
		meta:     cfg.Meta,
		logger:   cfg.Logger,
		objects:  make(map[string]*meta.ObjectEntry, len(entries)),
		dirty:    make(map[string]struct{}),
	}
	for i := range entries {
		entry := &entries[i]
		e.objects[entry.Key] = entry
		for _, c := range entry.Chunks {
			e.used[c.Tier] += c.Length
		}
	}

	for _, t := range types.Tiers {
		metrics.TierCapacityBytes.WithLabelValues(t.String()).Set(float64(e.capacity[t]))
		metrics.TierUsedBytes.WithLabelValues(t.String()).Set(float64(e.used[t]))
	}

	e.logger.Info("engine opened",
		zap.Int("objects", len(e.objects)),
		zap.Int64s("used_bytes", e.used[:]),
		zap.Int64s("capacity_bytes", e.capacity[:]),
	)

	return e, nil
}

func (e *Engine) OpenOrCreateObjectWithPref(ctx context.Context, key []byte, pref Tier) (engine.Object, types.ObjectInfo, error) {
	if !pref.Valid() {
		return nil, types.ObjectInfo{}, fmt.Errorf("invalid tier preference %d", pref)
	}
	k := string(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.objects[k]
	if !ok {
		now := time.Now()
		entry = &meta.ObjectEntry{Key: k, Pref: pref, CreatedAt: now, ModifiedAt: now}
		e.objects[k] = entry
		e.dirty[k] = struct{}{}
		metrics.ObjectsCreated.WithLabelValues(pref.String()).Inc()
		e.logger.Debug("object created", zap.String("key", k), zap.String("pref", pref.String()))
	} else if entry.Pref != pref {
		entry.Pref = pref
		e.dirty[k] = struct{}{}
	}

	return &object{eng: e, key: k, ctx: ctx}, entry.Info(), nil
}

func (e *Engine) OpenObject(ctx context.Context, key []byte) (engine.Object, error) {
	obj, _, err := e.OpenObjectWithInfo(ctx, key)
	return obj, err
}

func (e *Engine) OpenObjectWithInfo(ctx context.Context, key []byte) (engine.Object, types.ObjectInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.objects[string(key)]
	if !ok {
		return nil, types.ObjectInfo{}, fmt.Errorf("%w: %q", engine.ErrObjectNotFound, key)
	}
	return &object{eng: e, key: entry.Key, ctx: ctx}, entry.Info(), nil
}

func (e *Engine) FreeSpaceTier(_ context.Context) (types.FreeSpace, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var space types.FreeSpace
	for _, t := range types.Tiers {
		free := e.capacity[t] - e.used[t]
		if free < 0 {
			free = 0
		}
		space[t] = types.TierSpace{Free: free, Total: e.capacity[t]}
	}
	return space, nil
}

// Sync makes every tier store durable, then commits the layout of all
// objects touched since the previous sync to the catalog.
func (e *Engine) Sync(ctx context.Context) error {
	e.wmu.Lock()
	defer e.wmu.Unlock()

	start := time.Now()
	for _, t := range types.Tiers {
		if err := e.stores[t].Sync(ctx); err != nil {
			return fmt.Errorf("syncing %s tier: %w", t, err)
		}
	}

	e.mu.RLock()
	pending := make([]meta.ObjectEntry, 0, len(e.dirty))
	for k := range e.dirty {
		pending = append(pending, e.objects[k].Clone())
	}
	e.mu.RUnlock()

	if err := e.meta.PutObjects(ctx, pending); err != nil {
		return fmt.Errorf("committing catalog: %w", err)
	}
	if err := e.meta.Sync(); err != nil {
		return fmt.Errorf("syncing catalog: %w", err)
	}

	e.mu.Lock()
	for _, entry := range pending {
		delete(e.dirty, entry.Key)
	}
	e.mu.Unlock()

	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	e.logger.Debug("sync complete",
		zap.Int("objects_committed", len(pending)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Stats returns usage reported by each tier store.
func (e *Engine) Stats(ctx context.Context) ([]TierStats, error) {
	stats := make([]TierStats, 0, types.NumTiers)
	for _, t := range types.Tiers {
		st, err := e.stores[t].Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("stats for %s tier: %w", t, err)
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// Close closes all tier stores. The catalog is owned by the caller.
func (e *Engine) Close() error {
	var firstErr error
	for _, t := range types.Tiers {
		if err := e.stores[t].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// allocate reserves n bytes on pref or the first slower tier with room.
// Caller holds e.mu.
func (e *Engine) allocate(pref Tier, n int64) (Tier, error) {
	for t := pref; t <= TierSlow; t++ {
		if e.used[t]+n <= e.capacity[t] {
			e.used[t] += n
			metrics.TierUsedBytes.WithLabelValues(t.String()).Set(float64(e.used[t]))
			if t != pref {
				metrics.TierSpills.WithLabelValues(pref.String(), t.String()).Inc()
			}
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %d bytes preferring %s", engine.ErrTierFull, n, pref)
}

func (e *Engine) release(t Tier, n int64) {
	e.used[t] -= n
	metrics.TierUsedBytes.WithLabelValues(t.String()).Set(float64(e.used[t]))
}

func (e *Engine) appendChunk(ctx context.Context, key string, pref Tier, off int64, p []byte) error {
	if !pref.Valid() {
		return fmt.Errorf("invalid tier preference %d", pref)
	}

	e.wmu.Lock()
	defer e.wmu.Unlock()

	if off == 0 {
		if err := e.truncate(ctx, key); err != nil {
			return err
		}
	}

	n := int64(len(p))
	e.mu.Lock()
	entry, ok := e.objects[key]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", engine.ErrObjectNotFound, key)
	}
	if off != entry.Size {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q write at %d, object size %d", engine.ErrOverwrite, key, off, entry.Size)
	}
	t, err := e.allocate(pref, n)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	chunk := meta.ChunkEntry{Index: uint32(len(entry.Chunks)), Tier: t, Offset: off, Length: n}
	ref := entry.Ref(chunk)
	e.mu.Unlock()

	if err := e.stores[t].Put(ctx, ref, p); err != nil {
		e.mu.Lock()
		e.release(t, n)
		e.mu.Unlock()
		return fmt.Errorf("storing chunk %d of %q in %s tier: %w", chunk.Index, key, t, err)
	}

	e.mu.Lock()
	entry.Chunks = append(entry.Chunks, chunk)
	entry.Size += n
	entry.ModifiedAt = time.Now()
	e.dirty[key] = struct{}{}
	e.mu.Unlock()

	metrics.TierBytesWritten.WithLabelValues(t.String()).Add(float64(n))
	return nil
}

// truncate drops every chunk of key so a fresh cursor can rewrite it from
// offset 0. Caller holds e.wmu. Until the next Sync the catalog still lists
// the old chunks; a crash in between leaves an orphan for lifecycle to drop.
func (e *Engine) truncate(ctx context.Context, key string) error {
	e.mu.Lock()
	entry, ok := e.objects[key]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", engine.ErrObjectNotFound, key)
	}
	if entry.Size == 0 {
		e.mu.Unlock()
		return nil
	}
	old := entry.Chunks
	for _, c := range old {
		e.release(c.Tier, c.Length)
	}
	prevSize := entry.Size
	entry.Chunks = nil
	entry.Size = 0
	entry.ModifiedAt = time.Now()
	e.dirty[key] = struct{}{}
	e.mu.Unlock()

	for _, c := range old {
		if err := e.stores[c.Tier].Delete(ctx, types.ChunkRef{Key: key, Index: c.Index}); err != nil {
			return fmt.Errorf("dropping chunk %d of %q from %s tier: %w", c.Index, key, c.Tier, err)
		}
	}
	e.logger.Debug("object rewritten from offset 0",
		zap.String("key", key),
		zap.Int64("previous_size", prevSize),
		zap.Int("chunks_dropped", len(old)),
	)
	return nil
}

func (e *Engine) readAt(ctx context.Context, key string, buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	e.mu.RLock()
	entry, ok := e.objects[key]
	if !ok {
		e.mu.RUnlock()
		return 0, fmt.Errorf("%w: %q", engine.ErrObjectNotFound, key)
	}
	size := entry.Size
	chunks := entry.Chunks[:len(entry.Chunks):len(entry.Chunks)]
	e.mu.RUnlock()

	if off >= size || len(buf) == 0 {
		return 0, nil
	}

	// First chunk whose end lies past off.
	i := sort.Search(len(chunks), func(i int) bool {
		return chunks[i].Offset+chunks[i].Length > off
	})

	n := 0
	for ; i < len(chunks) && n < len(buf); i++ {
		c := chunks[i]
		within := off + int64(n) - c.Offset
		want := c.Length - within
		if rem := int64(len(buf) - n); rem < want {
			want = rem
		}

		start := time.Now()
		got, err := e.stores[c.Tier].ReadAt(ctx, types.ChunkRef{Key: key, Index: c.Index}, buf[n:n+int(want)], within)
		n += got
		if err != nil {
			return n, fmt.Errorf("reading chunk %d of %q from %s tier: %w", c.Index, key, c.Tier, err)
		}
		if int64(got) < want {
			return n, fmt.Errorf("reading chunk %d of %q from %s tier: %w", c.Index, key, c.Tier, io.ErrUnexpectedEOF)
		}
		metrics.ChunkReadLatency.WithLabelValues(c.Tier.String()).Observe(time.Since(start).Seconds())
		metrics.TierBytesRead.WithLabelValues(c.Tier.String()).Add(float64(got))
	}
	return n, nil
}

// object is a handle scoped to the operation that opened it.
type object struct {
	eng *Engine
	key string
	ctx context.Context
}

func (o *object) CursorWithPref(pref Tier) engine.Cursor {
	return &cursor{obj: o, pref: pref}
}

func (o *object) ReadAt(ctx context.Context, buf []byte, off int64) (int, error) {
	return o.eng.readAt(ctx, o.key, buf, off)
}

type cursor struct {
	obj  *object
	pref Tier
	off  int64
}

// Write stores p as one chunk.
func (c *cursor) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.obj.eng.appendChunk(c.obj.ctx, c.obj.key, c.pref, c.off, p); err != nil {
		return 0, err
	}
	c.off += int64(len(p))
	return len(p), nil
}
