// Package workload drives synthetic workloads against a tiered engine.
//
// Every driver is single threaded and issues its engine calls in program
// order. Object contents, desired tiers and read decisions come from the
// client's seeded generator, so two runs with the same seed write the same
// bytes to the same keys.
package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/gftdcojp/tier-workloads/internal/engine"
	"github.com/gftdcojp/tier-workloads/internal/metrics"
	"github.com/gftdcojp/tier-workloads/internal/randbytes"
	"github.com/gftdcojp/tier-workloads/internal/types"
	"go.uber.org/zap"
)

// Messages carried by a SyncError.
const (
	MsgSyncFailed      = "Failed to sync database"
	MsgWriteIncomplete = "Could not write object to disk completely. Check policy or benchmark disk utilization."
)

// ErrSyncFailed matches every SyncError.
var ErrSyncFailed = errors.New("sync failed")

// SyncError reports a failed durability barrier. Drivers never continue
// past one.
type SyncError struct {
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *SyncError) Unwrap() []error {
	return []error{ErrSyncFailed, e.Err}
}

// Client bundles what every driver needs.
type Client struct {
	Engine engine.Engine
	// RNG is owned by the driver; it is not safe for concurrent use.
	RNG      *rand.Rand
	Out      io.Writer
	Logger   *zap.Logger
	Progress *Progress
}

// NewClient seeds a PCG generator from seed. Progress starts out silent.
func NewClient(eng engine.Engine, seed uint64, out io.Writer, logger *zap.Logger) *Client {
	return &Client{
		Engine:   eng,
		RNG:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Out:      out,
		Logger:   logger,
		Progress: NewProgress(false),
	}
}

// Sync runs the engine's durability barrier and reports failure with msg.
func (c *Client) Sync(ctx context.Context, msg string) error {
	start := time.Now()
	if err := c.Engine.Sync(ctx); err != nil {
		return &SyncError{Message: msg, Err: err}
	}
	c.Logger.Debug("engine synced", zap.Duration("took", time.Since(start)))
	return nil
}

func (c *Client) println(s string) {
	fmt.Fprintln(c.Out, s)
}

// writeObject creates key pinned to pref and fills it with size random bytes
// through a cursor that also prefers pref.
func (c *Client) writeObject(ctx context.Context, workload, key string, pref types.Tier, size, chunkSize int64, onChunk func(int)) error {
	obj, _, err := c.Engine.OpenOrCreateObjectWithPref(ctx, []byte(key), pref)
	if err != nil {
		return fmt.Errorf("creating object %q: %w", key, err)
	}
	cursor := obj.CursorWithPref(pref)

	written := metrics.WorkloadBytesWritten.WithLabelValues(workload)
	err = randbytes.Fill(c.RNG, size, chunkSize, func(b []byte) error {
		if _, err := cursor.Write(b); err != nil {
			return err
		}
		written.Add(float64(len(b)))
		if onChunk != nil {
			onChunk(len(b))
		}
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("writing object %q: %w", key, err)
	}

	c.Logger.Debug("object written",
		zap.String("key", key),
		zap.String("pref", pref.String()),
		zap.Int64("size", size),
	)
	return nil
}

func (c *Client) readAt(ctx context.Context, workload string, obj engine.Object, buf []byte, off int64) error {
	start := time.Now()
	if _, err := obj.ReadAt(ctx, buf, off); err != nil {
		return err
	}
	metrics.WorkloadReadLatency.WithLabelValues(workload).Observe(time.Since(start).Seconds())
	return nil
}
