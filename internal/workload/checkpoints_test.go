package workload

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gftdcojp/tier-workloads/internal/types"
)

// smallCheckpointShape keeps the default counts with sizes in bytes
// instead of MiB.
func smallCheckpointShape() CheckpointShape {
	s := DefaultCheckpointShape()
	for i := range s.Sizes {
		s.Sizes[i] >>= 20
	}
	s.ChunkSize = 100
	return s
}

func TestDefaultCheckpointShape(t *testing.T) {
	s := DefaultCheckpointShape()
	want := []int64{256 << 20, 256 << 20, 1 << 20, 384 << 20, 128 << 20}
	if len(s.Sizes) != len(want) {
		t.Fatalf("sizes = %v", s.Sizes)
	}
	for i := range want {
		if s.Sizes[i] != want[i] {
			t.Fatalf("size[%d] = %d, want %d", i, s.Sizes[i], want[i])
		}
	}
	if s.Generations != 20 || s.ChunkSize != 8<<20 {
		t.Fatalf("unexpected shape %+v", s)
	}
}

func TestRunCheckpoints(t *testing.T) {
	eng := newStubEngine()
	c, out := newTestClient(eng, 42)
	shape := smallCheckpointShape()

	if err := RunCheckpoints(t.Context(), c, shape); err != nil {
		t.Fatal(err)
	}

	if len(eng.creates) != 100 {
		t.Fatalf("created %d objects, want 100", len(eng.creates))
	}
	i := 0
	for gen := 0; gen < 20; gen++ {
		for id := 0; id < 5; id++ {
			want := fmt.Sprintf("%d_%d", gen, id)
			if eng.creates[i].Key != want {
				t.Fatalf("create %d key %q, want %q", i, eng.creates[i].Key, want)
			}
			if eng.creates[i].Pref != types.TierFastest || eng.cursors[i].Pref != types.TierFastest {
				t.Fatalf("object %s not pinned to fastest", want)
			}
			if got := int64(len(eng.objects[want].data)); got != shape.Sizes[id] {
				t.Fatalf("object %s has %d bytes, want %d", want, got, shape.Sizes[id])
			}
			i++
		}
	}
	if eng.creates[0].Key != "0_0" || eng.creates[99].Key != "19_4" {
		t.Fatalf("unexpected key range %s..%s", eng.creates[0].Key, eng.creates[99].Key)
	}
	assertUniqueKeys(t, eng.keys())

	if eng.syncs != 21 {
		t.Fatalf("sync called %d times, want 21", eng.syncs)
	}
	if out.String() != "running checkpoints\n" {
		t.Fatalf("unexpected stdout %q", out.String())
	}
}

func TestRunCheckpoints_SyncFailure(t *testing.T) {
	eng := newStubEngine()
	eng.syncErr = errors.New("device gone")
	eng.syncFailAt = 1
	c, _ := newTestClient(eng, 1)

	err := RunCheckpoints(t.Context(), c, smallCheckpointShape())
	if !errors.Is(err, ErrSyncFailed) {
		t.Fatalf("expected ErrSyncFailed, got %v", err)
	}
	if !errors.Is(err, eng.syncErr) {
		t.Fatal("engine error should stay reachable")
	}
	if !strings.HasPrefix(err.Error(), MsgSyncFailed) {
		t.Fatalf("error %q should start with %q", err, MsgSyncFailed)
	}
	if len(eng.creates) != 5 {
		t.Fatalf("driver continued past failed sync: %d creates", len(eng.creates))
	}
}

func TestRunCheckpoints_DeterministicPerSeed(t *testing.T) {
	run := func(seed uint64) []byte {
		eng := newStubEngine()
		c, _ := newTestClient(eng, seed)
		if err := RunCheckpoints(t.Context(), c, smallCheckpointShape()); err != nil {
			t.Fatal(err)
		}
		return eng.objects["7_3"].data
	}

	a, b := run(9), run(9)
	if !bytes.Equal(a, b) {
		t.Fatal("same seed produced different contents")
	}
	if bytes.Equal(a, run(10)) {
		t.Fatal("different seeds produced identical contents")
	}
}

func TestRunCheckpoints_Cancelled(t *testing.T) {
	eng := newStubEngine()
	c, _ := newTestClient(eng, 1)

	ctx, cancel := contextWithCancel(t)
	cancel()
	if err := RunCheckpoints(ctx, c, smallCheckpointShape()); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
