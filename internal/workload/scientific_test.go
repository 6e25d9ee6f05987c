package workload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gftdcojp/tier-workloads/internal/types"
)

func smallScientificShape() ScientificShape {
	return ScientificShape{
		ObjectSize: 1 << 16,
		FetchSize:  1 << 10,
		Positions:  256,
		ChunkSize:  4096,
	}
}

func TestDefaultScientificShape(t *testing.T) {
	s := DefaultScientificShape()
	if s.ObjectSize != 10*1024*1024*1024 || s.FetchSize != 12*1024*1024 || s.Positions != 256 || s.ChunkSize != 8*1024*1024 {
		t.Fatalf("unexpected shape %+v", s)
	}
}

func TestRunScientific_CyclicReplay(t *testing.T) {
	eng := newStubEngine()
	c, out := newTestClient(eng, 42)
	shape := smallScientificShape()

	if err := RunScientific(t.Context(), c, shape, 200*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if len(eng.reads) < 2*shape.Positions+1 {
		t.Fatalf("only %d reads in 200ms", len(eng.reads))
	}
	if eng.reads[256] != eng.reads[0] {
		t.Fatalf("257th read %+v differs from the 1st %+v", eng.reads[256], eng.reads[0])
	}
	for i, r := range eng.reads {
		if r != eng.reads[i%shape.Positions] {
			t.Fatalf("read %d does not replay position %d", i, i%shape.Positions)
		}
		if r.Key != ScientificKey {
			t.Fatalf("read of unexpected key %q", r.Key)
		}
		if r.Off >= shape.ObjectSize-1 || int64(r.Len) >= shape.FetchSize || r.Off+int64(r.Len) > shape.ObjectSize {
			t.Fatalf("position out of range: %+v", r)
		}
	}

	if len(eng.creates) != 1 || eng.creates[0].Pref != types.TierFast || eng.cursors[0].Pref != types.TierFast {
		t.Fatalf("object should be pinned to fast: creates=%v cursors=%v", eng.creates, eng.cursors)
	}
	if got := int64(len(eng.objects[ScientificKey].data)); got != shape.ObjectSize {
		t.Fatalf("object holds %d bytes, want %d", got, shape.ObjectSize)
	}
	if eng.syncs != 1 {
		t.Fatalf("sync called %d times, want 1", eng.syncs)
	}

	lines := outputLines(out)
	if len(lines) != 2 || lines[0] != "running scientific_evaluation" || lines[1] != "Initial write took 0s" {
		t.Fatalf("unexpected stdout %q", lines)
	}
}

func TestRunScientific_DeadlineCheckedAfterRead(t *testing.T) {
	eng := newStubEngine()
	c, _ := newTestClient(eng, 1)

	if err := RunScientific(t.Context(), c, smallScientificShape(), 0); err != nil {
		t.Fatal(err)
	}
	if len(eng.reads) != 1 {
		t.Fatalf("issued %d reads with zero runtime, want 1", len(eng.reads))
	}
}

func TestRunScientific_StopsAtRuntime(t *testing.T) {
	eng := newStubEngine()
	c, _ := newTestClient(eng, 1)
	eng.onRead = func(n int) {
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	if err := RunScientific(t.Context(), c, smallScientificShape(), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("run took %s with a 50ms runtime", elapsed)
	}
	if n := len(eng.reads); n < 2 || n > 20 {
		t.Fatalf("issued %d reads of ~5ms in a 50ms window", n)
	}
}

func TestRunScientific_Cancelled(t *testing.T) {
	eng := newStubEngine()
	c, _ := newTestClient(eng, 1)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	eng.onRead = func(n int) {
		if n == 10 {
			cancel()
		}
	}

	err := RunScientific(ctx, c, smallScientificShape(), time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(eng.reads) != 10 {
		t.Fatalf("issued %d reads, want 10", len(eng.reads))
	}
}

func TestRunScientific_SyncFailure(t *testing.T) {
	eng := newStubEngine()
	eng.syncErr = errors.New("catalog corrupt")
	eng.syncFailAt = 1
	c, _ := newTestClient(eng, 1)

	err := RunScientific(t.Context(), c, smallScientificShape(), time.Second)
	if !errors.Is(err, ErrSyncFailed) {
		t.Fatalf("expected ErrSyncFailed, got %v", err)
	}
	if len(eng.reads) != 0 {
		t.Fatal("no reads should follow a failed sync")
	}
}

func TestPlanPositions(t *testing.T) {
	eng := newStubEngine()
	c, _ := newTestClient(eng, 3)
	shape := ScientificShape{ObjectSize: 100, FetchSize: 1000, Positions: 500}

	for _, p := range planPositions(c, shape) {
		if p.Offset >= 99 {
			t.Fatalf("offset %d not below size-1", p.Offset)
		}
		if p.Offset+p.Length > 100 {
			t.Fatalf("position %+v runs past the object", p)
		}
	}
}

func TestRunScientific_InvalidShape(t *testing.T) {
	c, _ := newTestClient(newStubEngine(), 1)
	if err := RunScientific(t.Context(), c, ScientificShape{ObjectSize: 1, FetchSize: 1, Positions: 1}, time.Second); err == nil {
		t.Fatal("expected error for a one byte object")
	}
}
