package workload

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/gftdcojp/tier-workloads/internal/placement"
	"github.com/gftdcojp/tier-workloads/internal/types"
)

// smallLANLShape keeps the LANL counts with much smaller sizes.
func smallLANLShape() FilesystemShape {
	s := LANLShape()
	s.Sizes = []int64{64, 256, 1000, 4000, 100_000}
	s.Runs = 20
	s.ReadBufferSize = 1 << 12
	s.ChunkSize = 4096
	return s
}

func smallCoarseShape(base FilesystemShape) FilesystemShape {
	base.Classes = []SizeRange{{Min: 1, Max: 16}, {Min: 16, Max: 64}, {Min: 64, Max: 128}}
	base.Amount = [NumGroups]int{20, 5, 2}
	base.Runs = 5
	base.ReadBufferSize = 256
	base.ChunkSize = 32
	return base
}

func TestFilesystemShapes(t *testing.T) {
	lanl := LANLShape()
	if lanl.objectCount() != 4728 {
		t.Fatalf("LANL population = %d, want 4728", lanl.objectCount())
	}
	if lanl.Sizes[4] != 1_000_000_000 || lanl.Sizes[0] != 64_000 {
		t.Fatalf("LANL sizes must stay decimal: %v", lanl.Sizes)
	}
	if lanl.ReadBufferSize != 2<<30 || lanl.Runs != 10_000 || lanl.Placement != placement.HeadroomLive {
		t.Fatalf("unexpected LANL shape %+v", lanl)
	}

	coarse := CoarseShape()
	if coarse.objectCount() != 2320 {
		t.Fatalf("coarse population = %d, want 2320", coarse.objectCount())
	}
	if coarse.Classes[2] != (SizeRange{Min: 200 << 20, Max: 2 << 30}) {
		t.Fatalf("unexpected large class %+v", coarse.Classes[2])
	}

	reserved := CoarseReservedShape()
	if reserved.Probs != [NumGroups]float64{0.01, 0.10, 0.60} || reserved.Placement != placement.SimpleFitReserved || reserved.SyncEachWrite {
		t.Fatalf("unexpected reserved shape %+v", reserved)
	}
	if !CoarseReservedSyncShape().SyncEachWrite {
		t.Fatal("sync variant must sync every write")
	}

	for _, v := range []string{"lanl", "coarse", "coarse-reserved", "coarse-reserved-sync"} {
		s, err := FilesystemShapeFor(v)
		if err != nil || s.Variant != v {
			t.Errorf("FilesystemShapeFor(%q) = %q, %v", v, s.Variant, err)
		}
	}
	if _, err := FilesystemShapeFor("ext4"); err == nil {
		t.Error("expected error for unknown variant")
	}
}

func TestRunFilesystem_LANLPopulation(t *testing.T) {
	eng := newStubEngine()
	c, out := newTestClient(eng, 42)
	shape := smallLANLShape()

	if err := RunFilesystem(t.Context(), c, shape); err != nil {
		t.Fatal(err)
	}

	if len(eng.creates) != 4728 {
		t.Fatalf("created %d objects, want 4728", len(eng.creates))
	}
	for i, cr := range eng.creates {
		if want := fmt.Sprintf("key%d", i+1); cr.Key != want {
			t.Fatalf("create %d key %q, want %q", i, cr.Key, want)
		}
		if eng.cursors[i].Pref != cr.Pref {
			t.Fatalf("%s created on %s but written on %s", cr.Key, cr.Pref, eng.cursors[i].Pref)
		}
	}
	assertUniqueKeys(t, eng.keys())

	// Group 0 first size class: key1..key1022 hold 64 bytes.
	if n := len(eng.objects["key1022"].data); n != 64 {
		t.Fatalf("key1022 has %d bytes, want 64", n)
	}
	if n := len(eng.objects["key1023"].data); n != 256 {
		t.Fatalf("key1023 has %d bytes, want 256", n)
	}

	if eng.syncs != 1 {
		t.Fatalf("sync called %d times, want 1", eng.syncs)
	}

	lines := outputLines(out)
	head := []string{"running filesystem", "initialize state", "sync db", "start reading"}
	for i, want := range head {
		if lines[i] != want {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want)
		}
	}
	if len(lines) != len(head)+shape.Runs {
		t.Fatalf("got %d lines, want %d", len(lines), len(head)+shape.Runs)
	}
	if lines[4] != "Reading generation 0 of 20" || lines[len(lines)-1] != "Reading generation 19 of 20" {
		t.Fatalf("unexpected read lines %q .. %q", lines[4], lines[len(lines)-1])
	}

	for _, r := range eng.reads {
		if r.Off != 0 || r.Len != int(shape.ReadBufferSize) {
			t.Fatalf("read %+v should use the whole buffer at offset 0", r)
		}
	}
}

func TestRunFilesystem_DesiredTiersVary(t *testing.T) {
	eng := newStubEngine()
	c, _ := newTestClient(eng, 3)

	if err := RunFilesystem(t.Context(), c, smallLANLShape()); err != nil {
		t.Fatal(err)
	}
	var perTier [types.NumTiers]int
	for _, cr := range eng.creates {
		perTier[cr.Pref]++
	}
	for tier, n := range perTier {
		if n == 0 {
			t.Fatalf("no object placed on tier %d with unlimited space: %v", tier, perTier)
		}
	}
}

func TestRunFilesystem_HeadroomAvoidsFullTier(t *testing.T) {
	eng := newStubEngine()
	eng.space[types.TierFastest] = types.TierSpace{Free: 150, Total: 1000}
	c, _ := newTestClient(eng, 5)

	if err := RunFilesystem(t.Context(), c, smallCoarseShape(CoarseShape())); err != nil {
		t.Fatal(err)
	}
	for _, cr := range eng.creates {
		if cr.Pref == types.TierFastest {
			t.Fatalf("%s placed on fastest below headroom", cr.Key)
		}
	}
}

func TestRunFilesystem_ReservedViewSpills(t *testing.T) {
	eng := newStubEngine()
	// Enough reserved space on fastest for a handful of small objects only.
	eng.space[types.TierFastest] = types.TierSpace{Free: 40, Total: 40}
	c, _ := newTestClient(eng, 5)

	if err := RunFilesystem(t.Context(), c, smallCoarseShape(CoarseReservedShape())); err != nil {
		t.Fatal(err)
	}
	var onFastest int64
	for _, cr := range eng.creates {
		if cr.Pref == types.TierFastest {
			onFastest += int64(len(eng.objects[cr.Key].data))
		}
	}
	if onFastest >= 40 {
		t.Fatalf("reserved view let %d bytes onto a 40 byte tier", onFastest)
	}
}

func TestRunFilesystem_Exhausted(t *testing.T) {
	eng := newStubEngine()
	for i := range eng.space {
		eng.space[i] = types.TierSpace{Free: 100, Total: 1000}
	}
	c, _ := newTestClient(eng, 1)

	err := RunFilesystem(t.Context(), c, smallLANLShape())
	if !errors.Is(err, placement.ErrPlacementExhausted) {
		t.Fatalf("expected ErrPlacementExhausted, got %v", err)
	}
	if len(eng.creates) != 0 {
		t.Fatalf("created %d objects after exhaustion", len(eng.creates))
	}
}

func TestRunFilesystem_SyncEachWrite(t *testing.T) {
	eng := newStubEngine()
	c, _ := newTestClient(eng, 8)
	shape := smallCoarseShape(CoarseReservedSyncShape())

	if err := RunFilesystem(t.Context(), c, shape); err != nil {
		t.Fatal(err)
	}
	if want := shape.objectCount() + 1; eng.syncs != want {
		t.Fatalf("sync called %d times, want %d", eng.syncs, want)
	}

	for _, cr := range eng.creates {
		size := int64(len(eng.objects[cr.Key].data))
		if size < 1 || size >= 128 {
			t.Fatalf("%s size %d outside every class", cr.Key, size)
		}
	}
}

func TestRunFilesystem_PerWriteSyncFailure(t *testing.T) {
	eng := newStubEngine()
	eng.syncErr = errors.New("no space left on device")
	eng.syncFailAt = 3
	c, _ := newTestClient(eng, 8)

	err := RunFilesystem(t.Context(), c, smallCoarseShape(CoarseReservedSyncShape()))
	if !errors.Is(err, ErrSyncFailed) {
		t.Fatalf("expected ErrSyncFailed, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), MsgWriteIncomplete) {
		t.Fatalf("error %q should carry the per-write message", err)
	}
	if len(eng.creates) != 3 {
		t.Fatalf("driver continued past failed sync: %d creates", len(eng.creates))
	}
}

func TestRunFilesystem_ReadProbabilities(t *testing.T) {
	eng := newStubEngine()
	c, _ := newTestClient(eng, 2)
	shape := smallCoarseShape(CoarseShape())
	shape.Probs = [NumGroups]float64{0, 0, 1}
	shape.Runs = 10

	if err := RunFilesystem(t.Context(), c, shape); err != nil {
		t.Fatal(err)
	}
	if len(eng.reads) != 10 {
		t.Fatalf("issued %d reads, want 10", len(eng.reads))
	}

	// Group 2 holds the last Amount[2] keys.
	often := map[string]bool{}
	total := shape.objectCount()
	for i := total - shape.Amount[2] + 1; i <= total; i++ {
		often[fmt.Sprintf("key%d", i)] = true
	}
	for _, r := range eng.reads {
		if !often[r.Key] {
			t.Fatalf("read %s outside the often group", r.Key)
		}
	}
}

func TestRunFilesystem_DeterministicPopulation(t *testing.T) {
	run := func() []createCall {
		eng := newStubEngine()
		c, _ := newTestClient(eng, 77)
		if err := RunFilesystem(t.Context(), c, smallCoarseShape(CoarseShape())); err != nil {
			t.Fatal(err)
		}
		return eng.creates
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("populations differ in size: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("create %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestDrawClassSize_RangesAndDistribution(t *testing.T) {
	for _, shape := range []FilesystemShape{CoarseShape(), CoarseReservedShape()} {
		t.Run(shape.Variant, func(t *testing.T) {
			rng := rand.New(rand.NewPCG(42, 7))
			const draws = 100_000
			counts := make([]int, len(shape.Classes))
			for i := 0; i < draws; i++ {
				size := shape.drawClassSize(rng)
				class := -1
				for c, r := range shape.Classes {
					if size >= r.Min && size < r.Max {
						class = c
						break
					}
				}
				if class < 0 {
					t.Fatalf("size %d falls outside every class", size)
				}
				counts[class]++
			}
			for c, want := range shape.Distribution {
				got := float64(counts[c]) / draws
				if math.Abs(got-want) > 0.005 {
					t.Errorf("class %d frequency = %.4f, want %.2f", c, got, want)
				}
			}
		})
	}
}

func TestDrawClassSize_Bounds(t *testing.T) {
	shape := FilesystemShape{
		Classes:      []SizeRange{{Min: 10, Max: 11}, {Min: 100, Max: 102}},
		Distribution: []float64{0.5, 0.5},
	}
	rng := rand.New(rand.NewPCG(1, 1))
	seen := map[int64]bool{}
	for i := 0; i < 1000; i++ {
		seen[shape.drawClassSize(rng)] = true
	}
	// Max is exclusive.
	for size := range seen {
		if size != 10 && size != 100 && size != 101 {
			t.Fatalf("unexpected size %d", size)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("expected all of 10, 100, 101 drawn, got %v", seen)
	}
}
