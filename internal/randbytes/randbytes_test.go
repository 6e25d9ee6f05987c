package randbytes

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"
)

func TestFillByteCountExact(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		maxChunk int64
		calls    int
		last     int
	}{
		{"single partial chunk", 100, 1024, 1, 100},
		{"exact multiple", 4096, 1024, 4, 1024},
		{"remainder", 4097, 1024, 5, 1},
		{"one byte chunks", 7, 1, 7, 1},
		{"one mebibyte of 8 MiB", 1 << 20, ChunkSize, 1, 1 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := rand.New(rand.NewPCG(1, 2))
			var sum int64
			var lens []int
			err := Fill(src, tt.total, tt.maxChunk, func(b []byte) error {
				if int64(len(b)) > tt.maxChunk {
					t.Fatalf("chunk of %d bytes exceeds max %d", len(b), tt.maxChunk)
				}
				sum += int64(len(b))
				lens = append(lens, len(b))
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
			if sum != tt.total {
				t.Fatalf("produced %d bytes, want %d", sum, tt.total)
			}
			if len(lens) != tt.calls {
				t.Fatalf("sink called %d times, want %d", len(lens), tt.calls)
			}
			if lens[len(lens)-1] != tt.last {
				t.Fatalf("last chunk %d bytes, want %d", lens[len(lens)-1], tt.last)
			}
		})
	}
}

func TestFillZeroTotal(t *testing.T) {
	called := false
	err := Fill(rand.New(rand.NewPCG(1, 1)), 0, ChunkSize, func([]byte) error {
		called = true
		return nil
	})
	if err != nil || called {
		t.Fatalf("err=%v called=%v, want no sink call", err, called)
	}
}

func TestFillInvalidArgs(t *testing.T) {
	sink := func([]byte) error { return nil }
	if err := Fill(rand.New(rand.NewPCG(1, 1)), 10, 0, sink); err == nil {
		t.Fatal("expected error for zero max chunk")
	}
	if err := Fill(rand.New(rand.NewPCG(1, 1)), -1, 10, sink); err == nil {
		t.Fatal("expected error for negative total")
	}
}

func TestFillSinkErrorStops(t *testing.T) {
	boom := errors.New("disk full")
	calls := 0
	err := Fill(rand.New(rand.NewPCG(3, 4)), 10_000, 100, func([]byte) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("sink called %d times after failure, want 3", calls)
	}
}

func TestFillFreshBytesEachChunk(t *testing.T) {
	var chunks [][]byte
	err := Fill(rand.New(rand.NewPCG(5, 6)), 3*64, 64, func(b []byte) error {
		chunks = append(chunks, bytes.Clone(b))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(chunks[0], chunks[1]) || bytes.Equal(chunks[1], chunks[2]) {
		t.Fatal("consecutive chunks should differ")
	}
}

func TestFillDeterministicPerSeed(t *testing.T) {
	collect := func() []byte {
		var out []byte
		Fill(rand.New(rand.NewPCG(42, 0)), 1000, 333, func(b []byte) error {
			out = append(out, b...)
			return nil
		})
		return out
	}
	if !bytes.Equal(collect(), collect()) {
		t.Fatal("same seed should produce the same bytes")
	}
}
