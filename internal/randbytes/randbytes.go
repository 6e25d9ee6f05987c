// Package randbytes streams pseudo-random bytes to a sink in bounded chunks.
package randbytes

import (
	"encoding/binary"
	"fmt"
)

// ChunkSize is the chunk length every workload writes with.
const ChunkSize = 8 << 20

// Source yields 64 random bits per call. *rand.Rand and rand.Source from
// math/rand/v2 both satisfy it.
type Source interface {
	Uint64() uint64
}

// Fill calls sink with freshly randomized chunks of min(maxChunk, remaining)
// bytes until exactly total bytes were produced. The chunk buffer is reused
// between calls, so sink must not retain it. A sink error stops Fill and is
// returned as is.
func Fill(src Source, total, maxChunk int64, sink func([]byte) error) error {
	if maxChunk <= 0 {
		return fmt.Errorf("max chunk must be positive, got %d", maxChunk)
	}
	if total < 0 {
		return fmt.Errorf("negative total %d", total)
	}
	if total == 0 {
		return nil
	}

	size := maxChunk
	if total < size {
		size = total
	}
	buf := make([]byte, size)

	for remaining := total; remaining > 0; {
		n := maxChunk
		if remaining < n {
			n = remaining
		}
		chunk := buf[:n]
		randomize(src, chunk)
		if err := sink(chunk); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

func randomize(src Source, p []byte) {
	i := 0
	for ; i+8 <= len(p); i += 8 {
		binary.LittleEndian.PutUint64(p[i:], src.Uint64())
	}
	if i < len(p) {
		var tail [8]byte
		binary.LittleEndian.PutUint64(tail[:], src.Uint64())
		copy(p[i:], tail[:])
	}
}
