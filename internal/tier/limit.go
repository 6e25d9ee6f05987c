package tier

import (
	"context"

	"github.com/juju/ratelimit"
)

// limitedStore throttles a TierStore to emulate a slower device.
type limitedStore struct {
	TierStore
	read  *ratelimit.Bucket
	write *ratelimit.Bucket
}

// Limited wraps s with token buckets allowing readBps and writeBps bytes per
// second. A zero rate leaves that direction unthrottled.
func Limited(s TierStore, readBps, writeBps int64) TierStore {
	if readBps <= 0 && writeBps <= 0 {
		return s
	}
	l := &limitedStore{TierStore: s}
	if readBps > 0 {
		l.read = ratelimit.NewBucketWithRate(float64(readBps), readBps)
	}
	if writeBps > 0 {
		l.write = ratelimit.NewBucketWithRate(float64(writeBps), writeBps)
	}
	return l
}

func (l *limitedStore) Put(ctx context.Context, ref ChunkRef, data []byte) error {
	if l.write != nil {
		l.write.Wait(int64(len(data)))
	}
	return l.TierStore.Put(ctx, ref, data)
}

func (l *limitedStore) ReadAt(ctx context.Context, ref ChunkRef, buf []byte, off int64) (int, error) {
	n, err := l.TierStore.ReadAt(ctx, ref, buf, off)
	if l.read != nil && n > 0 {
		l.read.Wait(int64(n))
	}
	return n, err
}
