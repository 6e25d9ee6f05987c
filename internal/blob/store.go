package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gftdcojp/tier-workloads/internal/chunk"
	"github.com/gftdcojp/tier-workloads/internal/tier"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client the blob tier uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// Store implements tier.TierStore for S3-compatible object storage. A
// successful PutObject is already durable, so Sync is a no-op.
type Store struct {
	s3     S3API
	tier   tier.Tier
	bucket string
	prefix string
	logger *zap.Logger

	mu         sync.RWMutex
	sizes      map[tier.ChunkRef]int64
	totalBytes int64
}

// NewStore creates a new blob store using an S3API implementation.
func NewStore(s3api S3API, t tier.Tier, bucket, prefix string, logger *zap.Logger) *Store {
	return &Store{
		s3:     s3api,
		tier:   t,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
		sizes:  make(map[tier.ChunkRef]int64),
	}
}

func (s *Store) objectKey(ref tier.ChunkRef) string {
	key := fmt.Sprintf("%s/chunks/%010d.chk", url.PathEscape(ref.Key), ref.Index)
	if s.prefix != "" {
		return s.prefix + "/" + key
	}
	return key
}

func (s *Store) Put(ctx context.Context, ref tier.ChunkRef, data []byte) error {
	key := s.objectKey(ref)

	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(chunk.Encode(ref.Index, data)),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"tw-key":   ref.Key,
			"tw-index": strconv.FormatUint(uint64(ref.Index), 10),
			"tw-tier":  s.tier.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("uploading chunk to S3: %w", err)
	}

	s.mu.Lock()
	s.totalBytes += int64(len(data)) - s.sizes[ref]
	s.sizes[ref] = int64(len(data))
	s.mu.Unlock()

	s.logger.Debug("chunk uploaded to S3",
		zap.String("key", key),
		zap.Int("size", len(data)),
	)
	return nil
}

func (s *Store) ReadAt(ctx context.Context, ref tier.ChunkRef, buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if len(buf) == 0 {
		return 0, nil
	}

	key := s.objectKey(ref)
	input := &s3.GetObjectInput{Bucket: &s.bucket, Key: &key}

	// Whole-chunk reads fetch the frame and verify it; anything else is a
	// range request against the payload.
	s.mu.RLock()
	size, known := s.sizes[ref]
	s.mu.RUnlock()
	whole := known && off == 0 && int64(len(buf)) >= size
	if !whole {
		start, end := chunk.PayloadRange(off, len(buf))
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", start, end))
	}

	resp, err := s.s3.GetObject(ctx, input)
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return 0, fmt.Errorf("chunk %s/%d not found in %s tier: %w", ref.Key, ref.Index, s.tier, err)
		}
		return 0, fmt.Errorf("downloading chunk from S3: %w", err)
	}
	defer resp.Body.Close()

	if whole {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, fmt.Errorf("reading S3 response: %w", err)
		}
		_, payload, err := chunk.Decode(raw)
		if err != nil {
			return 0, err
		}
		return copy(buf, payload), nil
	}

	n, err := io.ReadFull(resp.Body, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		return n, fmt.Errorf("reading S3 response: %w", err)
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, ref tier.ChunkRef) error {
	key := s.objectKey(ref)
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("deleting chunk from S3: %w", err)
	}

	s.mu.Lock()
	s.totalBytes -= s.sizes[ref]
	delete(s.sizes, ref)
	s.mu.Unlock()
	return nil
}

// Exists reports whether the chunk object is present in the bucket.
func (s *Store) Exists(ctx context.Context, ref tier.ChunkRef) (bool, error) {
	key := s.objectKey(ref)
	_, err := s.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) Sync(_ context.Context) error {
	return nil
}

// Stats covers chunks written through this process only; listing the
// bucket on every call would be too slow.
func (s *Store) Stats(_ context.Context) (tier.TierStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tier.TierStats{
		Tier:       s.tier,
		ChunkCount: int64(len(s.sizes)),
		UsedBytes:  s.totalBytes,
	}, nil
}

func (s *Store) Close() error {
	return nil
}
