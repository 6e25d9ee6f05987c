package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gftdcojp/tier-workloads/internal/chunk"
	"github.com/gftdcojp/tier-workloads/internal/tier"
	"go.uber.org/zap"
)

const (
	objectDirPrefix = "o_"
	chunkExt        = ".chk"
)

// Store implements tier.TierStore on a local filesystem, one framed file
// per chunk under dataDir/o_<escaped key>/.
type Store struct {
	mu         sync.RWMutex
	tier       tier.Tier
	dataDir    string
	noSync     bool
	totalBytes int64
	chunkCount int64
	// dirty holds files written since the last Sync.
	dirty  map[string]struct{}
	logger *zap.Logger
}

// Options tunes a file store.
type Options struct {
	// NoSync skips fsync on Sync. Only useful for tests and benchmarks of
	// the workloads themselves.
	NoSync bool
}

// NewStore opens dataDir, creating it if needed, and rebuilds usage from
// the chunk files already present.
func NewStore(t tier.Tier, dataDir string, opts Options, logger *zap.Logger) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("%s tier: data dir is required", t)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", dataDir, err)
	}

	s := &Store{
		tier:    t,
		dataDir: dataDir,
		noSync:  opts.NoSync,
		dirty:   make(map[string]struct{}),
		logger:  logger,
	}
	if err := s.scan(); err != nil {
		return nil, err
	}

	logger.Info("file tier opened",
		zap.String("tier", t.String()),
		zap.String("data_dir", dataDir),
		zap.Int64("chunks", s.chunkCount),
		zap.Int64("bytes", s.totalBytes),
	)
	return s, nil
}

func (s *Store) scan() error {
	return filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, chunkExt) {
			return nil
		}
		h, err := readHeader(path)
		if err != nil {
			s.logger.Warn("skipping unreadable chunk file", zap.String("path", path), zap.Error(err))
			return nil
		}
		s.totalBytes += h.Length
		s.chunkCount++
		return nil
	})
}

func (s *Store) objectDir(key string) string {
	return filepath.Join(s.dataDir, objectDirPrefix+url.PathEscape(key))
}

func (s *Store) chunkPath(ref tier.ChunkRef) string {
	return filepath.Join(s.objectDir(ref.Key), fmt.Sprintf("%010d%s", ref.Index, chunkExt))
}

func (s *Store) Put(_ context.Context, ref tier.ChunkRef, data []byte) error {
	path := s.chunkPath(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	prev, perr := readHeader(path)
	existed := perr == nil

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	if _, err := f.Write(chunk.NewHeader(ref.Index, data).Encode()); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing chunk header: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing chunk payload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing chunk file: %w", err)
	}

	s.mu.Lock()
	if existed {
		s.totalBytes -= prev.Length
		s.chunkCount--
	}
	s.totalBytes += int64(len(data))
	s.chunkCount++
	s.dirty[path] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("chunk stored on disk",
		zap.String("key", ref.Key),
		zap.Uint32("index", ref.Index),
		zap.String("path", path),
		zap.Int("size", len(data)),
	)
	return nil
}

func (s *Store) ReadAt(_ context.Context, ref tier.ChunkRef, buf []byte, off int64) (int, error) {
	f, err := os.Open(s.chunkPath(ref))
	if err != nil {
		return 0, fmt.Errorf("opening chunk file: %w", err)
	}
	defer f.Close()

	raw := make([]byte, chunk.HeaderSize)
	if _, err := f.ReadAt(raw, 0); err != nil {
		return 0, fmt.Errorf("reading chunk header: %w", err)
	}
	h, err := chunk.DecodeHeader(raw)
	if err != nil {
		return 0, err
	}
	if off < 0 || off > h.Length {
		return 0, fmt.Errorf("offset %d out of range for chunk %s/%d of %d bytes", off, ref.Key, ref.Index, h.Length)
	}
	if rem := h.Length - off; int64(len(buf)) > rem {
		buf = buf[:rem]
	}

	n, err := f.ReadAt(buf, chunk.HeaderSize+off)
	if errors.Is(err, io.EOF) && n == len(buf) {
		err = nil
	}
	if err != nil {
		return n, fmt.Errorf("reading chunk payload: %w", err)
	}

	// Whole-chunk reads are cheap to verify.
	if off == 0 && int64(n) == h.Length {
		if err := h.Verify(buf[:n]); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (s *Store) Delete(_ context.Context, ref tier.ChunkRef) error {
	path := s.chunkPath(ref)
	h, err := readHeader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	// Leaves the object directory behind when it still holds chunks.
	_ = os.Remove(filepath.Dir(path))

	s.mu.Lock()
	s.totalBytes -= h.Length
	s.chunkCount--
	delete(s.dirty, path)
	s.mu.Unlock()
	return nil
}

// Exists reports whether the chunk file is present with a readable header.
func (s *Store) Exists(_ context.Context, ref tier.ChunkRef) (bool, error) {
	if _, err := readHeader(s.chunkPath(ref)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Sync fsyncs every chunk file written since the previous Sync along with
// the directories that name them.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	pending := s.dirty
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()

	if s.noSync || len(pending) == 0 {
		return nil
	}

	dirs := make(map[string]struct{})
	for path := range pending {
		if err := ctx.Err(); err != nil {
			s.requeue(pending)
			return err
		}
		if err := fsync(path); err != nil {
			s.requeue(pending)
			return fmt.Errorf("fsync %s: %w", path, err)
		}
		dirs[filepath.Dir(path)] = struct{}{}
	}
	dirs[s.dataDir] = struct{}{}
	for dir := range dirs {
		if err := fsync(dir); err != nil {
			s.requeue(pending)
			return fmt.Errorf("fsync %s: %w", dir, err)
		}
	}

	s.logger.Debug("file tier synced",
		zap.String("tier", s.tier.String()),
		zap.Int("files", len(pending)),
	)
	return nil
}

func (s *Store) requeue(paths map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range paths {
		s.dirty[p] = struct{}{}
	}
}

func (s *Store) Stats(_ context.Context) (tier.TierStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tier.TierStats{
		Tier:       s.tier,
		ChunkCount: s.chunkCount,
		UsedBytes:  s.totalBytes,
	}, nil
}

func (s *Store) Close() error {
	return s.Sync(context.Background())
}

func readHeader(path string) (chunk.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return chunk.Header{}, err
	}
	defer f.Close()

	raw := make([]byte, chunk.HeaderSize)
	if _, err := io.ReadFull(f, raw); err != nil {
		return chunk.Header{}, err
	}
	return chunk.DecodeHeader(raw)
}

func fsync(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	return f.Sync()
}
