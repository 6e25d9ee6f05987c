package meta

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/gftdcojp/tier-workloads/internal/types"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// ErrNotFound is returned when an object has no catalog entry.
var ErrNotFound = errors.New("object not found in catalog")

// Store is the durable object catalog of the engine.
type Store interface {
	PutObjects(ctx context.Context, entries []ObjectEntry) error
	GetObject(ctx context.Context, key string) (*ObjectEntry, error)
	ListObjects(ctx context.Context, prefFilter *types.Tier) ([]ObjectEntry, error)
	DeleteObject(ctx context.Context, key string) error
	Sync() error
	Ping() error
	Close() error
}

// BoltStore implements Store using bbolt (BoltDB).
type BoltStore struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// Options tune the bolt catalog.
type Options struct {
	// NoSync skips fsync on every commit; durability then relies on Sync.
	NoSync bool
}

// NewBoltStore opens or creates a BoltDB catalog.
func NewBoltStore(path string, opts Options, logger *zap.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second, NoSync: opts.NoSync})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	s := &BoltStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *BoltStore) initSchema() error {
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		sys, err := tx.CreateBucketIfNotExists(bucketSystem)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketObjects); err != nil {
			return err
		}
		v := sys.Get(keySchemaVersion)
		if v == nil {
			if _, err := tx.CreateBucketIfNotExists(bucketPrefIndex); err != nil {
				return err
			}
			return sys.Put(keySchemaVersion, uint64ToBytes(currentSchemaVersion))
		}
		return nil
	}); err != nil {
		return err
	}
	return s.Migrate()
}

func encodeObjectEntry(entry *ObjectEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeObjectEntry(data []byte) (*ObjectEntry, error) {
	var entry ObjectEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// PutObjects writes all entries in a single transaction.
func (s *BoltStore) PutObjects(_ context.Context, entries []ObjectEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		objects := tx.Bucket(bucketObjects)
		prefIdx := tx.Bucket(bucketPrefIndex)
		for i := range entries {
			entry := &entries[i]
			key := []byte(entry.Key)

			// Drop a stale index entry when the preference changed.
			if raw := objects.Get(key); raw != nil {
				prev, err := decodeObjectEntry(raw)
				if err != nil {
					return err
				}
				if prev.Pref != entry.Pref {
					if err := prefIdx.Delete(prefIndexKey(prev.Pref, prev.Key)); err != nil {
						return err
					}
				}
			}

			data, err := encodeObjectEntry(entry)
			if err != nil {
				return err
			}
			if err := objects.Put(key, data); err != nil {
				return err
			}
			if err := prefIdx.Put(prefIndexKey(entry.Pref, entry.Key), nil); err != nil {
				return err
			}
		}
		s.logger.Debug("catalog entries committed", zap.Int("count", len(entries)))
		return nil
	})
}

func (s *BoltStore) GetObject(_ context.Context, key string) (*ObjectEntry, error) {
	var entry *ObjectEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketObjects).Get([]byte(key))
		if raw == nil {
			return fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		var err error
		entry, err = decodeObjectEntry(raw)
		return err
	})
	return entry, err
}

func (s *BoltStore) ListObjects(_ context.Context, prefFilter *types.Tier) ([]ObjectEntry, error) {
	var entries []ObjectEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		objects := tx.Bucket(bucketObjects)
		if prefFilter == nil {
			return objects.ForEach(func(k, v []byte) error {
				entry, err := decodeObjectEntry(v)
				if err != nil {
					return err
				}
				entries = append(entries, *entry)
				return nil
			})
		}

		c := tx.Bucket(bucketPrefIndex).Cursor()
		prefix := []byte{byte(*prefFilter)}
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			raw := objects.Get(k[1:])
			if raw == nil {
				continue
			}
			entry, err := decodeObjectEntry(raw)
			if err != nil {
				return err
			}
			entries = append(entries, *entry)
		}
		return nil
	})
	return entries, err
}

func (s *BoltStore) DeleteObject(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		objects := tx.Bucket(bucketObjects)
		raw := objects.Get([]byte(key))
		if raw == nil {
			return nil
		}
		entry, err := decodeObjectEntry(raw)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketPrefIndex).Delete(prefIndexKey(entry.Pref, entry.Key)); err != nil {
			return err
		}
		return objects.Delete([]byte(key))
	})
}

// Sync fsyncs the database file. Only needed when opened with NoSync.
func (s *BoltStore) Sync() error {
	return s.db.Sync()
}

func (s *BoltStore) Ping() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
