package meta

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// Migrate runs any pending schema migrations.
func (s *BoltStore) Migrate() error {
	var version uint64
	s.db.View(func(tx *bbolt.Tx) error {
		sys := tx.Bucket(bucketSystem)
		if sys == nil {
			return nil
		}
		v := sys.Get(keySchemaVersion)
		if v != nil {
			version = bytesToUint64(v)
		}
		return nil
	})

	if version < 2 {
		if err := s.migrateV1toV2(); err != nil {
			return fmt.Errorf("migration v1→v2: %w", err)
		}
	}

	return nil
}

// migrateV1toV2 builds the preferred-tier index from existing objects.
func (s *BoltStore) migrateV1toV2() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		prefIdx, err := tx.CreateBucketIfNotExists(bucketPrefIndex)
		if err != nil {
			return err
		}

		objects := tx.Bucket(bucketObjects)
		if objects != nil {
			err := objects.ForEach(func(k, v []byte) error {
				entry, err := decodeObjectEntry(v)
				if err != nil {
					return fmt.Errorf("decoding %q: %w", k, err)
				}
				return prefIdx.Put(prefIndexKey(entry.Pref, entry.Key), nil)
			})
			if err != nil {
				return err
			}
		}

		sys := tx.Bucket(bucketSystem)
		if sys == nil {
			return fmt.Errorf("system bucket not found")
		}
		return sys.Put(keySchemaVersion, uint64ToBytes(2))
	})
}
