// Package database stores model snapshots in bbolt, one bucket per schema ordered by creation.
package database

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/go-sod/surrogate/internal/database"
	"github.com/go-sod/surrogate/internal/logging"
	"github.com/go-sod/surrogate/internal/schema"
	"github.com/go-sod/surrogate/internal/snapshot"
)

const (
	prefix   = "snapshot:"
	idsIndex = "snapshot:ids"
)

var ErrNotFound = errors.New("snapshot not found")

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

type DB struct {
	sDB *database.DB
}

func bucketName(kind schema.Kind) []byte {
	return []byte(prefix + kind.String())
}

// key sorts by creation time, then id.
func key(s snapshot.Snapshot) []byte {
	k := make([]byte, 8, 8+len(s.ID))
	binary.BigEndian.PutUint64(k, uint64(s.CreatedAt.UnixNano()))
	return append(k, s.ID[:]...)
}

func idOf(k []byte) (uuid.UUID, error) {
	return uuid.FromBytes(k[8:])
}

func (db *DB) Store(_ context.Context, s snapshot.Snapshot) error {
	data, err := snapshot.Marshal(s)
	if err != nil {
		return err
	}
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(s.Schema))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		k := key(s)
		if err := b.Put(k, data); err != nil {
			return fmt.Errorf("put to bucket: %w", err)
		}
		ids, err := tx.CreateBucketIfNotExists([]byte(idsIndex))
		if err != nil {
			return fmt.Errorf("create ids bucket: %w", err)
		}
		if err := ids.Put(s.ID[:], append(bucketName(s.Schema), k...)); err != nil {
			return fmt.Errorf("put to ids bucket: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot of kind.
func (db *DB) Latest(_ context.Context, kind schema.Kind) (*snapshot.Snapshot, error) {
	var found *snapshot.Snapshot
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(kind))
		if b == nil {
			return nil
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return nil
		}
		s, err := snapshot.Unmarshal(v)
		if err != nil {
			return err
		}
		found = &s
		return nil
	}); err != nil {
		return nil, fmt.Errorf("view transaction: %w", err)
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no %s snapshot", ErrNotFound, kind)
	}
	return found, nil
}

func (db *DB) FindByID(_ context.Context, id uuid.UUID) (*snapshot.Snapshot, error) {
	var found *snapshot.Snapshot
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		ids := tx.Bucket([]byte(idsIndex))
		if ids == nil {
			return nil
		}
		ref := ids.Get(id[:])
		if len(ref) < len(prefix)+8+len(id) {
			return nil
		}
		split := len(ref) - 8 - len(id)
		b := tx.Bucket(ref[:split])
		if b == nil {
			return nil
		}
		v := b.Get(ref[split:])
		if v == nil {
			return nil
		}
		s, err := snapshot.Unmarshal(v)
		if err != nil {
			return err
		}
		found = &s
		return nil
	}); err != nil {
		return nil, fmt.Errorf("view transaction: %w", err)
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// Keys lists the snapshot ids of kind, oldest first.
func (db *DB) Keys(kind schema.Kind) ([]uuid.UUID, error) {
	var keys []uuid.UUID
	err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(kind))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			id, err := idOf(k)
			if err != nil {
				return err
			}
			keys = append(keys, id)
		}
		return nil
	})
	return keys, err
}

// DeleteOlder removes all but the keep most recent snapshots of kind and returns how many
// were removed.
func (db *DB) DeleteOlder(ctx context.Context, kind schema.Kind, keep int) (int, error) {
	logger := logging.FromContext(ctx)
	var deleted int
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(kind))
		if b == nil {
			return nil
		}
		var stale [][]byte
		c := b.Cursor()
		kept := 0
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			if kept < keep {
				kept++
				continue
			}
			stale = append(stale, append([]byte(nil), k...))
		}
		ids := tx.Bucket([]byte(idsIndex))
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete snapshot: %w", err)
			}
			if ids != nil {
				if err := ids.Delete(k[8:]); err != nil {
					return fmt.Errorf("delete snapshot id: %w", err)
				}
			}
			deleted++
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("update transaction: %w", err)
	}
	if deleted > 0 {
		logger.Debugf("deleted %d old %s snapshots", deleted, kind)
	}
	return deleted, nil
}
