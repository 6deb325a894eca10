package database

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/go-sod/surrogate/internal/alert/model"
	"github.com/go-sod/surrogate/internal/database"
)

// pending events that could not be published before shutdown
const bucket = "alert:pending"

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

type DB struct {
	sDB *database.DB
}

func (db *DB) Store(_ context.Context, events ...model.ModelEvent) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		for _, e := range events {
			bytes, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.ID.String()), bytes); err != nil {
				return fmt.Errorf("put to bucket: %w", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (db *DB) Delete(_ context.Context, events ...model.ModelEvent) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		for _, e := range events {
			if err := b.Delete([]byte(e.ID.String())); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (db *DB) FindAll(_ context.Context) ([]model.ModelEvent, error) {
	var events []model.ModelEvent
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e model.ModelEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("event unmarshal: %w", err)
			}
			events = append(events, e)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction: %w", err)
	}
	return events, nil
}
