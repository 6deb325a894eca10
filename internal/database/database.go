// Package database owns the bbolt file shared by the persistent stores of the service.
package database

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/go-sod/surrogate/internal/logging"
)

type DB struct {
	DB *bolt.DB
}

func New(ctx context.Context, config *Config) (*DB, error) {
	logger := logging.FromContext(ctx)
	logger.Infof("opening snapshot db %s", config.FileName)

	db, err := bolt.Open(config.FileName, 0600, &bolt.Options{Timeout: config.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}

	return &DB{DB: db}, nil
}

func (db *DB) Close(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	logger.Infof("closing snapshot db")

	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("close snapshot db: %w", err)
	}

	return nil
}
