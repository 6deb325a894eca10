package database

import "time"

type Config struct {
	FileName string `envconfig:"SURROGATE_SNAPSHOT_DB" default:"snapshots.db"`
	// how long to wait for the file lock held by another process
	OpenTimeout time.Duration `envconfig:"SURROGATE_SNAPSHOT_DB_TIMEOUT" default:"5s"`
}
