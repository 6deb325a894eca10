package collect

import (
	"time"
)

type Config struct {
	RequestTimeout time.Duration `envconfig:"SURROGATE_COLLECT_REQUEST_TIMEOUT" default:"60s"`
	// rows accepted by a single request
	MaxRows int `envconfig:"SURROGATE_COLLECT_MAX_ROWS" default:"10000"`
}
