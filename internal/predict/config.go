package predict

import "time"

type Config struct {
	RequestTimeout  time.Duration `envconfig:"SURROGATE_PREDICT_REQUEST_TIMEOUT" default:"30s"`
	MaxDataItemsLen int           `envconfig:"SURROGATE_PREDICT_MAX_DATA_ITEMS_LEN" default:"64"`
}
