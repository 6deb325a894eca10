package alert

import (
	"time"
)

type Config struct {
	AllowAlerts bool `envconfig:"SURROGATE_ALLOW_ALERTS" default:"true"`
	// redis server receiving model events, alerts are disabled when empty
	RedisAddr     string        `envconfig:"SURROGATE_ALERT_REDIS_ADDR"`
	RedisPassword string        `envconfig:"SURROGATE_ALERT_REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"SURROGATE_ALERT_REDIS_DB" default:"0"`
	Channel       string        `envconfig:"SURROGATE_ALERT_CHANNEL" default:"surrogate:models"`
	Interval      time.Duration `envconfig:"SURROGATE_ALERT_INTERVAL" default:"5s"`
	// timeout of a single publish
	RequestTimeout time.Duration `envconfig:"SURROGATE_ALERT_REQUEST_TIMEOUT" default:"3s"`
}

func (c *Config) Enabled() bool {
	return c.AllowAlerts && c.RedisAddr != ""
}
