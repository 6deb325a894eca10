package surrogate

import (
	"github.com/go-sod/surrogate/internal/alert"
	"github.com/go-sod/surrogate/internal/collect"
	"github.com/go-sod/surrogate/internal/database"
	"github.com/go-sod/surrogate/internal/metrics"
	"github.com/go-sod/surrogate/internal/predict"
	"github.com/go-sod/surrogate/internal/retrain"
	"github.com/go-sod/surrogate/internal/setup"
	"github.com/go-sod/surrogate/internal/truth"
)

var (
	_ setup.DatabaseConfigProvider = (*Config)(nil)
	_ setup.TruthConfigProvider    = (*Config)(nil)
	_ setup.NotifierConfigProvider = (*Config)(nil)
	_ setup.RetrainConfigProvider  = (*Config)(nil)
	_ setup.MetricsConfigProvider  = (*Config)(nil)

	_ setup.DatabaseConfigProvider = (*TrainConfig)(nil)
	_ setup.TruthConfigProvider    = (*TrainConfig)(nil)
	_ setup.RetrainConfigProvider  = (*TrainConfig)(nil)
)

// Config is the configuration of the prediction service.
type Config struct {
	SrvAddr  string `envconfig:"SURROGATE_ADDR" default:":8787"`
	GRPCAddr string `envconfig:"SURROGATE_GRPC_ADDR" default:":8788"`
	// simultaneous http connections, unlimited when zero
	MaxConnections int `envconfig:"SURROGATE_MAX_CONNECTIONS" default:"256"`
	Retrain        retrain.Config
	Predict        predict.Config
	Collect        collect.Config
	Database       database.Config
	Truth          truth.Config
	Alert          alert.Config
	Metrics        metrics.Config
}

func (c *Config) RetrainConfig() *retrain.Config {
	return &c.Retrain
}

func (c *Config) NotifyConfig() *alert.Config {
	return &c.Alert
}

func (c *Config) DatabaseConfig() *database.Config {
	return &c.Database
}

func (c *Config) TruthConfig() *truth.Config {
	return &c.Truth
}

func (c *Config) MetricsConfig() *metrics.Config {
	return &c.Metrics
}

// TrainConfig is the configuration of the one shot training command.
type TrainConfig struct {
	Retrain  retrain.Config
	Database database.Config
	Truth    truth.Config
}

func (c *TrainConfig) RetrainConfig() *retrain.Config {
	return &c.Retrain
}

func (c *TrainConfig) DatabaseConfig() *database.Config {
	return &c.Database
}

func (c *TrainConfig) TruthConfig() *truth.Config {
	return &c.Truth
}
