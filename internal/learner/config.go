package learner

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/go-sod/surrogate/internal/learner/ensemble"
	"github.com/go-sod/surrogate/internal/learner/nn"
	"github.com/go-sod/surrogate/internal/learner/train"
	"github.com/go-sod/surrogate/internal/schema"
)

// Config bundles every learning parameter. It is a value: pass it along, never share pointers.
type Config struct {
	Schema schema.Kind `toml:"solver_type"`
	// smaller values flag fewer points as too uncertain
	Fussiness float64         `toml:"uq_fussyness"`
	Net       nn.Config       `toml:"net_config"`
	Training  train.Config    `toml:"training_config"`
	Ensemble  ensemble.Config `toml:"ensemble_config"`
}

func Default() Config {
	return Config{
		Schema:    schema.KindBGK,
		Fussiness: 1.0 / 3,
		Net:       nn.DefaultConfig(),
		Training:  train.DefaultConfig(),
		Ensemble:  ensemble.DefaultConfig(),
	}
}

// LoadFile reads a TOML file over the defaults: keys missing from the file keep their default.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("learning config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("learning config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := schema.Lookup(c.Schema); err != nil {
		return err
	}
	if !(c.Fussiness > 0) {
		return fmt.Errorf("learner: fussiness must be positive, got %v", c.Fussiness)
	}
	if err := c.Net.Validate(); err != nil {
		return err
	}
	if err := c.Training.Validate(); err != nil {
		return err
	}
	return c.Ensemble.Validate()
}
