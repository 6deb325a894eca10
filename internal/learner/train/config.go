package train

import (
	"fmt"

	"github.com/go-sod/surrogate/internal/learner/nn"
)

type Config struct {
	// maximum number of epochs
	Epochs    int              `toml:"n_epochs"`
	Optimizer nn.OptimizerType `toml:"optimizer"`
	// fraction of the training split carved out for early stopping
	ValidationFraction float64 `toml:"validation_fraction"`
	LearningRate       float64 `toml:"lr"`
	// epochs without improvement before the learning rate is halved
	Patience  int     `toml:"patience"`
	BatchSize int     `toml:"batch_size"`
	Loss      nn.Loss `toml:"cost"`
}

func DefaultConfig() Config {
	return Config{
		Epochs:             2000,
		Optimizer:          nn.OptimizerAdam,
		ValidationFraction: 0.1,
		LearningRate:       1e-3,
		Patience:           20,
		BatchSize:          50,
		Loss:               nn.LossMSE,
	}
}

func (c Config) Validate() error {
	if c.Epochs < 1 {
		return fmt.Errorf("train: epochs must be positive, got %d", c.Epochs)
	}
	if c.ValidationFraction < 0 || c.ValidationFraction >= 1 {
		return fmt.Errorf("train: validation fraction must be in [0,1), got %v", c.ValidationFraction)
	}
	if !(c.LearningRate > 0) {
		return fmt.Errorf("train: learning rate must be positive, got %v", c.LearningRate)
	}
	if c.Patience < 0 {
		return fmt.Errorf("train: patience must not be negative, got %d", c.Patience)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("train: batch size must be positive, got %d", c.BatchSize)
	}
	if err := c.Loss.Validate(); err != nil {
		return err
	}
	if _, err := nn.NewOptimizer(c.Optimizer, c.LearningRate); err != nil {
		return err
	}
	return nil
}
