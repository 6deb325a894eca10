package nn

import (
	"fmt"
	"math"

	"gorgonia.org/gorgonia"
)

type Activation string

const (
	ActivationReLU    Activation = "relu"
	ActivationTanh    Activation = "tanh"
	ActivationSigmoid Activation = "sigmoid"
)

// Config is the shape of every committee network.
type Config struct {
	// total number of affine layers, at least 2
	Layers int `toml:"n_layers"`
	// width of the hidden layers
	Hidden     int        `toml:"n_hidden"`
	Activation Activation `toml:"activation"`
}

func DefaultConfig() Config {
	return Config{
		Layers:     6,
		Hidden:     64,
		Activation: ActivationReLU,
	}
}

func (c Config) Validate() error {
	if c.Layers < 2 {
		return fmt.Errorf("nn: at least 2 layers required, got %d", c.Layers)
	}
	if c.Hidden < 1 {
		return fmt.Errorf("nn: hidden width must be positive, got %d", c.Hidden)
	}
	if _, err := activationFor(c.Activation); err != nil {
		return err
	}
	return nil
}

type activation struct {
	fn func(float64) float64
	// same function as a differentiable graph op
	node func(*gorgonia.Node) (*gorgonia.Node, error)
}

func activationFor(a Activation) (activation, error) {
	switch a {
	case ActivationReLU:
		return activation{
			fn:   func(x float64) float64 { return math.Max(x, 0) },
			node: gorgonia.Rectify,
		}, nil
	case ActivationTanh:
		return activation{fn: math.Tanh, node: gorgonia.Tanh}, nil
	case ActivationSigmoid:
		return activation{
			fn:   func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
			node: gorgonia.Sigmoid,
		}, nil
	default:
		return activation{}, fmt.Errorf("nn: unknown activation %q", a)
	}
}
