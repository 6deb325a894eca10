package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type OptimizerType string

const (
	OptimizerAdam OptimizerType = "adam"
	OptimizerSGD  OptimizerType = "sgd"
)

// Optimizer updates parameters in place from their gradients.
type Optimizer interface {
	Step(params, grads [][]float64) error
	LearningRate() float64
	SetLearningRate(lr float64)
}

func NewOptimizer(t OptimizerType, lr float64) (Optimizer, error) {
	if !(lr > 0) {
		return nil, fmt.Errorf("nn: learning rate must be positive, got %v", lr)
	}
	switch t {
	case OptimizerAdam:
		return NewAdam(lr), nil
	case OptimizerSGD:
		return &solver{s: gorgonia.NewVanillaSolver(gorgonia.WithLearnRate(lr)), lr: lr}, nil
	default:
		return nil, fmt.Errorf("nn: unknown optimizer %q", t)
	}
}

func NewAdam(lr float64) Optimizer {
	return &solver{s: gorgonia.NewAdamSolver(gorgonia.WithLearnRate(lr)), lr: lr}
}

// solver runs a gorgonia solver over flat parameter slices. Stateful solvers keep their
// moments by parameter position, so the parameter order must be stable across steps.
type solver struct {
	s  gorgonia.Solver
	lr float64
}

type param struct {
	value, grad *tensor.Dense
}

func (p param) Value() gorgonia.Value         { return p.value }
func (p param) Grad() (gorgonia.Value, error) { return p.grad, nil }

func (o *solver) Step(params, grads [][]float64) error {
	model := make([]gorgonia.ValueGrad, len(params))
	for i, p := range params {
		model[i] = param{
			value: tensor.New(tensor.WithShape(len(p)), tensor.WithBacking(p)),
			// solvers scale and zero the gradient in place
			grad: tensor.New(tensor.WithShape(len(p)), tensor.WithBacking(append([]float64(nil), grads[i]...))),
		}
	}
	if err := o.s.Step(model); err != nil {
		return fmt.Errorf("nn: optimizer step: %w", err)
	}
	for i, p := range params {
		updated, ok := model[i].Value().Data().([]float64)
		if !ok || len(updated) != len(p) {
			return fmt.Errorf("%w: optimizer returned tensor %d of another shape", ErrShape, i)
		}
		copy(p, updated)
	}
	return nil
}

func (o *solver) LearningRate() float64 { return o.lr }

// SetLearningRate changes the step size of the live solver without resetting its moments.
func (o *solver) SetLearningRate(lr float64) {
	gorgonia.WithLearnRate(lr)(o.s)
	o.lr = lr
}
