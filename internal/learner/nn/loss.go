package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"
)

type Loss string

const (
	LossMSE Loss = "mse"
	LossL1  Loss = "l1"
)

func (l Loss) Validate() error {
	switch l {
	case LossMSE, LossL1:
		return nil
	}
	return fmt.Errorf("nn: unknown loss %q", l)
}

// cost reduces the residual of a batch to the mean loss over every element.
func (l Loss) cost(diff *gorgonia.Node) (*gorgonia.Node, error) {
	var (
		elems *gorgonia.Node
		err   error
	)
	switch l {
	case LossL1:
		elems, err = gorgonia.Abs(diff)
	default:
		elems, err = gorgonia.Square(diff)
	}
	if err != nil {
		return nil, err
	}
	return gorgonia.Mean(elems)
}
