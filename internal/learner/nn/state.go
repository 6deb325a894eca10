package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/go-sod/surrogate/internal/learner/scaler"
)

type LayerState struct {
	In      uint32
	Out     uint32
	Weights []float64
	Biases  []float64
}

// State is the exported form of a frozen network used by snapshot codecs.
type State struct {
	Activation string
	Input      scaler.State
	Output     scaler.State
	Layers     []LayerState
}

func (n *Network) State() (State, error) {
	if !n.frozen {
		return State{}, ErrNotFrozen
	}
	st := State{
		Activation: string(n.activation),
		Input:      n.in.State(),
		Output:     n.out.State(),
	}
	for _, l := range n.layers {
		in, out := l.dims()
		st.Layers = append(st.Layers, LayerState{
			In:      uint32(in),
			Out:     uint32(out),
			Weights: append([]float64(nil), l.w.RawMatrix().Data...),
			Biases:  append([]float64(nil), l.b...),
		})
	}
	return st, nil
}

// FromState rebuilds a frozen network.
func FromState(st State) (*Network, error) {
	act, err := activationFor(Activation(st.Activation))
	if err != nil {
		return nil, err
	}
	in, err := scaler.FromState(st.Input)
	if err != nil {
		return nil, fmt.Errorf("input scaler: %w", err)
	}
	out, err := scaler.FromState(st.Output)
	if err != nil {
		return nil, fmt.Errorf("output scaler: %w", err)
	}
	if len(st.Layers) < 2 {
		return nil, fmt.Errorf("%w: %d layers", ErrShape, len(st.Layers))
	}

	n := &Network{activation: Activation(st.Activation), act: act, in: in}
	width := in.Width()
	for i, ls := range st.Layers {
		if int(ls.In) != width || len(ls.Weights) != int(ls.In*ls.Out) || len(ls.Biases) != int(ls.Out) {
			return nil, fmt.Errorf("%w: layer %d", ErrShape, i)
		}
		n.layers = append(n.layers, dense{
			w: mat.NewDense(int(ls.Out), int(ls.In), append([]float64(nil), ls.Weights...)),
			b: append([]float64(nil), ls.Biases...),
		})
		width = int(ls.Out)
	}
	if err := n.Freeze(out); err != nil {
		return nil, err
	}
	return n, nil
}
