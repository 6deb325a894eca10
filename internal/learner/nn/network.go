// Package nn implements the fully connected regression network trained as a committee member.
//
// A network starts in the training state, where it is optimized in normalized target space,
// and moves to the frozen state once an output scaler is fused to it. Frozen networks operate
// end to end in raw units and refuse every mutation.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/go-sod/surrogate/internal/learner/scaler"
)

var (
	ErrFrozen    = errors.New("nn: network is frozen")
	ErrNotFrozen = errors.New("nn: network is not frozen")
	ErrShape     = errors.New("nn: shape mismatch")
)

type dense struct {
	// out x in
	w *mat.Dense
	b []float64
}

func newDense(rng *rand.Rand, in, out int) dense {
	bound := 1 / math.Sqrt(float64(in))
	w := mat.NewDense(out, in, nil)
	w.Apply(func(_, _ int, _ float64) float64 {
		return (2*rng.Float64() - 1) * bound
	}, w)
	b := make([]float64, out)
	for i := range b {
		b[i] = (2*rng.Float64() - 1) * bound
	}
	return dense{w: w, b: b}
}

func (d dense) dims() (in, out int) {
	out, in = d.w.Dims()
	return in, out
}

// Network is a chain of affine layers and activations with fused input and output scalers.
type Network struct {
	activation Activation
	act        activation
	in         *scaler.Scaler
	out        *scaler.Scaler
	layers     []dense
	frozen     bool
}

// New builds an untrained network whose input is normalized by in.
func New(rng *rand.Rand, cfg Config, in *scaler.Scaler, nOut int) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if in == nil || in.Width() == 0 || nOut < 1 {
		return nil, fmt.Errorf("%w: input scaler and a positive output width are required", ErrShape)
	}
	act, _ := activationFor(cfg.Activation)

	widths := make([]int, 0, cfg.Layers+1)
	widths = append(widths, in.Width())
	for i := 0; i < cfg.Layers-1; i++ {
		widths = append(widths, cfg.Hidden)
	}
	widths = append(widths, nOut)

	n := &Network{activation: cfg.Activation, act: act, in: in}
	for i := 0; i < cfg.Layers; i++ {
		n.layers = append(n.layers, newDense(rng, widths[i], widths[i+1]))
	}
	return n, nil
}

func (n *Network) InputWidth() int {
	return n.in.Width()
}

func (n *Network) OutputWidth() int {
	_, out := n.layers[len(n.layers)-1].dims()
	return out
}

func (n *Network) Frozen() bool {
	return n.frozen
}

// Forward evaluates the network in normalized target space with plain matrix arithmetic, the
// path every prediction takes.
func (n *Network) Forward(x mat.Matrix) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols != n.InputWidth() {
		return nil, fmt.Errorf("%w: got %d input columns, expected %d", ErrShape, cols, n.InputWidth())
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrShape)
	}
	h := n.in.Apply(x)
	for i, l := range n.layers {
		_, out := l.dims()
		z := mat.NewDense(rows, out, nil)
		z.Mul(h, l.w.T())
		last := i == len(n.layers)-1
		z.Apply(func(_, j int, v float64) float64 {
			v += l.b[j]
			if last {
				return v
			}
			return n.act.fn(v)
		}, z)
		h = z
	}
	return h, nil
}

// Predict evaluates a frozen network in raw units.
func (n *Network) Predict(x mat.Matrix) (*mat.Dense, error) {
	if !n.frozen {
		return nil, ErrNotFrozen
	}
	y, err := n.Forward(x)
	if err != nil {
		return nil, err
	}
	return n.out.Apply(y), nil
}

// Gradients are aligned with the network parameters: weights then biases of every layer.
type Gradients [][]float64

// Backprop computes the loss of a batch against targets given in normalized space, together
// with the gradient of every parameter.
func (n *Network) Backprop(x, target mat.Matrix, loss Loss) (float64, Gradients, error) {
	if n.frozen {
		return 0, nil, ErrFrozen
	}
	rows, cols := x.Dims()
	if cols != n.InputWidth() {
		return 0, nil, fmt.Errorf("%w: got %d input columns, expected %d", ErrShape, cols, n.InputWidth())
	}
	if rows == 0 {
		return 0, nil, fmt.Errorf("%w: empty batch", ErrShape)
	}
	if tr, tc := target.Dims(); tr != rows || tc != n.OutputWidth() {
		return 0, nil, fmt.Errorf("%w: target %dx%d, prediction %dx%d", ErrShape, tr, tc, rows, n.OutputWidth())
	}

	cost, params, vm, err := n.compile(n.in.Apply(x), target, loss)
	if err != nil {
		return 0, nil, err
	}
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return 0, nil, fmt.Errorf("nn: running graph: %w", err)
	}

	grads := make(Gradients, len(params))
	for i, p := range params {
		gv, err := p.Grad()
		if err != nil {
			return 0, nil, fmt.Errorf("nn: gradient of %s: %w", p.Name(), err)
		}
		if grads[i], err = floats(gv); err != nil {
			return 0, nil, err
		}
	}
	value, err := floats(cost.Value())
	if err != nil || len(value) != 1 {
		return 0, nil, fmt.Errorf("nn: cost is not a scalar: %v", cost.Value())
	}
	return value[0], grads, nil
}

// buildMu serializes graph construction: gorgonia shares constant nodes between graphs and
// caches their hashes on first use.
var buildMu sync.Mutex

func (n *Network) compile(x, target mat.Matrix, loss Loss) (*gorgonia.Node, gorgonia.Nodes, gorgonia.VM, error) {
	buildMu.Lock()
	defer buildMu.Unlock()

	g := gorgonia.NewGraph()
	cost, params, err := n.graph(g, x, target, loss)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("nn: building graph: %w", err)
	}
	if _, err := gorgonia.Grad(cost, params...); err != nil {
		return nil, nil, nil, fmt.Errorf("nn: differentiating: %w", err)
	}
	return cost, params, gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(params...)), nil
}

// graph mirrors Forward on copies of the parameters and returns the cost node together with
// the parameter nodes in params order.
func (n *Network) graph(g *gorgonia.ExprGraph, x, target mat.Matrix, loss Loss) (*gorgonia.Node, gorgonia.Nodes, error) {
	params := make(gorgonia.Nodes, 0, 2*len(n.layers))
	h := matrixNode(g, "x", x)
	for i, l := range n.layers {
		in, out := l.dims()
		w := gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(out, in),
			gorgonia.WithName(fmt.Sprintf("w%d", i)),
			gorgonia.WithValue(tensorOf(l.w.RawMatrix().Data, out, in)))
		b := gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(1, out),
			gorgonia.WithName(fmt.Sprintf("b%d", i)),
			gorgonia.WithValue(tensorOf(l.b, 1, out)))
		params = append(params, w, b)

		wt, err := gorgonia.Transpose(w)
		if err != nil {
			return nil, nil, err
		}
		z, err := gorgonia.Mul(h, wt)
		if err != nil {
			return nil, nil, err
		}
		if h, err = gorgonia.BroadcastAdd(z, b, nil, []byte{0}); err != nil {
			return nil, nil, err
		}
		if i == len(n.layers)-1 {
			break
		}
		if h, err = n.act.node(h); err != nil {
			return nil, nil, err
		}
	}
	diff, err := gorgonia.Sub(h, matrixNode(g, "y", target))
	if err != nil {
		return nil, nil, err
	}
	cost, err := loss.cost(diff)
	if err != nil {
		return nil, nil, err
	}
	return cost, params, nil
}

func matrixNode(g *gorgonia.ExprGraph, name string, m mat.Matrix) *gorgonia.Node {
	r, c := m.Dims()
	return gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(r, c),
		gorgonia.WithName(name),
		gorgonia.WithValue(tensorOf(mat.DenseCopyOf(m).RawMatrix().Data, r, c)))
}

// tensorOf copies data so the graph never writes into the live parameters.
func tensorOf(data []float64, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(append([]float64(nil), data...)))
}

func floats(v gorgonia.Value) ([]float64, error) {
	switch d := v.Data().(type) {
	case []float64:
		return append([]float64(nil), d...), nil
	case float64:
		return []float64{d}, nil
	default:
		return nil, fmt.Errorf("nn: unexpected value %T", d)
	}
}

func (n *Network) params() [][]float64 {
	params := make([][]float64, 0, 2*len(n.layers))
	for _, l := range n.layers {
		params = append(params, l.w.RawMatrix().Data, l.b)
	}
	return params
}

// Update applies one optimizer step.
func (n *Network) Update(opt Optimizer, grads Gradients) error {
	if n.frozen {
		return ErrFrozen
	}
	params := n.params()
	if len(grads) != len(params) {
		return fmt.Errorf("%w: got %d gradients, expected %d", ErrShape, len(grads), len(params))
	}
	for i := range params {
		if len(grads[i]) != len(params[i]) {
			return fmt.Errorf("%w: gradient %d has %d values, expected %d", ErrShape, i, len(grads[i]), len(params[i]))
		}
	}
	return opt.Step(params, grads)
}

// Snapshot is a deep copy of the parameters, never aliased with the live network.
type Snapshot struct {
	params [][]float64
}

func (n *Network) Snapshot() Snapshot {
	params := n.params()
	s := Snapshot{params: make([][]float64, len(params))}
	for i, p := range params {
		s.params[i] = append([]float64(nil), p...)
	}
	return s
}

// Restore overwrites the parameters with a snapshot taken from this network.
func (n *Network) Restore(s Snapshot) error {
	if n.frozen {
		return ErrFrozen
	}
	params := n.params()
	if len(s.params) != len(params) {
		return fmt.Errorf("%w: snapshot has %d tensors, expected %d", ErrShape, len(s.params), len(params))
	}
	for i := range params {
		if len(s.params[i]) != len(params[i]) {
			return fmt.Errorf("%w: snapshot tensor %d", ErrShape, i)
		}
		copy(params[i], s.params[i])
	}
	return nil
}

// Freeze fuses the output scaler mapping normalized predictions back to raw units and makes
// the network immutable.
func (n *Network) Freeze(out *scaler.Scaler) error {
	if n.frozen {
		return ErrFrozen
	}
	if out == nil || out.Width() != n.OutputWidth() {
		return fmt.Errorf("%w: output scaler does not match %d outputs", ErrShape, n.OutputWidth())
	}
	n.out = out
	n.frozen = true
	return nil
}
