// Package surrogate wraps a committee of frozen networks into a model that answers with a mean
// prediction and an uncertainty, and decides whether that uncertainty is acceptable.
package surrogate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/go-sod/surrogate/internal/learner/nn"
	"github.com/go-sod/surrogate/internal/schema"
)

var (
	ErrEmptyCommittee = errors.New("surrogate: committee has no members")
	ErrCalibrated     = errors.New("surrogate: model is already calibrated")
	ErrNoAdapter      = errors.New("surrogate: schema has no adapter")
)

// Model is a calibrated or uncalibrated committee. Queries never change it; Calibrate may run once.
type Model struct {
	schema    schema.Schema
	networks  []*nn.Network
	fussiness float64

	thresholds  []float64
	calibration []float64
	inactive    []bool
	calibrated  bool
}

// New builds a model answering in the layout of s. errorProfile holds one acceptance threshold
// per output dimension and is copied.
func New(s schema.Schema, networks []*nn.Network, errorProfile []float64, fussiness float64) (*Model, error) {
	if len(networks) == 0 {
		return nil, ErrEmptyCommittee
	}
	if !(fussiness > 0) {
		return nil, fmt.Errorf("surrogate: fussiness must be positive, got %v", fussiness)
	}
	in, out := networks[0].InputWidth(), networks[0].OutputWidth()
	for i, n := range networks {
		if !n.Frozen() {
			return nil, fmt.Errorf("member %d: %w", i, nn.ErrNotFrozen)
		}
		if n.InputWidth() != in || n.OutputWidth() != out {
			return nil, fmt.Errorf("%w: member %d is %dx%d, expected %dx%d", nn.ErrShape, i, n.InputWidth(), n.OutputWidth(), in, out)
		}
	}
	if s.InputWidth() != in || s.OutputWidth() != out {
		return nil, fmt.Errorf("%w: schema %s is %dx%d, committee %dx%d", schema.ErrWidth, s.Kind, s.InputWidth(), s.OutputWidth(), in, out)
	}
	if len(errorProfile) != out {
		return nil, fmt.Errorf("%w: error profile has %d dimensions, expected %d", schema.ErrWidth, len(errorProfile), out)
	}
	return &Model{
		schema:     s,
		networks:   networks,
		fussiness:  fussiness,
		thresholds: append([]float64(nil), errorProfile...),
	}, nil
}

func (m *Model) Schema() schema.Schema {
	return m.schema
}

func (m *Model) Members() int {
	return len(m.networks)
}

func (m *Model) Fussiness() float64 {
	return m.fussiness
}

func (m *Model) Calibrated() bool {
	return m.calibrated
}

// Thresholds returns the per dimension acceptance thresholds, +Inf on inactive dimensions.
func (m *Model) Thresholds() []float64 {
	return append([]float64(nil), m.thresholds...)
}

// Calibration returns the factors the error profile was divided by, nil before calibration.
func (m *Model) Calibration() []float64 {
	return append([]float64(nil), m.calibration...)
}

// Inactive returns the dimensions excluded from acceptance, nil before calibration.
func (m *Model) Inactive() []int {
	var dims []int
	for j, off := range m.inactive {
		if off {
			dims = append(dims, j)
		}
	}
	return dims
}

// Process evaluates every member on a batch and returns the row aligned mean and population
// standard deviation across members. With extract set, x holds raw rows and the schema input
// columns are selected first.
func (m *Model) Process(x mat.Matrix, extract bool) (mean, std *mat.Dense, err error) {
	if extract {
		rows, cols := x.Dims()
		if cols < m.schema.Input.Hi {
			return nil, nil, fmt.Errorf("%w: rows have %d columns, need %d", schema.ErrWidth, cols, m.schema.Input.Hi)
		}
		x = mat.DenseCopyOf(x).Slice(0, rows, m.schema.Input.Lo, m.schema.Input.Hi)
	}
	results := make([]*mat.Dense, len(m.networks))
	for i, n := range m.networks {
		if results[i], err = n.Predict(x); err != nil {
			return nil, nil, fmt.Errorf("member %d: %w", i, err)
		}
	}
	rows, cols := results[0].Dims()
	mean = mat.NewDense(rows, cols, nil)
	for _, r := range results {
		mean.Add(mean, r)
	}
	k := float64(len(results))
	mean.Scale(1/k, mean)

	std = mat.NewDense(rows, cols, nil)
	std.Apply(func(i, j int, _ float64) float64 {
		mu := mean.At(i, j)
		var ss float64
		for _, r := range results {
			d := r.At(i, j) - mu
			ss += d * d
		}
		return math.Sqrt(ss / k)
	}, std)
	return mean, std, nil
}

// ProcessRow is Process for a single example.
func (m *Model) ProcessRow(row []float64, extract bool) (mean, std []float64, err error) {
	if len(row) == 0 {
		return nil, nil, fmt.Errorf("%w: empty row", schema.ErrWidth)
	}
	bm, bs, err := m.Process(mat.NewDense(1, len(row), append([]float64(nil), row...)), extract)
	if err != nil {
		return nil, nil, err
	}
	return bm.RawRowView(0), bs.RawRowView(0), nil
}

// Query answers a named input record with named mean and error bar records.
func (m *Model) Query(in schema.Inputs) (mean, errbars schema.Outputs, err error) {
	adapter := m.schema.Adapter
	if adapter == nil {
		return nil, nil, ErrNoAdapter
	}
	packed, err := adapter.PackInputs(in)
	if err != nil {
		return nil, nil, err
	}
	mu, sigma, err := m.ProcessRow(packed, false)
	if err != nil {
		return nil, nil, err
	}
	if mean, err = adapter.UnpackOutputs(mu); err != nil {
		return nil, nil, err
	}
	if errbars, err = adapter.UnpackOutputs(sigma); err != nil {
		return nil, nil, err
	}
	return mean, errbars, nil
}
