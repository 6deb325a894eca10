// Package scaler implements the affine normalizer fused into the input and output of every
// committee network.
package scaler

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Epsilon is the floor added to every scale so that the division is always defined.
const Epsilon = 1e-300

var ErrEmptyBatch = errors.New("scaler: batch has no rows")

// Scaler maps values to (v - mean) / (scale + eps). It is immutable once created.
type Scaler struct {
	mean  []float64
	scale []float64
	eps   float64
}

// FromData computes column means and standard deviations of a batch. A single row batch
// has a zero standard deviation.
func FromData(m mat.Matrix) (*Scaler, error) {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return nil, ErrEmptyBatch
	}
	s := &Scaler{
		mean:  make([]float64, cols),
		scale: make([]float64, cols),
		eps:   Epsilon,
	}
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		if rows == 1 {
			s.mean[j] = col[0]
			continue
		}
		s.mean[j], s.scale[j] = stat.MeanStdDev(col, nil)
	}
	return s, nil
}

// Invert returns the scaler undoing other: applying it after other reproduces the input up to
// the epsilon floor.
func Invert(other *Scaler) *Scaler {
	s := &Scaler{
		mean:  make([]float64, len(other.mean)),
		scale: make([]float64, len(other.scale)),
		eps:   other.eps,
	}
	for j := range other.mean {
		denom := other.scale[j] + other.eps
		s.scale[j] = 1 / denom
		s.mean[j] = -other.mean[j] / denom
	}
	return s
}

func (s *Scaler) Width() int {
	return len(s.mean)
}

func (s *Scaler) Mean() []float64 {
	return append([]float64(nil), s.mean...)
}

func (s *Scaler) Scale() []float64 {
	return append([]float64(nil), s.scale...)
}

// Apply scales every row of m into a new matrix.
func (s *Scaler) Apply(m mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(m)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.mean[j]) / (s.scale[j] + s.eps)
	}, out)
	return out
}

// ApplyRow scales a single row.
func (s *Scaler) ApplyRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.mean[j]) / (s.scale[j] + s.eps)
	}
	return out
}

// State is the exported form of a Scaler used by snapshot codecs.
type State struct {
	Mean  []float64
	Scale []float64
	Eps   float64
}

func (s *Scaler) State() State {
	return State{Mean: s.Mean(), Scale: s.Scale(), Eps: s.eps}
}

func FromState(st State) (*Scaler, error) {
	if len(st.Mean) == 0 || len(st.Mean) != len(st.Scale) {
		return nil, fmt.Errorf("scaler: malformed state, mean %d scale %d", len(st.Mean), len(st.Scale))
	}
	if !(st.Eps > 0) {
		return nil, fmt.Errorf("scaler: non-positive epsilon %v", st.Eps)
	}
	return &Scaler{
		mean:  append([]float64(nil), st.Mean...),
		scale: append([]float64(nil), st.Scale...),
		eps:   st.Eps,
	}, nil
}
