// Package dataset holds feature/target tables and their immutable index views.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/go-sod/surrogate/internal/schema"
)

// MinHeldOut is the smallest held-out split ever carved from a dataset.
const MinHeldOut = 2

var ErrSplitSize = errors.New("dataset: invalid split size")

// Dataset is an ordered view over shared feature and target matrices. The matrices are never
// written after construction, so views can be shared freely.
type Dataset struct {
	x, y *mat.Dense
	idx  []int
}

// New copies features and targets into a dataset. Both must have the same number of rows.
func New(x, y mat.Matrix) (*Dataset, error) {
	xr, _ := x.Dims()
	yr, _ := y.Dims()
	if xr != yr {
		return nil, fmt.Errorf("dataset: %d feature rows but %d target rows", xr, yr)
	}
	if xr == 0 {
		return nil, fmt.Errorf("%w: empty dataset", ErrSplitSize)
	}
	idx := make([]int, xr)
	for i := range idx {
		idx[i] = i
	}
	return &Dataset{x: mat.DenseCopyOf(x), y: mat.DenseCopyOf(y), idx: idx}, nil
}

// FromRows slices raw rows into features and targets as described by the schema.
func FromRows(rows mat.Matrix, s schema.Schema) (*Dataset, error) {
	r, c := rows.Dims()
	if c != s.RowWidth() {
		return nil, fmt.Errorf("%w: got %d columns, schema %s has %d", schema.ErrWidth, c, s.Kind, s.RowWidth())
	}
	if r == 0 {
		return nil, fmt.Errorf("%w: no rows for schema %s", ErrSplitSize, s.Kind)
	}
	dense := mat.DenseCopyOf(rows)
	x := dense.Slice(0, r, s.Input.Lo, s.Input.Hi)
	y := dense.Slice(0, r, s.Output.Lo, s.Output.Hi)
	return New(x, y)
}

func (d *Dataset) Len() int {
	return len(d.idx)
}

func (d *Dataset) Widths() (in, out int) {
	_, in = d.x.Dims()
	_, out = d.y.Dims()
	return in, out
}

func (d *Dataset) gather(m *mat.Dense) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(d.idx), c, nil)
	for i, k := range d.idx {
		out.SetRow(i, m.RawRowView(k))
	}
	return out
}

// Features returns a copy of the feature rows of this view.
func (d *Dataset) Features() *mat.Dense {
	return d.gather(d.x)
}

// Targets returns a copy of the target rows of this view.
func (d *Dataset) Targets() *mat.Dense {
	return d.gather(d.y)
}

// Subset returns the view made of the given positions of d.
func (d *Dataset) Subset(positions []int) (*Dataset, error) {
	idx := make([]int, len(positions))
	for i, p := range positions {
		if p < 0 || p >= len(d.idx) {
			return nil, fmt.Errorf("%w: position %d out of %d rows", ErrSplitSize, p, len(d.idx))
		}
		idx[i] = d.idx[p]
	}
	return &Dataset{x: d.x, y: d.y, idx: idx}, nil
}

// Split randomly partitions d into two disjoint views of the requested sizes.
func (d *Dataset) Split(rng *rand.Rand, nFirst, nSecond int) (*Dataset, *Dataset, error) {
	if nFirst < 1 || nSecond < 1 || nFirst+nSecond != d.Len() {
		return nil, nil, fmt.Errorf("%w: %d + %d of %d rows", ErrSplitSize, nFirst, nSecond, d.Len())
	}
	perm := rng.Perm(d.Len())
	first, _ := d.Subset(perm[:nFirst])
	second, _ := d.Subset(perm[nFirst:])
	return first, second, nil
}

// SplitSizes returns the sizes of the kept and held-out parts of n rows when frac of them is held
// out, never holding out fewer than MinHeldOut rows.
func SplitSizes(n int, frac float64) (kept, held int, err error) {
	held = int(frac * float64(n))
	if held < MinHeldOut {
		held = MinHeldOut
	}
	kept = n - held
	if kept < 1 {
		return 0, 0, fmt.Errorf("%w: %d rows cannot hold out %d", ErrSplitSize, n, held)
	}
	return kept, held, nil
}
