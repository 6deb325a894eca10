package snapshot

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"

	"github.com/go-sod/surrogate/internal/learner/dataset"
	"github.com/go-sod/surrogate/internal/learner/ensemble"
	"github.com/go-sod/surrogate/internal/learner/nn"
	"github.com/go-sod/surrogate/internal/learner/scaler"
	"github.com/go-sod/surrogate/internal/schema"
	"github.com/go-sod/surrogate/internal/surrogate"
)

func constant(t *testing.T, in int, outs []float64) *nn.Network {
	t.Helper()
	unit := func(width int) scaler.State {
		st := scaler.State{Mean: make([]float64, width), Scale: make([]float64, width), Eps: scaler.Epsilon}
		for j := range st.Scale {
			st.Scale[j] = 1
		}
		return st
	}
	n, err := nn.FromState(nn.State{
		Activation: string(nn.ActivationTanh),
		Input:      unit(in),
		Output:     unit(len(outs)),
		Layers: []nn.LayerState{
			{In: uint32(in), Out: 1, Weights: make([]float64, in), Biases: []float64{0}},
			{In: 1, Out: uint32(len(outs)), Weights: make([]float64, len(outs)), Biases: outs},
		},
	})
	assert.NilError(t, err)
	return n
}

// testModel returns a calibrated BGK model whose even output dimensions are inactive.
func testModel(t *testing.T) *surrogate.Model {
	t.Helper()
	s, err := schema.Lookup(schema.KindBGK)
	assert.NilError(t, err)
	low := make([]float64, s.OutputWidth())
	high := make([]float64, s.OutputWidth())
	profile := make([]float64, s.OutputWidth())
	for j := range low {
		low[j] = float64(j)
		high[j] = float64(j) + 1
		profile[j] = 0.25
	}
	m, err := surrogate.New(s, []*nn.Network{
		constant(t, s.InputWidth(), low),
		constant(t, s.InputWidth(), high),
	}, profile, 1.0/3)
	assert.NilError(t, err)

	rows := mat.NewDense(5, s.RowWidth(), nil)
	rows.Apply(func(i, j int, _ float64) float64 {
		if j >= s.Output.Lo && j < s.Output.Hi && (j-s.Output.Lo)%2 == 0 {
			return 0
		}
		return float64(i + j)
	}, rows)
	data, err := dataset.FromRows(rows, s)
	assert.NilError(t, err)
	assert.NilError(t, m.Calibrate(context.Background(), data))
	return m
}

func TestRoundTrip(t *testing.T) {
	m := testModel(t)
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 42, time.UTC)
	snap, err := New(m, &ensemble.Result{Attempts: 7}, 5, createdAt)
	assert.NilError(t, err)
	assert.Equal(t, snap.Members, 2)

	data, err := Marshal(snap)
	assert.NilError(t, err)
	back, err := Unmarshal(data)
	assert.NilError(t, err)

	assert.Equal(t, back.ID, snap.ID)
	assert.Equal(t, back.Schema, schema.KindBGK)
	assert.Assert(t, back.CreatedAt.Equal(createdAt))
	assert.Equal(t, back.Attempts, 7)
	assert.Equal(t, back.Rows, 5)

	restored, err := back.Restore()
	assert.NilError(t, err)
	assert.Assert(t, restored.Calibrated())
	assert.DeepEqual(t, restored.Inactive(), m.Inactive())
	infinite := 0
	for j, th := range restored.Thresholds() {
		want := m.Thresholds()[j]
		if math.IsInf(want, 1) {
			infinite++
		}
		if th != want {
			t.Errorf("threshold %d, got: %v, expected: %v", j, th, want)
		}
	}
	assert.Equal(t, infinite, 6)
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Unmarshal([]byte("not a snapshot")); err == nil {
		t.Errorf("garbage must not decode")
	}

	snap, err := New(testModel(t), &ensemble.Result{}, 5, time.Now())
	assert.NilError(t, err)
	data, err := Marshal(snap)
	assert.NilError(t, err)
	if _, err := Unmarshal(data[:len(data)/2]); err == nil {
		t.Errorf("truncated data must not decode")
	}

	var buf bytes.Buffer
	rec := record{Version: 99}
	assert.NilError(t, encodeRecord(&buf, &rec))
	if _, err := Decode(&buf); !errors.Is(err, ErrVersion) {
		t.Errorf("got: %v, expected: %v", err, ErrVersion)
	}
}
