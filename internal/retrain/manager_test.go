package retrain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"

	"github.com/go-sod/surrogate/internal/alert/model"
	"github.com/go-sod/surrogate/internal/learner"
	"github.com/go-sod/surrogate/internal/learner/ensemble"
	"github.com/go-sod/surrogate/internal/learner/nn"
	"github.com/go-sod/surrogate/internal/learner/scaler"
	"github.com/go-sod/surrogate/internal/schema"
	"github.com/go-sod/surrogate/internal/snapshot"
	snapshotDb "github.com/go-sod/surrogate/internal/snapshot/database"
	"github.com/go-sod/surrogate/internal/surrogate"
	"github.com/go-sod/surrogate/internal/truth"
)

type fakeNotifier struct {
	mtx    sync.Mutex
	events []model.ModelEvent
}

func (n *fakeNotifier) Notify(events ...model.ModelEvent) {
	n.mtx.Lock()
	n.events = append(n.events, events...)
	n.mtx.Unlock()
}

func (n *fakeNotifier) Run(context.Context) error { return nil }

func (n *fakeNotifier) Stop() {}

func unit(width int) scaler.State {
	st := scaler.State{Mean: make([]float64, width), Scale: make([]float64, width), Eps: scaler.Epsilon}
	for j := range st.Scale {
		st.Scale[j] = 1
	}
	return st
}

func constant(t *testing.T, in int, outs []float64) *nn.Network {
	t.Helper()
	n, err := nn.FromState(nn.State{
		Activation: string(nn.ActivationReLU),
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

// bgkModel answers j and j+1 on output j, so every error bar is 0.5.
func bgkModel(t *testing.T, threshold float64) *surrogate.Model {
	t.Helper()
	s, err := schema.Lookup(schema.KindBGK)
	assert.NilError(t, err)
	low := make([]float64, s.OutputWidth())
	high := make([]float64, s.OutputWidth())
	profile := make([]float64, s.OutputWidth())
	for j := range low {
		low[j] = float64(j)
		high[j] = float64(j) + 1
		profile[j] = threshold
	}
	m, err := surrogate.New(s, []*nn.Network{
		constant(t, s.InputWidth(), low),
		constant(t, s.InputWidth(), high),
	}, profile, 1.0/3)
	assert.NilError(t, err)
	return m
}

type fakeStore struct {
	mtx   sync.Mutex
	count int
	// rows landing between the count and the fetch of the next retrain
	arriving int
	rowsErr  error
	latest   *snapshot.Snapshot
	stored   []snapshot.Snapshot
	retrains int
	model    *surrogate.Model
}

func (f *fakeStore) deps() pullDependencies {
	return pullDependencies{
		countRows: func(context.Context) (int, error) {
			f.mtx.Lock()
			defer f.mtx.Unlock()
			return f.count, nil
		},
		fetchRows: func(context.Context) (*mat.Dense, error) {
			f.mtx.Lock()
			defer f.mtx.Unlock()
			if f.rowsErr != nil {
				return nil, f.rowsErr
			}
			f.count += f.arriving
			f.arriving = 0
			return mat.NewDense(f.count, 1, nil), nil
		},
		latestSnapshot: func(context.Context) (*snapshot.Snapshot, error) {
			if f.latest == nil {
				return nil, snapshotDb.ErrNotFound
			}
			return f.latest, nil
		},
		findSnapshot: func(_ context.Context, id uuid.UUID) (*snapshot.Snapshot, error) {
			f.mtx.Lock()
			defer f.mtx.Unlock()
			for i := range f.stored {
				if f.stored[i].ID == id {
					return &f.stored[i], nil
				}
			}
			return nil, snapshotDb.ErrNotFound
		},
		storeSnapshot: func(_ context.Context, s snapshot.Snapshot) error {
			f.mtx.Lock()
			f.stored = append(f.stored, s)
			f.mtx.Unlock()
			return nil
		},
		pruneSnapshots: func(context.Context, int) (int, error) { return 0, nil },
		retrain: func(context.Context, mat.Matrix) (*surrogate.Model, *ensemble.Result, error) {
			f.mtx.Lock()
			defer f.mtx.Unlock()
			f.retrains++
			return f.model, &ensemble.Result{Attempts: 4, Complete: true}, nil
		},
	}
}

func testManager(t *testing.T, f *fakeStore, opts ...Option) (*manager, *fakeNotifier, chan error) {
	t.Helper()
	s, err := schema.Lookup(schema.KindBGK)
	assert.NilError(t, err)
	notifier := &fakeNotifier{}
	shutdownCh := make(chan error, 1)
	opts = append([]Option{WithInterval(time.Hour), WithRebuildDBTime(time.Hour)}, opts...)
	m, err := newManager(s, f.deps(), notifier, shutdownCh, opts...)
	assert.NilError(t, err)
	return m, notifier, shutdownCh
}

func predict(m *manager, in schema.Inputs) (*Prediction, uuid.UUID, error) {
	q, err := m.Acquire()
	if err != nil {
		return nil, uuid.Nil, err
	}
	p, err := q.Predict(context.Background(), in)
	return p, q.SnapshotID(), err
}

func TestRunLoadsSnapshot(t *testing.T) {
	snap, err := snapshot.New(bgkModel(t, 1), &ensemble.Result{Attempts: 3}, 80, time.Now())
	assert.NilError(t, err)
	f := &fakeStore{count: 80, latest: &snap}
	m, notifier, shutdownCh := testManager(t, f)

	assert.NilError(t, m.Run(context.Background()))
	assert.Assert(t, m.Ready())
	assert.Equal(t, f.retrains, 0)
	assert.Equal(t, len(notifier.events), 0)

	p, id, err := predict(m, &schema.BGKInputs{Temperature: 1})
	assert.NilError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.Assert(t, p.Accepted)
	mean := p.Mean.(schema.BGKOutputs)
	assert.Equal(t, mean.Viscosity, 0.5)
	assert.Equal(t, mean.DiffCoeff[0], 2.5)
	errbars := p.ErrBars.(schema.BGKOutputs)
	assert.Equal(t, errbars.ThermalConductivity, 0.5)
	assert.Equal(t, p.Fuzzy.(schema.BGKOutputs).Viscosity, 0.5)

	m.Stop()
	select {
	case err := <-shutdownCh:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retrain manager did not shut down")
	}
	assert.Assert(t, !m.Ready())
	if _, _, err := predict(m, &schema.BGKInputs{}); !errors.Is(err, ErrShutdown) {
		t.Errorf("got: %v, expected: %v", err, ErrShutdown)
	}
}

func TestRunTrainsFirstModel(t *testing.T) {
	f := &fakeStore{count: 60, model: bgkModel(t, 1)}
	m, notifier, _ := testManager(t, f, WithMinRows(50))
	assert.NilError(t, m.Run(context.Background()))
	defer m.Stop()

	assert.Equal(t, f.retrains, 1)
	assert.Equal(t, len(f.stored), 1)
	assert.Equal(t, f.stored[0].Rows, 60)
	assert.Equal(t, f.stored[0].Attempts, 4)
	assert.Equal(t, len(notifier.events), 1)
	assert.Equal(t, notifier.events[0].SnapshotID, f.stored[0].ID)
	assert.Equal(t, notifier.events[0].Schema, "BGK")

	_, id, err := predict(m, &schema.BGKInputs{})
	assert.NilError(t, err)
	assert.Equal(t, id, f.stored[0].ID)
}

func TestRunWithoutGroundTruth(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{name: "empty_table", store: &fakeStore{count: 60, rowsErr: truth.ErrEmpty}},
		{name: "too_few_rows", store: &fakeStore{count: 10}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, _, _ := testManager(t, test.store, WithMinRows(50))
			assert.NilError(t, m.Run(context.Background()))
			defer m.Stop()
			assert.Assert(t, !m.Ready())
			if _, _, err := predict(m, &schema.BGKInputs{}); !errors.Is(err, ErrNoModel) {
				t.Errorf("got: %v, expected: %v", err, ErrNoModel)
			}
		})
	}
}

func TestRunLoadError(t *testing.T) {
	f := &fakeStore{count: 60, rowsErr: errors.New("disk I/O error")}
	m, _, _ := testManager(t, f)
	if err := m.Run(context.Background()); err == nil {
		t.Errorf("a failing ground truth read must fail Run")
	}
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name     string
		before   int
		after    int
		minRows  int
		retrains int
	}{
		{name: "unchanged", before: 60, after: 60, minRows: 50, retrains: 1},
		{name: "grown", before: 60, after: 75, minRows: 50, retrains: 2},
		{name: "below_min_rows", before: 60, after: 30, minRows: 50, retrains: 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := &fakeStore{count: test.before, model: bgkModel(t, 1)}
			m, _, _ := testManager(t, f, WithMinRows(test.minRows))
			ctx := context.Background()
			assert.NilError(t, m.refresh(ctx))
			f.count = test.after
			assert.NilError(t, m.refresh(ctx))
			if f.retrains != test.retrains {
				t.Errorf("got retrains: %d, expected: %d", f.retrains, test.retrains)
			}
		})
	}
}

func TestRowsArrivingDuringRetrain(t *testing.T) {
	f := &fakeStore{count: 60, arriving: 5, model: bgkModel(t, 1)}
	m, _, _ := testManager(t, f, WithMinRows(50))
	ctx := context.Background()
	assert.NilError(t, m.refresh(ctx))
	assert.Equal(t, f.retrains, 1)
	assert.Equal(t, f.stored[0].Rows, 65)
	assert.Equal(t, m.current.rows, 65)

	assert.NilError(t, m.refresh(ctx))
	assert.Equal(t, f.retrains, 1)

	// a restart on the unchanged table reuses the stored snapshot
	f.latest = &f.stored[0]
	restarted, _, _ := testManager(t, f, WithMinRows(50))
	assert.NilError(t, restarted.load(ctx))
	assert.NilError(t, restarted.refresh(ctx))
	assert.Equal(t, restarted.current.snapshotID, f.stored[0].ID)
	if f.retrains != 1 {
		t.Errorf("got retrains: %d, expected: 1", f.retrains)
	}
}

func TestRunPinnedSnapshot(t *testing.T) {
	pinned, err := snapshot.New(bgkModel(t, 1), &ensemble.Result{Attempts: 2}, 70, time.Now().Add(-time.Hour))
	assert.NilError(t, err)
	newer, err := snapshot.New(bgkModel(t, 1), &ensemble.Result{Attempts: 2}, 80, time.Now())
	assert.NilError(t, err)
	masses := pinned
	masses.ID = uuid.New()
	masses.Schema = schema.KindBGKMasses

	tests := []struct {
		name string
		pin  uuid.UUID
		err  error
	}{
		{name: "positive", pin: pinned.ID},
		{name: "missing", pin: uuid.New(), err: snapshotDb.ErrNotFound},
		{name: "other_schema", pin: masses.ID, err: schema.ErrUnsupportedSchema},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := &fakeStore{count: 90, latest: &newer, stored: []snapshot.Snapshot{pinned, newer, masses}, model: bgkModel(t, 1)}
			m, _, _ := testManager(t, f, WithMinRows(50), WithPinnedSnapshot(test.pin))
			err := m.Run(context.Background())
			if test.err != nil {
				if !errors.Is(err, test.err) {
					t.Errorf("got: %v, expected: %v", err, test.err)
				}
				return
			}
			assert.NilError(t, err)
			defer m.Stop()

			assert.NilError(t, m.refresh(context.Background()))
			assert.Equal(t, f.retrains, 0)
			_, id, err := predict(m, &schema.BGKInputs{})
			assert.NilError(t, err)
			assert.Equal(t, id, pinned.ID)
		})
	}
}

func TestPredictRejected(t *testing.T) {
	f := &fakeStore{count: 60, model: bgkModel(t, 0.25)}
	m, _, _ := testManager(t, f)
	assert.NilError(t, m.refresh(context.Background()))

	p, _, err := predict(m, &schema.BGKInputs{})
	assert.NilError(t, err)
	assert.Assert(t, !p.Accepted)
	ok := p.Ok.(schema.BGKVerdict)
	assert.Assert(t, !ok.Viscosity)
	assert.Assert(t, !ok.DiffCoeff[9])
	assert.Equal(t, p.Fuzzy.(schema.BGKOutputs).Viscosity, 2.0)

	if _, _, err := predict(m, &schema.BGKMassesInputs{}); !errors.Is(err, schema.ErrUnsupportedSchema) {
		t.Errorf("got: %v, expected: %v", err, schema.ErrUnsupportedSchema)
	}
}

func TestNewRequiresDatabases(t *testing.T) {
	if _, err := New(nil, nil, learner.Default(), &fakeNotifier{}, make(chan error, 1)); err == nil {
		t.Errorf("creating a manager without databases must fail")
	}
	s, _ := schema.Lookup(schema.KindBGK)
	if _, err := newManager(s, pullDependencies{}, nil, make(chan error, 1)); err == nil {
		t.Errorf("creating a manager without notifier must fail")
	}
}
