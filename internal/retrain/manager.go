// Package retrain keeps the served surrogate model in step with the ground truth database.
package retrain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/go-sod/surrogate/internal/alert"
	alertModel "github.com/go-sod/surrogate/internal/alert/model"
	"github.com/go-sod/surrogate/internal/database"
	"github.com/go-sod/surrogate/internal/learner"
	"github.com/go-sod/surrogate/internal/learner/ensemble"
	"github.com/go-sod/surrogate/internal/logging"
	"github.com/go-sod/surrogate/internal/metrics"
	"github.com/go-sod/surrogate/internal/schema"
	"github.com/go-sod/surrogate/internal/snapshot"
	snapshotDb "github.com/go-sod/surrogate/internal/snapshot/database"
	"github.com/go-sod/surrogate/internal/surrogate"
	"github.com/go-sod/surrogate/internal/truth"
)

var (
	ErrNoModel  = errors.New("retrain: no model trained yet")
	ErrShutdown = errors.New("retrain: shutting down")
)

type ProvideFn func(alert.Manager, chan<- error) (Manager, error)

type Manager interface {
	Predictor
	// Run loads or trains the first model and starts the background schedulers
	Run(context.Context) error
	Stop()
	// Ready reports whether a model is installed
	Ready() bool
}

// Predictor hands out the currently installed model.
type Predictor interface {
	Schema() schema.Schema
	// Acquire returns the installed model. It keeps answering after a retrain installs a newer
	// one, so every query of a request sees the same snapshot.
	Acquire() (Querier, error)
}

// Querier answers queries with one trained model.
type Querier interface {
	SnapshotID() uuid.UUID
	Predict(ctx context.Context, in schema.Inputs) (*Prediction, error)
}

// Prediction is the model answer for one input record. Fuzzy holds the error bar to threshold
// ratios, Ok the per field verdict and Accepted whether every field passed.
type Prediction struct {
	Mean     schema.Outputs
	ErrBars  schema.Outputs
	Fuzzy    schema.Outputs
	Ok       schema.Verdict
	Accepted bool
}

type (
	countRowsFn      func(context.Context) (int, error)
	fetchRowsFn      func(context.Context) (*mat.Dense, error)
	latestSnapshotFn func(context.Context) (*snapshot.Snapshot, error)
	findSnapshotFn   func(context.Context, uuid.UUID) (*snapshot.Snapshot, error)
	storeSnapshotFn  func(context.Context, snapshot.Snapshot) error
	pruneSnapshotsFn func(ctx context.Context, keep int) (int, error)
	retrainFn        func(context.Context, mat.Matrix) (*surrogate.Model, *ensemble.Result, error)
)

type pullDependencies struct {
	countRows      countRowsFn
	fetchRows      fetchRowsFn
	latestSnapshot latestSnapshotFn
	findSnapshot   findSnapshotFn
	storeSnapshot  storeSnapshotFn
	pruneSnapshots pruneSnapshotsFn
	retrain        retrainFn
}

type Options struct {
	interval      time.Duration
	minRows       int
	maxSnapshots  int
	rebuildDBTime time.Duration
	pinned        uuid.UUID
	deps          pullDependencies
}

type Option func(*manager)

func WithInterval(t time.Duration) Option {
	return func(o *manager) {
		o.opts.interval = t
	}
}

func WithMinRows(n int) Option {
	return func(o *manager) {
		o.opts.minRows = n
	}
}

func WithMaxSnapshots(n int) Option {
	return func(o *manager) {
		o.opts.maxSnapshots = n
	}
}

func WithRebuildDBTime(t time.Duration) Option {
	return func(o *manager) {
		o.opts.rebuildDBTime = t
	}
}

// WithPinnedSnapshot serves the stored snapshot id and never retrains.
func WithPinnedSnapshot(id uuid.UUID) Option {
	return func(o *manager) {
		o.opts.pinned = id
	}
}

// New returns a manager training models of cfg.Schema from truthDB and keeping them in db.
func New(
	truthDB *truth.DB,
	db *database.DB,
	cfg learner.Config,
	notifier alert.Manager,
	shutdownCh chan<- error,
	opts ...Option,
) (*manager, error) {
	if truthDB == nil || db == nil {
		return nil, fmt.Errorf("database instance is not created")
	}
	s, err := schema.Lookup(cfg.Schema)
	if err != nil {
		return nil, err
	}
	snapshots := snapshotDb.New(db)
	deps := pullDependencies{
		countRows: func(ctx context.Context) (int, error) {
			return truthDB.Count(ctx, s)
		},
		fetchRows: func(ctx context.Context) (*mat.Dense, error) {
			return truthDB.Rows(ctx, s)
		},
		latestSnapshot: func(ctx context.Context) (*snapshot.Snapshot, error) {
			return snapshots.Latest(ctx, s.Kind)
		},
		findSnapshot:  snapshots.FindByID,
		storeSnapshot: snapshots.Store,
		pruneSnapshots: func(ctx context.Context, keep int) (int, error) {
			return snapshots.DeleteOlder(ctx, s.Kind, keep)
		},
		retrain: func(ctx context.Context, rows mat.Matrix) (*surrogate.Model, *ensemble.Result, error) {
			return learner.Retrain(ctx, rows, cfg)
		},
	}
	return newManager(s, deps, notifier, shutdownCh, opts...)
}

func newManager(s schema.Schema, deps pullDependencies, notifier alert.Manager, shutdownCh chan<- error, opts ...Option) (*manager, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier instance is not created")
	}
	m := &manager{
		schema:     s,
		notifier:   notifier,
		shutdownCh: shutdownCh,
		opts: Options{
			interval:      time.Minute,
			maxSnapshots:  10,
			rebuildDBTime: 10 * time.Minute,
		},
	}
	for _, f := range opts {
		f(m)
	}
	m.opts.deps = deps
	m.dbScheduler = newDBScheduler(dbSchedulerConfig{
		maxSnapshots:  m.opts.maxSnapshots,
		rebuildDBTime: m.opts.rebuildDBTime,
	})
	return m, nil
}

type installed struct {
	model      *surrogate.Model
	snapshotID uuid.UUID
	// complete ground truth rows the model was trained on
	rows int
}

func (in *installed) SnapshotID() uuid.UUID {
	return in.snapshotID
}

// Predict queries the model and applies the acceptance predicates.
func (in *installed) Predict(ctx context.Context, inputs schema.Inputs) (*Prediction, error) {
	mean, errbars, err := in.model.Query(inputs)
	if err != nil {
		return nil, err
	}
	fuzzy, err := in.model.IsErrOkFuzzy(errbars)
	if err != nil {
		return nil, err
	}
	ok, err := in.model.IsErrOk(errbars)
	if err != nil {
		return nil, err
	}
	accepted := ok.All()
	metrics.RecordPrediction(ctx, accepted)
	return &Prediction{Mean: mean, ErrBars: errbars, Fuzzy: fuzzy, Ok: ok, Accepted: accepted}, nil
}

type manager struct {
	mtx sync.RWMutex

	opts        Options
	schema      schema.Schema
	notifier    alert.Manager
	dbScheduler *dbScheduler
	shutdownCh  chan<- error

	closed  bool
	current *installed

	cancelNotifier func()
	cancel         func()
}

func (m *manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	c, cancelNotifier := context.WithCancel(context.Background())
	m.cancelNotifier = cancelNotifier

	if err := m.notifier.Run(c); err != nil {
		cancel()
		cancelNotifier()
		return fmt.Errorf("alert.Run: %w", err)
	}
	if err := m.load(ctx); err != nil {
		cancel()
		cancelNotifier()
		return fmt.Errorf("can not start retrain manager: %w", err)
	}

	go m.scheduler(ctx)
	if m.opts.pinned == uuid.Nil {
		go m.dbScheduler.schedule(ctx, m.opts.deps.pruneSnapshots)
	}
	return nil
}

func (m *manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *manager) Ready() bool {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.current != nil && !m.closed
}

func (m *manager) Schema() schema.Schema {
	return m.schema
}

// load installs the pinned snapshot, or the latest stored one, or trains a first model when
// there is none.
func (m *manager) load(ctx context.Context) error {
	if m.opts.pinned != uuid.Nil {
		snap, err := m.opts.deps.findSnapshot(ctx, m.opts.pinned)
		if err != nil {
			return fmt.Errorf("fetch pinned snapshot: %w", err)
		}
		if snap.Schema != m.schema.Kind {
			return fmt.Errorf("%w: pinned snapshot %s is %s, serving %s", schema.ErrUnsupportedSchema, snap.ID, snap.Schema, m.schema.Kind)
		}
		return m.restore(ctx, snap)
	}

	snap, err := m.opts.deps.latestSnapshot(ctx)
	switch {
	case err == nil:
		return m.restore(ctx, snap)
	case errors.Is(err, snapshotDb.ErrNotFound):
	default:
		return fmt.Errorf("fetch latest snapshot: %w", err)
	}

	if err := m.refresh(ctx); err != nil {
		if errors.Is(err, truth.ErrEmpty) || errors.Is(err, learner.ErrNoMembers) {
			logging.FromContext(ctx).Warnf("starting without a model: %v", err)
			return nil
		}
		return err
	}
	return nil
}

func (m *manager) restore(ctx context.Context, snap *snapshot.Snapshot) error {
	model, err := snap.Restore()
	if err != nil {
		return fmt.Errorf("restore snapshot %s: %w", snap.ID, err)
	}
	m.install(&installed{model: model, snapshotID: snap.ID, rows: snap.Rows})
	logging.FromContext(ctx).Infof("loaded %s snapshot %s trained on %d rows", snap.Schema, snap.ID, snap.Rows)
	return nil
}

// refresh retrains when the number of complete ground truth rows moved since the installed model.
func (m *manager) refresh(ctx context.Context) error {
	if m.opts.pinned != uuid.Nil {
		return nil
	}
	logger := logging.FromContext(ctx)
	n, err := m.opts.deps.countRows(ctx)
	if err != nil {
		return fmt.Errorf("count ground truth rows: %w", err)
	}
	m.mtx.RLock()
	current := m.current
	m.mtx.RUnlock()
	if current != nil && current.rows == n {
		return nil
	}
	if n < m.opts.minRows {
		logger.Debugf("%d ground truth rows, waiting for %d", n, m.opts.minRows)
		return nil
	}
	return m.retrain(ctx)
}

// retrain trains on the current ground truth. The installed row count is the number of rows
// fetched, which may exceed the count refresh decided on when rows arrived in between.
func (m *manager) retrain(ctx context.Context) error {
	rows, err := m.opts.deps.fetchRows(ctx)
	if err != nil {
		return fmt.Errorf("fetch ground truth rows: %w", err)
	}
	model, res, err := m.opts.deps.retrain(ctx, rows)
	if err != nil {
		return fmt.Errorf("retrain: %w", err)
	}
	n, _ := rows.Dims()
	snap, err := snapshot.New(model, res, n, time.Now())
	if err != nil {
		return err
	}
	if err := m.opts.deps.storeSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if !m.install(&installed{model: model, snapshotID: snap.ID, rows: n}) {
		return ErrShutdown
	}
	m.notifier.Notify(alertModel.NewModelEvent(snap.ID, m.schema.Kind.String(), snap.Members, snap.Attempts, n, model.Inactive()))
	return nil
}

func (m *manager) install(in *installed) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		return false
	}
	m.current = in
	return true
}

func (m *manager) scheduler(ctx context.Context) {
	logger := logging.FromContext(ctx)
	defer func() {
		m.mtx.Lock()
		m.closed = true
		m.mtx.Unlock()
		m.cancelNotifier()
		m.shutdownCh <- nil
	}()
	ticker := time.NewTicker(m.opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.refresh(ctx); err != nil && ctx.Err() == nil {
				logger.Errorf("unable to refresh model: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *manager) Acquire() (Querier, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	if m.closed {
		return nil, ErrShutdown
	}
	if m.current == nil {
		return nil, ErrNoModel
	}
	return m.current, nil
}
