package ensemble

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"

	"github.com/go-sod/surrogate/internal/learner/dataset"
	"github.com/go-sod/surrogate/internal/learner/nn"
	"github.com/go-sod/surrogate/internal/learner/scaler"
	"github.com/go-sod/surrogate/internal/learner/train"
)

// affine returns a frozen 1-in/1-out network computing slope*x + intercept for positive x.
func affine(t *testing.T, slope, intercept float64) *nn.Network {
	t.Helper()
	unit := scaler.State{Mean: []float64{0}, Scale: []float64{1}, Eps: scaler.Epsilon}
	n, err := nn.FromState(nn.State{
		Activation: string(nn.ActivationReLU),
		Input:      unit,
		Output:     unit,
		Layers: []nn.LayerState{
			{In: 1, Out: 1, Weights: []float64{1}, Biases: []float64{0}},
			{In: 1, Out: 1, Weights: []float64{slope}, Biases: []float64{intercept}},
		},
	})
	assert.NilError(t, err)
	return n
}

func identityData(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	x := mat.NewDense(n, 1, nil)
	x.Apply(func(i, _ int, _ float64) float64 { return 1 + float64(i)/float64(n) }, x)
	d, err := dataset.New(x, x)
	assert.NilError(t, err)
	return d
}

// coinTrainer accepts roughly half of the attempts, driven by the attempt's generator.
func coinTrainer(t *testing.T, calls *int64) TrainFn {
	return func(_ context.Context, rng *rand.Rand, _ *dataset.Dataset, _ nn.Config, _ train.Config) (*nn.Network, *train.Report, error) {
		atomic.AddInt64(calls, 1)
		if rng.Float64() < 0.5 {
			return affine(t, 1, 0.01), &train.Report{}, nil
		}
		return affine(t, 0, 5), &train.Report{}, nil
	}
}

func testBuilder(t *testing.T, cfg Config, fn TrainFn) *Builder {
	t.Helper()
	b, err := NewBuilder(cfg, nn.DefaultConfig(), train.DefaultConfig(), WithTrainFn(fn))
	assert.NilError(t, err)
	return b
}

func TestBuildAcceptsOnlyAboveThreshold(t *testing.T) {
	var calls int64
	cfg := DefaultConfig()
	cfg.Seed = 42
	res, err := testBuilder(t, cfg, coinTrainer(t, &calls)).Build(context.Background(), identityData(t, 40))
	assert.NilError(t, err)

	assert.Assert(t, res.Complete)
	assert.Equal(t, len(res.Members), cfg.Members)
	assert.Equal(t, int64(res.Attempts), calls)
	for _, m := range res.Members {
		for j, s := range m.Scores {
			if s < cfg.ScoreThreshold {
				t.Errorf("member of attempt %d has score %v on dimension %d", m.Attempt, s, j)
			}
		}
	}
	assert.Equal(t, res.Members[len(res.Members)-1].Attempt, res.Attempts)

	profile := res.ErrorProfile()
	assert.Equal(t, len(profile), 1)
	if math.Abs(profile[0]-0.01) > 1e-9 {
		t.Errorf("error profile, got: %v, expected: %v", profile[0], 0.01)
	}
}

func TestBuildStopsAtMaxAttempts(t *testing.T) {
	var calls int64
	reject := func(_ context.Context, _ *rand.Rand, _ *dataset.Dataset, _ nn.Config, _ train.Config) (*nn.Network, *train.Report, error) {
		atomic.AddInt64(&calls, 1)
		return affine(t, 0, 5), &train.Report{}, nil
	}
	for _, workers := range []int{1, 3} {
		calls = 0
		cfg := DefaultConfig()
		cfg.MaxAttempts = 7
		cfg.Workers = workers
		res, err := testBuilder(t, cfg, reject).Build(context.Background(), identityData(t, 20))
		assert.NilError(t, err)
		assert.Assert(t, !res.Complete)
		assert.Equal(t, len(res.Members), 0)
		assert.Equal(t, res.Attempts, 7)
		assert.Equal(t, calls, int64(7))
		assert.Assert(t, res.ErrorProfile() == nil)
	}
}

func TestBuildParallelMatchesSequential(t *testing.T) {
	data := identityData(t, 40)
	attemptsOf := func(workers int) ([]int, int) {
		var calls int64
		cfg := DefaultConfig()
		cfg.Seed = 9
		cfg.Workers = workers
		res, err := testBuilder(t, cfg, coinTrainer(t, &calls)).Build(context.Background(), data)
		assert.NilError(t, err)
		var attempts []int
		for _, m := range res.Members {
			attempts = append(attempts, m.Attempt)
		}
		return attempts, res.Attempts
	}
	seq, seqAttempts := attemptsOf(1)
	par, parAttempts := attemptsOf(4)
	assert.DeepEqual(t, seq, par)
	assert.Equal(t, seqAttempts, parAttempts)
}

func TestBuildPropagatesTrainErrors(t *testing.T) {
	boom := errors.New("boom")
	fail := func(context.Context, *rand.Rand, *dataset.Dataset, nn.Config, train.Config) (*nn.Network, *train.Report, error) {
		return nil, nil, boom
	}
	_, err := testBuilder(t, DefaultConfig(), fail).Build(context.Background(), identityData(t, 20))
	if !errors.Is(err, boom) {
		t.Errorf("got: %v, expected: %v", err, boom)
	}
}

func TestBuildTooFewRows(t *testing.T) {
	var calls int64
	_, err := testBuilder(t, DefaultConfig(), coinTrainer(t, &calls)).Build(context.Background(), identityData(t, 2))
	if !errors.Is(err, dataset.ErrSplitSize) {
		t.Errorf("got: %v, expected: %v", err, dataset.ErrSplitSize)
	}
	assert.Equal(t, calls, int64(0))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "members", mutate: func(c *Config) { c.Members = 0 }},
		{name: "fraction", mutate: func(c *Config) { c.TestFraction = 1 }},
		{name: "attempts", mutate: func(c *Config) { c.MaxAttempts = 0 }},
		{name: "workers", mutate: func(c *Config) { c.Workers = 0 }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("config %+v must be rejected", cfg)
			}
		})
	}
}
