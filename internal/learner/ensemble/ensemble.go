// Package ensemble grows a committee of independently trained networks by rejection sampling:
// every attempt trains on a fresh random split and is kept only if it scores well enough on the
// held-out part.
package ensemble

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/go-sod/surrogate/internal/learner/dataset"
	"github.com/go-sod/surrogate/internal/learner/nn"
	"github.com/go-sod/surrogate/internal/learner/score"
	"github.com/go-sod/surrogate/internal/learner/train"
	"github.com/go-sod/surrogate/internal/logging"
	"github.com/go-sod/surrogate/internal/metrics"
)

// TrainFn trains a single candidate network on data.
type TrainFn func(ctx context.Context, rng *rand.Rand, data *dataset.Dataset, netCfg nn.Config, cfg train.Config) (*nn.Network, *train.Report, error)

type Member struct {
	Network *nn.Network
	// per output dimension goodness of fit on the attempt's test split
	Scores []float64
	RMSE   []float64
	// 1-based attempt that produced this member
	Attempt int
	Report  *train.Report
}

type Result struct {
	Members  []Member
	Attempts int
	// false when MaxAttempts ran out before the committee was full
	Complete bool
}

// Networks returns the committee networks in attempt order.
func (r *Result) Networks() []*nn.Network {
	networks := make([]*nn.Network, len(r.Members))
	for i, m := range r.Members {
		networks[i] = m.Network
	}
	return networks
}

// ErrorProfile is the per-dimension mean RMSE of the accepted members, nil without members.
func (r *Result) ErrorProfile() []float64 {
	if len(r.Members) == 0 {
		return nil
	}
	profile := make([]float64, len(r.Members[0].RMSE))
	for _, m := range r.Members {
		for j, v := range m.RMSE {
			profile[j] += v
		}
	}
	for j := range profile {
		profile[j] /= float64(len(r.Members))
	}
	return profile
}

type Option func(*Builder)

// WithTrainFn replaces the network trainer.
func WithTrainFn(fn TrainFn) Option {
	return func(b *Builder) {
		b.train = fn
	}
}

type Builder struct {
	cfg      Config
	netCfg   nn.Config
	trainCfg train.Config
	train    TrainFn
}

func NewBuilder(cfg Config, netCfg nn.Config, trainCfg train.Config, opts ...Option) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := netCfg.Validate(); err != nil {
		return nil, err
	}
	if err := trainCfg.Validate(); err != nil {
		return nil, err
	}
	b := &Builder{
		cfg:      cfg,
		netCfg:   netCfg,
		trainCfg: trainCfg,
		train:    train.Train,
	}
	for _, f := range opts {
		f(b)
	}
	return b, nil
}

// Build trains candidates until the committee is full or the attempt budget is spent. Running out
// of attempts is not an error: the partial result is returned with Complete unset.
func (b *Builder) Build(ctx context.Context, data *dataset.Dataset) (*Result, error) {
	logger := logging.FromContext(ctx)
	nTrain, nTest, err := dataset.SplitSizes(data.Len(), b.cfg.TestFraction)
	if err != nil {
		return nil, fmt.Errorf("test split: %w", err)
	}
	logger.Infof("total / train / test points: %d / %d / %d", data.Len(), nTrain, nTest)

	var (
		mtx      sync.Mutex
		accepted []Member
		launched int
	)
	full := func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return len(accepted) >= b.cfg.Members
	}

	// a slot is taken before the committee is checked, so a single worker never trains past the
	// attempt that filled it
	slots := make(chan struct{}, b.cfg.Workers)
	grp, grpCtx := errgroup.WithContext(ctx)
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		select {
		case slots <- struct{}{}:
		case <-grpCtx.Done():
		}
		if full() || grpCtx.Err() != nil {
			break
		}
		attempt := attempt
		launched = attempt
		grp.Go(func() error {
			defer func() { <-slots }()
			member, ok, err := b.attempt(grpCtx, data, attempt, nTrain, nTest)
			if err != nil {
				return fmt.Errorf("attempt %d: %w", attempt, err)
			}
			if ok {
				mtx.Lock()
				accepted = append(accepted, *member)
				mtx.Unlock()
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].Attempt < accepted[j].Attempt
	})
	res := &Result{Members: accepted, Attempts: launched}
	if len(accepted) >= b.cfg.Members {
		res.Members = accepted[:b.cfg.Members]
		res.Attempts = res.Members[b.cfg.Members-1].Attempt
		res.Complete = true
	} else {
		logger.Warnf("ensemble incomplete: %d of %d members after %d attempts", len(accepted), b.cfg.Members, launched)
	}
	return res, nil
}

func (b *Builder) attempt(ctx context.Context, data *dataset.Dataset, attempt, nTrain, nTest int) (*Member, bool, error) {
	logger := logging.FromContext(ctx)
	rng := rand.New(rand.NewSource(b.cfg.Seed + int64(attempt)))
	trainSet, testSet, err := data.Split(rng, nTrain, nTest)
	if err != nil {
		return nil, false, err
	}
	network, report, err := b.train(ctx, rng, trainSet, b.netCfg, b.trainCfg)
	if err != nil {
		return nil, false, err
	}
	pred, err := network.Predict(testSet.Features())
	if err != nil {
		return nil, false, err
	}
	scores, rmse, err := score.Score(pred, testSet.Targets())
	if err != nil {
		return nil, false, err
	}
	ok := score.Accepted(scores, b.cfg.ScoreThreshold)
	metrics.RecordAttempt(ctx, ok)
	if !ok {
		logger.Debugf("attempt %d rejected, scores %v", attempt, scores)
		return nil, false, nil
	}
	logger.Debugf("attempt %d accepted, scores %v", attempt, scores)
	return &Member{
		Network: network,
		Scores:  scores,
		RMSE:    rmse,
		Attempt: attempt,
		Report:  report,
	}, true, nil
}
