// Package train fits a single committee network with mini-batch gradient descent, a plateau
// learning rate schedule and early stopping on a validation carve-out.
package train

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/go-sod/surrogate/internal/learner/dataset"
	"github.com/go-sod/surrogate/internal/learner/nn"
	"github.com/go-sod/surrogate/internal/learner/scaler"
	"github.com/go-sod/surrogate/internal/logging"
	"github.com/go-sod/surrogate/internal/metrics"
)

// Report describes how a training run ended.
type Report struct {
	// epochs actually run
	Epochs              int
	BestEpoch           int
	BestValidationError float64
	// true when the boredom counter ended training before the epoch budget
	StoppedEarly bool
	LearningRate float64
}

// boredomLimit is the number of non improving epochs tolerated before training stops.
func (c Config) boredomLimit() int {
	return 2*c.Patience + 1
}

// Train builds a network for data and optimizes it. The returned network is frozen, carries the
// parameters of its best validation epoch and maps raw features to raw targets.
func Train(ctx context.Context, rng *rand.Rand, data *dataset.Dataset, netCfg nn.Config, cfg Config) (*nn.Network, *Report, error) {
	logger := logging.FromContext(ctx)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	nTrain, nValid, err := dataset.SplitSizes(data.Len(), cfg.ValidationFraction)
	if err != nil {
		return nil, nil, fmt.Errorf("validation split: %w", err)
	}
	trainSet, validSet, err := data.Split(rng, nTrain, nValid)
	if err != nil {
		return nil, nil, fmt.Errorf("validation split: %w", err)
	}

	trainX, trainTargets := trainSet.Features(), trainSet.Targets()
	inScaler, err := scaler.FromData(trainX)
	if err != nil {
		return nil, nil, fmt.Errorf("input scaler: %w", err)
	}
	costScaler, err := scaler.FromData(trainTargets)
	if err != nil {
		return nil, nil, fmt.Errorf("target scaler: %w", err)
	}
	outScaler := scaler.Invert(costScaler)

	_, nOut := data.Widths()
	network, err := nn.New(rng, netCfg, inScaler, nOut)
	if err != nil {
		return nil, nil, err
	}
	opt, err := nn.NewOptimizer(cfg.Optimizer, cfg.LearningRate)
	if err != nil {
		return nil, nil, err
	}
	schedule := newPlateau(opt, cfg.Patience)

	trainY := costScaler.Apply(trainTargets)
	validX, validY := validSet.Features(), costScaler.Apply(validSet.Targets())

	report := &Report{BestValidationError: math.Inf(1)}
	best := network.Snapshot()
	boredom := 0
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		report.Epochs = epoch + 1
		if err := runEpoch(rng, network, opt, cfg, trainX, trainY); err != nil {
			return nil, nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		evalCost, err := meanAbsError(network, validX, validY)
		if err != nil {
			return nil, nil, fmt.Errorf("epoch %d validation: %w", epoch, err)
		}
		if schedule.step(evalCost) {
			logger.Debugf("epoch %d: learning rate reduced to %g", epoch, opt.LearningRate())
		}
		if evalCost < report.BestValidationError {
			report.BestValidationError = evalCost
			report.BestEpoch = epoch
			best = network.Snapshot()
			boredom = 0
		} else {
			boredom++
		}
		if boredom > cfg.boredomLimit() {
			report.StoppedEarly = true
			break
		}
	}
	report.LearningRate = opt.LearningRate()
	if report.StoppedEarly {
		logger.Debugf("training finalized at epoch %d, best epoch %d", report.Epochs-1, report.BestEpoch)
	} else {
		logger.Debugf("training finished due to max epoch %d", report.Epochs-1)
	}
	metrics.RecordTrainingEpochs(ctx, report.Epochs)

	if err := network.Restore(best); err != nil {
		return nil, nil, err
	}
	if err := network.Freeze(outScaler); err != nil {
		return nil, nil, err
	}
	return network, report, nil
}

// runEpoch performs one shuffled pass of mini-batch updates in normalized target space.
func runEpoch(rng *rand.Rand, network *nn.Network, opt nn.Optimizer, cfg Config, x, y *mat.Dense) error {
	n, inW := x.Dims()
	_, outW := y.Dims()
	perm := rng.Perm(n)
	for lo := 0; lo < n; lo += cfg.BatchSize {
		hi := lo + cfg.BatchSize
		if hi > n {
			hi = n
		}
		bx := mat.NewDense(hi-lo, inW, nil)
		by := mat.NewDense(hi-lo, outW, nil)
		for i, k := range perm[lo:hi] {
			bx.SetRow(i, x.RawRowView(k))
			by.SetRow(i, y.RawRowView(k))
		}
		_, grads, err := network.Backprop(bx, by, cfg.Loss)
		if err != nil {
			return err
		}
		if err := network.Update(opt, grads); err != nil {
			return err
		}
	}
	return nil
}

func meanAbsError(network *nn.Network, x, y *mat.Dense) (float64, error) {
	pred, err := network.Forward(x)
	if err != nil {
		return 0, err
	}
	r, c := pred.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum += math.Abs(pred.At(i, j) - y.At(i, j))
		}
	}
	return sum / float64(r*c), nil
}
