// Package learner retrains a surrogate model from ground truth rows: it builds the committee,
// derives the error profile and calibrates the result on the whole dataset.
package learner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/go-sod/surrogate/internal/learner/dataset"
	"github.com/go-sod/surrogate/internal/learner/ensemble"
	"github.com/go-sod/surrogate/internal/logging"
	"github.com/go-sod/surrogate/internal/metrics"
	"github.com/go-sod/surrogate/internal/schema"
	"github.com/go-sod/surrogate/internal/surrogate"
)

var ErrNoMembers = errors.New("learner: no committee member was accepted")

type Option func(*options)

type options struct {
	ensemble []ensemble.Option
}

// WithEnsembleOptions forwards options to the committee builder.
func WithEnsembleOptions(opts ...ensemble.Option) Option {
	return func(o *options) {
		o.ensemble = append(o.ensemble, opts...)
	}
}

// Retrain builds a calibrated model from raw ground truth rows laid out as cfg.Schema.
func Retrain(ctx context.Context, rows mat.Matrix, cfg Config, opts ...Option) (*surrogate.Model, *ensemble.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	s, err := schema.Lookup(cfg.Schema)
	if err != nil {
		return nil, nil, err
	}
	data, err := dataset.FromRows(rows, s)
	if err != nil {
		return nil, nil, err
	}
	return RetrainDataset(ctx, data, s, cfg, opts...)
}

// RetrainDataset is Retrain on an assembled dataset whose widths match s. The schema of cfg is
// not consulted.
func RetrainDataset(ctx context.Context, data *dataset.Dataset, s schema.Schema, cfg Config, opts ...Option) (*surrogate.Model, *ensemble.Result, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()
	o := &options{}
	for _, f := range opts {
		f(o)
	}

	builder, err := ensemble.NewBuilder(cfg.Ensemble, cfg.Net, cfg.Training, o.ensemble...)
	if err != nil {
		return nil, nil, err
	}
	res, err := builder.Build(ctx, data)
	if err != nil {
		return nil, nil, fmt.Errorf("build ensemble: %w", err)
	}
	if len(res.Members) == 0 {
		return nil, res, fmt.Errorf("%w after %d attempts", ErrNoMembers, res.Attempts)
	}

	model, err := surrogate.New(s, res.Networks(), res.ErrorProfile(), cfg.Fussiness)
	if err != nil {
		return nil, res, err
	}
	if err := model.Calibrate(ctx, data); err != nil {
		return nil, res, err
	}
	elapsed := time.Since(start)
	metrics.RecordRetrain(ctx, elapsed)
	logger.Infof("retrained %s model: %d members in %d attempts, %v", s.Kind, len(res.Members), res.Attempts, elapsed)
	return model, res, nil
}
