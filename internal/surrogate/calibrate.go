package surrogate

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/go-sod/surrogate/internal/learner/dataset"
	"github.com/go-sod/surrogate/internal/learner/score"
	"github.com/go-sod/surrogate/internal/logging"
)

// Calibrate rescales the error profile so that thresholds are expressed against the committee
// spread observed on data. Dimensions where neither the absolute error nor the spread varies
// over data are marked inactive and get an infinite threshold.
func (m *Model) Calibrate(ctx context.Context, data *dataset.Dataset) error {
	logger := logging.FromContext(ctx)
	if m.calibrated {
		return ErrCalibrated
	}
	pred, unc, err := m.Process(data.Features(), false)
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	truth := data.Targets()
	rows, cols := pred.Dims()
	if tr, tc := truth.Dims(); tr != rows || tc != cols {
		return fmt.Errorf("calibrate: targets %dx%d, predictions %dx%d", tr, tc, rows, cols)
	}

	thresholds := append([]float64(nil), m.thresholds...)
	calibration := make([]float64, cols)
	inactive := make([]bool, cols)
	absErr := make([]float64, rows)
	spread := make([]float64, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			absErr[i] = math.Abs(pred.At(i, j) - truth.At(i, j))
			spread[i] = unc.At(i, j)
		}
		calibration[j] = stat.Mean(absErr, nil) / stat.Mean(spread, nil) * m.fussiness
		thresholds[j] /= calibration[j]
		inactive[j] = score.PopStdDev(absErr) == 0 && score.PopStdDev(spread) == 0
		if inactive[j] {
			thresholds[j] = math.Inf(1)
			continue
		}
		if math.IsNaN(calibration[j]) || math.IsInf(calibration[j], 0) || calibration[j] == 0 {
			logger.Warnf("calibration of dimension %d is %v, threshold becomes %v", j, calibration[j], thresholds[j])
		}
	}

	m.thresholds = thresholds
	m.calibration = calibration
	m.inactive = inactive
	m.calibrated = true
	if dims := m.Inactive(); len(dims) > 0 {
		logger.Warnf("inactive dimensions detected: %v, they will not be included in acceptance", dims)
	}
	return nil
}
