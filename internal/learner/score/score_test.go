package score

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name           string
		pred           *mat.Dense
		truth          *mat.Dense
		expectedScores []float64
		expectedRMSE   []float64
	}{
		{
			name:           "perfect",
			pred:           mat.NewDense(3, 1, []float64{1, 2, 3}),
			truth:          mat.NewDense(3, 1, []float64{1, 2, 3}),
			expectedScores: []float64{1},
			expectedRMSE:   []float64{0},
		},
		{
			name:           "mean_predictor",
			pred:           mat.NewDense(3, 1, []float64{2, 2, 2}),
			truth:          mat.NewDense(3, 1, []float64{1, 2, 3}),
			expectedScores: []float64{0},
			expectedRMSE:   []float64{math.Sqrt(2.0 / 3)},
		},
		{
			name:           "degenerate_constant",
			pred:           mat.NewDense(3, 1, []float64{7, 7, 7}),
			truth:          mat.NewDense(3, 1, []float64{4, 4, 4}),
			expectedScores: []float64{1},
			expectedRMSE:   []float64{3},
		},
		{
			name:           "constant_truth",
			pred:           mat.NewDense(2, 1, []float64{1, 3}),
			truth:          mat.NewDense(2, 1, []float64{2, 2}),
			expectedScores: []float64{0},
			expectedRMSE:   []float64{1},
		},
		{
			name:           "per_column",
			pred:           mat.NewDense(2, 2, []float64{0, 5, 2, 5}),
			truth:          mat.NewDense(2, 2, []float64{0, 5, 2, 5}),
			expectedScores: []float64{1, 1},
			expectedRMSE:   []float64{0, 0},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			scores, rmse, err := Score(test.pred, test.truth)
			assert.NilError(t, err)
			for j := range scores {
				if math.IsNaN(scores[j]) || math.Abs(scores[j]-test.expectedScores[j]) > 1e-12 {
					t.Errorf("score of column %d, got: %v, expected: %v", j, scores[j], test.expectedScores[j])
				}
				if math.Abs(rmse[j]-test.expectedRMSE[j]) > 1e-12 {
					t.Errorf("rmse of column %d, got: %v, expected: %v", j, rmse[j], test.expectedRMSE[j])
				}
			}
		})
	}
}

func TestScoreDegenerateIsExactlyOne(t *testing.T) {
	pred := mat.NewDense(4, 1, []float64{1e-310, 1e-310, 1e-310, 1e-310})
	truth := mat.NewDense(4, 1, []float64{0, 0, 0, 0})
	scores, _, err := Score(pred, truth)
	assert.NilError(t, err)
	assert.Equal(t, scores[0], 1.0)
}

func TestScoreShapeMismatch(t *testing.T) {
	if _, _, err := Score(mat.NewDense(2, 1, nil), mat.NewDense(3, 1, nil)); err == nil {
		t.Errorf("mismatched shapes must be rejected")
	}
}

func TestAccepted(t *testing.T) {
	tests := []struct {
		name     string
		scores   []float64
		expected bool
	}{
		{name: "all_above", scores: []float64{0.9, 0.71}, expected: true},
		{name: "equal", scores: []float64{0.7}, expected: true},
		{name: "one_below", scores: []float64{0.9, 0.2}, expected: false},
		{name: "nan", scores: []float64{math.NaN()}, expected: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Accepted(test.scores, 0.7); got != test.expected {
				t.Errorf("accepted %v, got: %v, expected: %v", test.scores, got, test.expected)
			}
		})
	}
}
