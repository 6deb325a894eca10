// Package score computes per output dimension goodness of fit on a held-out split.
package score

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Degenerate is the standard deviation below which a column is treated as constant.
const Degenerate = 1e-300

// Score returns, for every output column, the coefficient of determination of pred against truth
// and the root mean squared error. Columns where both pred and truth are constant score exactly 1.
func Score(pred, truth mat.Matrix) (scores, rmse []float64, err error) {
	pr, pc := pred.Dims()
	tr, tc := truth.Dims()
	if pr != tr || pc != tc {
		return nil, nil, fmt.Errorf("score: prediction %dx%d, truth %dx%d", pr, pc, tr, tc)
	}
	if pr == 0 {
		return nil, nil, fmt.Errorf("score: no rows")
	}
	scores = make([]float64, pc)
	rmse = make([]float64, pc)
	p := make([]float64, pr)
	t := make([]float64, pr)
	for j := 0; j < pc; j++ {
		mat.Col(p, j, pred)
		mat.Col(t, j, truth)
		rmse[j] = RMSE(p, t)
		if PopStdDev(p) < Degenerate && PopStdDev(t) < Degenerate {
			scores[j] = 1
			continue
		}
		scores[j] = RSquared(p, t)
	}
	return scores, rmse, nil
}

func RMSE(pred, truth []float64) float64 {
	var sum float64
	for i := range pred {
		d := pred[i] - truth[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pred)))
}

// RSquared is 1 - SSres/SStot. A constant truth gives 1 for an exact fit and 0 otherwise.
func RSquared(pred, truth []float64) float64 {
	mean := stat.Mean(truth, nil)
	var ssTot, ssRes float64
	for i := range truth {
		d := truth[i] - mean
		ssTot += d * d
		r := truth[i] - pred[i]
		ssRes += r * r
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(pred, truth, nil)
}

// PopStdDev is the population (ddof 0) standard deviation.
func PopStdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	mean := stat.Mean(x, nil)
	var sum float64
	for _, v := range x {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(x)))
}

// Accepted reports whether every score meets the threshold. NaN scores never do.
func Accepted(scores []float64, threshold float64) bool {
	for _, s := range scores {
		if !(s >= threshold) {
			return false
		}
	}
	return true
}
