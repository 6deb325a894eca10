package train

import (
	"math"

	"github.com/go-sod/surrogate/internal/learner/nn"
)

const (
	plateauFactor    = 0.5
	plateauThreshold = 1e-4
	plateauMinDelta  = 1e-8
)

// plateau halves the learning rate once the monitored error has not improved, relative to
// its best value, for more than patience consecutive steps.
type plateau struct {
	opt      nn.Optimizer
	patience int
	best     float64
	bad      int
}

func newPlateau(opt nn.Optimizer, patience int) *plateau {
	return &plateau{opt: opt, patience: patience, best: math.Inf(1)}
}

// step returns true when the learning rate was reduced.
func (p *plateau) step(value float64) bool {
	if value < p.best*(1-plateauThreshold) {
		p.best = value
		p.bad = 0
	} else {
		p.bad++
	}
	if p.bad <= p.patience {
		return false
	}
	p.bad = 0
	lr := p.opt.LearningRate()
	next := lr * plateauFactor
	if lr-next <= plateauMinDelta {
		return false
	}
	p.opt.SetLearningRate(next)
	return true
}
