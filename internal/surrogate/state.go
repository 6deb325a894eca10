package surrogate

import (
	"fmt"

	"github.com/go-sod/surrogate/internal/learner/nn"
	"github.com/go-sod/surrogate/internal/schema"
)

// State is the exported form of a model of a registered schema.
type State struct {
	Kind        schema.Kind
	Fussiness   float64
	Calibrated  bool
	Thresholds  []float64
	Calibration []float64
	Inactive    []bool
	Networks    []nn.State
}

func (m *Model) State() (State, error) {
	st := State{
		Kind:        m.schema.Kind,
		Fussiness:   m.fussiness,
		Calibrated:  m.calibrated,
		Thresholds:  m.Thresholds(),
		Calibration: m.Calibration(),
		Inactive:    append([]bool(nil), m.inactive...),
	}
	for i, n := range m.networks {
		ns, err := n.State()
		if err != nil {
			return State{}, fmt.Errorf("member %d: %w", i, err)
		}
		st.Networks = append(st.Networks, ns)
	}
	return st, nil
}

// FromState rebuilds a model, looking its schema up in the registry.
func FromState(st State) (*Model, error) {
	s, err := schema.Lookup(st.Kind)
	if err != nil {
		return nil, err
	}
	networks := make([]*nn.Network, len(st.Networks))
	for i, ns := range st.Networks {
		if networks[i], err = nn.FromState(ns); err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
	}
	m, err := New(s, networks, st.Thresholds, st.Fussiness)
	if err != nil {
		return nil, err
	}
	if !st.Calibrated {
		return m, nil
	}
	if len(st.Calibration) != len(st.Thresholds) || len(st.Inactive) != len(st.Thresholds) {
		return nil, fmt.Errorf("%w: calibration of %d and %d dimensions for %d thresholds",
			schema.ErrWidth, len(st.Calibration), len(st.Inactive), len(st.Thresholds))
	}
	m.calibration = append([]float64(nil), st.Calibration...)
	m.inactive = append([]bool(nil), st.Inactive...)
	m.calibrated = true
	return m, nil
}
