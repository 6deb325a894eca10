package surrogate

import (
	"fmt"

	"github.com/go-sod/surrogate/internal/schema"
)

// ProcessIsErrOkFuzzy returns errbars relative to the thresholds. Values of 1 or more mean the
// prediction is too uncertain on that dimension.
func (m *Model) ProcessIsErrOkFuzzy(errbars []float64) ([]float64, error) {
	if err := m.checkWidth(errbars); err != nil {
		return nil, err
	}
	ratio := make([]float64, len(errbars))
	for j, e := range errbars {
		ratio[j] = e / m.thresholds[j]
	}
	return ratio, nil
}

// ProcessIsErrOk reports, per dimension, whether errbars is strictly below the threshold.
func (m *Model) ProcessIsErrOk(errbars []float64) ([]bool, error) {
	if err := m.checkWidth(errbars); err != nil {
		return nil, err
	}
	ok := make([]bool, len(errbars))
	for j, e := range errbars {
		ok[j] = e < m.thresholds[j]
	}
	return ok, nil
}

func (m *Model) checkWidth(errbars []float64) error {
	if len(errbars) != len(m.thresholds) {
		return fmt.Errorf("%w: %d error bars, model has %d outputs", schema.ErrWidth, len(errbars), len(m.thresholds))
	}
	return nil
}

// IsErrOkFuzzy is ProcessIsErrOkFuzzy on named records.
func (m *Model) IsErrOkFuzzy(errbars schema.Outputs) (schema.Outputs, error) {
	adapter := m.schema.Adapter
	if adapter == nil {
		return nil, ErrNoAdapter
	}
	packed, err := adapter.PackOutputs(errbars)
	if err != nil {
		return nil, err
	}
	ratio, err := m.ProcessIsErrOkFuzzy(packed)
	if err != nil {
		return nil, err
	}
	return adapter.UnpackOutputs(ratio)
}

// IsErrOk is ProcessIsErrOk on named records.
func (m *Model) IsErrOk(errbars schema.Outputs) (schema.Verdict, error) {
	adapter := m.schema.Adapter
	if adapter == nil {
		return nil, ErrNoAdapter
	}
	packed, err := adapter.PackOutputs(errbars)
	if err != nil {
		return nil, err
	}
	ok, err := m.ProcessIsErrOk(packed)
	if err != nil {
		return nil, err
	}
	return adapter.UnpackVerdict(ok)
}
