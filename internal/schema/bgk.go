package schema

import (
	"fmt"
)

// Inputs is a solver specific named input record.
type Inputs interface {
	Kind() Kind
}

// Outputs is a solver specific named output record, used for predictions, error bars and
// continuous decision values alike.
type Outputs interface {
	Kind() Kind
}

// Verdict is a solver specific named record of per field acceptance flags.
type Verdict interface {
	Kind() Kind
	// All reports whether every field was accepted
	All() bool
}

// Adapter packs and unpacks the named records of one solver family.
type Adapter interface {
	// NewInputs returns a pointer to a zero input record, ready to be decoded into.
	NewInputs() Inputs
	PackInputs(in Inputs) ([]float64, error)
	PackOutputs(out Outputs) ([]float64, error)
	UnpackOutputs(packed []float64) (Outputs, error)
	UnpackVerdict(packed []bool) (Verdict, error)
}

const (
	species  = 4
	diffuses = species * (species + 1) / 2
)

type BGKInputs struct {
	Temperature float64          `json:"temperature"`
	Density     [species]float64 `json:"density"`
	Charges     [species]float64 `json:"charges"`
}

func (BGKInputs) Kind() Kind { return KindBGK }

type BGKMassesInputs struct {
	Temperature float64          `json:"temperature"`
	Density     [species]float64 `json:"density"`
	Charges     [species]float64 `json:"charges"`
	Masses      [species]float64 `json:"masses"`
}

func (BGKMassesInputs) Kind() Kind { return KindBGKMasses }

// BGKOutputs is shared by the BGK and BGKMASSES families.
type BGKOutputs struct {
	Viscosity           float64           `json:"viscosity"`
	ThermalConductivity float64           `json:"thermalConductivity"`
	DiffCoeff           [diffuses]float64 `json:"diffCoeff"`
}

func (BGKOutputs) Kind() Kind { return KindBGK }

type BGKVerdict struct {
	Viscosity           bool           `json:"viscosity"`
	ThermalConductivity bool           `json:"thermalConductivity"`
	DiffCoeff           [diffuses]bool `json:"diffCoeff"`
}

func (BGKVerdict) Kind() Kind { return KindBGK }

func (v BGKVerdict) All() bool {
	ok := v.Viscosity && v.ThermalConductivity
	for _, d := range v.DiffCoeff {
		ok = ok && d
	}
	return ok
}

const bgkOutputWidth = 2 + diffuses

type bgkAdapter struct {
	masses bool
}

func (a bgkAdapter) NewInputs() Inputs {
	if a.masses {
		return &BGKMassesInputs{}
	}
	return &BGKInputs{}
}

func (a bgkAdapter) PackInputs(in Inputs) ([]float64, error) {
	var packed []float64
	switch v := deref(in).(type) {
	case BGKInputs:
		if a.masses {
			return nil, fmt.Errorf("%w: got BGK inputs for BGKMASSES", ErrUnsupportedSchema)
		}
		packed = append(packed, v.Temperature)
		packed = append(packed, v.Density[:]...)
		packed = append(packed, v.Charges[:]...)
	case BGKMassesInputs:
		if !a.masses {
			return nil, fmt.Errorf("%w: got BGKMASSES inputs for BGK", ErrUnsupportedSchema)
		}
		packed = append(packed, v.Temperature)
		packed = append(packed, v.Density[:]...)
		packed = append(packed, v.Charges[:]...)
		packed = append(packed, v.Masses[:]...)
	default:
		return nil, fmt.Errorf("%w: inputs %T", ErrUnsupportedSchema, in)
	}
	return packed, nil
}

func (a bgkAdapter) PackOutputs(out Outputs) ([]float64, error) {
	var v BGKOutputs
	switch o := out.(type) {
	case BGKOutputs:
		v = o
	case *BGKOutputs:
		v = *o
	default:
		return nil, fmt.Errorf("%w: outputs %T", ErrUnsupportedSchema, out)
	}
	packed := make([]float64, 0, bgkOutputWidth)
	packed = append(packed, v.Viscosity, v.ThermalConductivity)
	packed = append(packed, v.DiffCoeff[:]...)
	return packed, nil
}

func (a bgkAdapter) UnpackOutputs(packed []float64) (Outputs, error) {
	if len(packed) != bgkOutputWidth {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrWidth, len(packed), bgkOutputWidth)
	}
	out := BGKOutputs{Viscosity: packed[0], ThermalConductivity: packed[1]}
	copy(out.DiffCoeff[:], packed[2:])
	return out, nil
}

func (a bgkAdapter) UnpackVerdict(packed []bool) (Verdict, error) {
	if len(packed) != bgkOutputWidth {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrWidth, len(packed), bgkOutputWidth)
	}
	out := BGKVerdict{Viscosity: packed[0], ThermalConductivity: packed[1]}
	copy(out.DiffCoeff[:], packed[2:])
	return out, nil
}

func deref(in Inputs) Inputs {
	switch v := in.(type) {
	case *BGKInputs:
		return *v
	case *BGKMassesInputs:
		return *v
	}
	return in
}

func bgkSchema() Schema {
	columns := []string{"TEMPERATURE"}
	columns = append(columns, indexed("DENSITY", species)...)
	columns = append(columns, indexed("CHARGES", species)...)
	columns = append(columns, "INVERSION", "VISCOSITY", "THERMAL_CONDUCT")
	columns = append(columns, indexed("DIFFCOEFF", diffuses)...)
	columns = append(columns, "OUTVERSION")
	return Schema{
		Kind:    KindBGK,
		Table:   "BGKGND",
		Columns: columns,
		Input:   Slice{Lo: 0, Hi: 9},
		Output:  Slice{Lo: 10, Hi: 22},
		Adapter: bgkAdapter{},
	}
}

func bgkMassesSchema() Schema {
	columns := []string{"TEMPERATURE"}
	columns = append(columns, indexed("DENSITY", species)...)
	columns = append(columns, indexed("CHARGES", species)...)
	columns = append(columns, indexed("MASSES", species)...)
	columns = append(columns, "INVERSION", "VISCOSITY", "THERMAL_CONDUCT")
	columns = append(columns, indexed("DIFFCOEFF", diffuses)...)
	columns = append(columns, "OUTVERSION")
	return Schema{
		Kind:    KindBGKMasses,
		Table:   "BGKMASSESGND",
		Columns: columns,
		Input:   Slice{Lo: 0, Hi: 13},
		Output:  Slice{Lo: 14, Hi: 26},
		Adapter: bgkAdapter{masses: true},
	}
}

func indexed(name string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", name, i)
	}
	return names
}
