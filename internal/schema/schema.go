// Package schema describes the packed row layout of each solver family and converts between
// solver specific named records and packed arrays.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedSchema = errors.New("unsupported schema")
	ErrWidth             = errors.New("packed width does not match schema")
)

// Kind identifies a solver family.
type Kind uint8

const (
	KindBGK Kind = iota
	KindBGKMasses
)

var kindNames = map[Kind]string{
	KindBGK:       "BGK",
	KindBGKMasses: "BGKMASSES",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind resolves a solver family by name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	known := make([]string, 0, len(kindNames))
	for _, k := range Kinds() {
		known = append(known, k.String())
	}
	return 0, fmt.Errorf("%w: %q, expected one of %s", ErrUnsupportedSchema, s, strings.Join(known, ", "))
}

// Decode implements envconfig.Decoder.
func (k *Kind) Decode(value string) error {
	parsed, err := ParseKind(value)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML and JSON decoders.
func (k *Kind) UnmarshalText(text []byte) error {
	return k.Decode(string(text))
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, uint8(k))
	}
	return []byte(k.String()), nil
}

// Slice is a half-open column range [Lo, Hi) of a raw row.
type Slice struct {
	Lo, Hi int
}

func (s Slice) Width() int {
	return s.Hi - s.Lo
}

func (s Slice) overlaps(o Slice) bool {
	return s.Lo < o.Hi && o.Lo < s.Hi
}

// Schema is the registry entry of one solver family.
type Schema struct {
	Kind Kind
	// ground truth table holding raw rows
	Table string
	// raw row columns in table order
	Columns []string
	Input   Slice
	Output  Slice
	Adapter Adapter
}

func (s Schema) RowWidth() int {
	return len(s.Columns)
}

func (s Schema) InputWidth() int {
	return s.Input.Width()
}

func (s Schema) OutputWidth() int {
	return s.Output.Width()
}

// Validate checks that the input and output slices fit the raw row and do not overlap.
func (s Schema) Validate() error {
	width := s.RowWidth()
	for _, sl := range []Slice{s.Input, s.Output} {
		if sl.Lo < 0 || sl.Hi > width || sl.Width() <= 0 {
			return fmt.Errorf("schema %s: slice [%d,%d) out of row width %d", s.Kind, sl.Lo, sl.Hi, width)
		}
	}
	if s.Input.Width()+s.Output.Width() > width {
		return fmt.Errorf("schema %s: input and output wider than row", s.Kind)
	}
	if s.Input.overlaps(s.Output) {
		return fmt.Errorf("schema %s: input and output slices overlap", s.Kind)
	}
	if s.Adapter == nil {
		return fmt.Errorf("schema %s: adapter is not defined", s.Kind)
	}
	return nil
}

var registry = map[Kind]Schema{
	KindBGK:       bgkSchema(),
	KindBGKMasses: bgkMassesSchema(),
}

// Lookup returns the registered schema of a solver family.
func Lookup(k Kind) (Schema, error) {
	s, ok := registry[k]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnsupportedSchema, k)
	}
	return s, nil
}

// Kinds lists every registered solver family.
func Kinds() []Kind {
	return []Kind{KindBGK, KindBGKMasses}
}
