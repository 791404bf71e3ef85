package engine

import (
	"encoding/json"
	"fmt"
)

// ValueKind discriminates the shapes a parameter value can take.
type ValueKind string

const (
	ValueScalar     ValueKind = "scalar"
	ValueSeries     ValueKind = "series"
	ValueVariations ValueKind = "variations"
)

// Variation is one named alternative of a varied parameter.
type Variation struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Value is a component parameter: a static scalar, a timeseries covering
// the whole horizon, or an ordered set of named variations.
type Value struct {
	Kind       ValueKind
	Scalar     float64
	Series     []float64
	Variations []Variation
}

// Scalar returns a scalar Value.
func Scalar(v float64) Value {
	return Value{Kind: ValueScalar, Scalar: v}
}

// Flag returns a scalar Value of 1 or 0.
func Flag(b bool) Value {
	if b {
		return Scalar(1)
	}
	return Scalar(0)
}

// Series returns a timeseries Value. The slice is copied.
func Series(values ...float64) Value {
	return Value{Kind: ValueSeries, Series: append([]float64(nil), values...)}
}

// Variations returns a varied Value. Variation order is preserved.
func Variations(vars ...Variation) Value {
	return Value{Kind: ValueVariations, Variations: vars}
}

// IsVaried reports whether the value carries named variations.
func (v Value) IsVaried() bool {
	return v.Kind == ValueVariations
}

// Bool interprets a scalar as a flag.
func (v Value) Bool() bool {
	return v.Kind == ValueScalar && v.Scalar != 0
}

// Resolve selects a variation by name. An empty name selects the first
// variation. Non-varied values resolve to themselves.
func (v Value) Resolve(variation string) (Value, error) {
	if !v.IsVaried() {
		return v, nil
	}
	if len(v.Variations) == 0 {
		return Value{}, fmt.Errorf("no variations declared")
	}
	if variation == "" {
		return v.Variations[0].Value, nil
	}
	for _, vr := range v.Variations {
		if vr.Name == variation {
			return vr.Value, nil
		}
	}
	return Value{}, fmt.Errorf("unknown variation %q", variation)
}

// At returns the value at horizon timestep t.
func (v Value) At(t int) float64 {
	switch v.Kind {
	case ValueSeries:
		return v.Series[t]
	case ValueScalar:
		return v.Scalar
	}
	return 0
}

// Slice returns the values for horizon timesteps [start, end], broadcasting
// scalars. The value must already be resolved.
func (v Value) Slice(start, end int) []float64 {
	out := make([]float64, end-start+1)
	for i := range out {
		out[i] = v.At(start + i)
	}
	return out
}

// Validate checks a value against the factory horizon.
func (v Value) Validate(horizon int) error {
	switch v.Kind {
	case ValueScalar:
		return nil
	case ValueSeries:
		if len(v.Series) != horizon {
			return fmt.Errorf("timeseries has %d values, horizon is %d", len(v.Series), horizon)
		}
		return nil
	case ValueVariations:
		if len(v.Variations) == 0 {
			return fmt.Errorf("no variations declared")
		}
		seen := make(map[string]bool, len(v.Variations))
		for _, vr := range v.Variations {
			if vr.Name == "" {
				return fmt.Errorf("variation without a name")
			}
			if seen[vr.Name] {
				return fmt.Errorf("duplicate variation %q", vr.Name)
			}
			seen[vr.Name] = true
			if vr.Value.IsVaried() {
				return fmt.Errorf("variation %q: variations cannot nest", vr.Name)
			}
			if err := vr.Value.Validate(horizon); err != nil {
				return fmt.Errorf("variation %q: %w", vr.Name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("invalid value kind: %q", v.Kind)
	}
}

// MarshalJSON renders scalars as numbers, series as arrays and variations
// as an object keyed by variation name.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueScalar:
		return json.Marshal(v.Scalar)
	case ValueSeries:
		return json.Marshal(v.Series)
	case ValueVariations:
		m := make(map[string]Value, len(v.Variations))
		for _, vr := range v.Variations {
			m[vr.Name] = vr.Value
		}
		return json.Marshal(map[string]interface{}{"variations": m})
	}
	return []byte("null"), nil
}

// ParamSpec describes the closed parameter set of a component variant.
type ParamSpec struct {
	Required []string
	Optional []string

	// Flags are optional boolean parameters.
	Flags []string
}

// Allows reports whether name is a parameter of the variant.
func (s ParamSpec) Allows(name string) bool {
	for _, group := range [][]string{s.Required, s.Optional, s.Flags} {
		for _, n := range group {
			if n == name {
				return true
			}
		}
	}
	return false
}

// ParamSpecs holds the parameter schema for every component variant.
var ParamSpecs = map[ComponentType]ParamSpec{
	ComponentSource: {
		Required: []string{"power_max"},
		Optional: []string{"power_min", "availability", "cost"},
		Flags:    []string{"determined"},
	},
	ComponentSink: {
		Optional: []string{"demand", "power_max", "cost", "revenue"},
	},
	ComponentPool: {},
	ComponentConverter: {
		Optional: []string{"power_min", "power_max", "availability", "ramp_limit", "cost"},
	},
	ComponentStorage: {
		Required: []string{"capacity"},
		Optional: []string{"soc_start", "leakage", "efficiency", "power_max_charge", "power_max_discharge"},
		Flags:    []string{"cyclic"},
	},
	ComponentHeatpump: {
		Required: []string{"cop"},
		Optional: []string{"power_max", "cost"},
	},
	ComponentDeadtime: {
		Required: []string{"delay"},
	},
	ComponentSlack: {
		Required: []string{"cost"},
	},
	ComponentSchedule: {
		Optional: []string{"power_max"},
	},
	ComponentThermalSystem: {
		Required: []string{"capacity", "temperature_start"},
		Optional: []string{"loss_coefficient", "ambient", "temperature_min", "temperature_max"},
		Flags:    []string{"sustain"},
	},
}

// arity bounds the number of inputs and outputs of a variant. A max of -1
// means unbounded.
type arity struct {
	minIn, maxIn, minOut, maxOut int
}

var arities = map[ComponentType]arity{
	ComponentSource:        {0, 0, 1, -1},
	ComponentSink:          {1, -1, 0, 0},
	ComponentPool:          {0, -1, 0, -1},
	ComponentConverter:     {1, -1, 1, -1},
	ComponentStorage:       {1, -1, 1, -1},
	ComponentHeatpump:      {2, 2, 1, 1},
	ComponentDeadtime:      {1, 2, 1, 2},
	ComponentSlack:         {0, -1, 0, -1},
	ComponentSchedule:      {1, -1, 0, 0},
	ComponentThermalSystem: {1, -1, 0, -1},
}
