package engine

import (
	"fmt"
	"math"
)

// Magnitude is one display scaling step of a Unit, e.g. 1000 -> "MWh"/"MW".
type Magnitude struct {
	Factor        float64 `json:"factor" yaml:"factor"`
	FlowLabel     string  `json:"flow" yaml:"flow"`
	FlowrateLabel string  `json:"flowrate" yaml:"flowrate"`
}

// Unit describes the physical quantity carried by a Flowtype.
type Unit struct {
	QuantityType QuantityType `json:"quantity_type" yaml:"quantity_type"`

	// ConversionFactor converts one unit of this flow into the canonical base unit.
	ConversionFactor float64 `json:"conversion_factor" yaml:"conversion_factor"`

	// Magnitudes are ordered by ascending factor.
	Magnitudes []Magnitude `json:"magnitudes,omitempty" yaml:"magnitudes,omitempty"`
}

// ToBase converts v into the canonical base unit.
func (u Unit) ToBase(v float64) float64 {
	return v * u.ConversionFactor
}

// FromBase converts v from the canonical base unit.
func (u Unit) FromBase(v float64) float64 {
	return v / u.ConversionFactor
}

// Format renders v with the largest magnitude whose factor does not exceed |v|.
// rate selects the flowrate label instead of the flow label.
func (u Unit) Format(v float64, rate bool) string {
	if len(u.Magnitudes) == 0 {
		return fmt.Sprintf("%g", v)
	}
	m := u.Magnitudes[0]
	for _, candidate := range u.Magnitudes[1:] {
		if math.Abs(v) >= candidate.Factor {
			m = candidate
		}
	}
	label := m.FlowLabel
	if rate {
		label = m.FlowrateLabel
	}
	return fmt.Sprintf("%.4g %s", v/m.Factor, label)
}

// Validate checks the unit invariants.
func (u Unit) Validate() error {
	if err := u.QuantityType.Validate(); err != nil {
		return err
	}
	if !(u.ConversionFactor > 0) {
		return fmt.Errorf("conversion factor must be positive, got %g", u.ConversionFactor)
	}
	for i, m := range u.Magnitudes {
		if !(m.Factor > 0) {
			return fmt.Errorf("magnitude %d: factor must be positive", i)
		}
		if i > 0 && m.Factor <= u.Magnitudes[i-1].Factor {
			return fmt.Errorf("magnitude %d: factors must be strictly ascending", i)
		}
	}
	return nil
}

// Flowtype is a typed physical quantity with its Unit.
type Flowtype struct {
	Key   string `json:"key" yaml:"key"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
	Unit  Unit   `json:"unit" yaml:"unit"`
}

// Connection is a directed, typed edge carrying one flow trajectory.
type Connection struct {
	Key      string `json:"key" yaml:"key"`
	From     string `json:"from" yaml:"from"`
	To       string `json:"to" yaml:"to"`
	Flowtype string `json:"flowtype" yaml:"flowtype"`

	// WeightOrigin is the ratio of this flow to the primary flow of the
	// origin component. Zero means unset.
	WeightOrigin float64 `json:"weight_origin,omitempty" yaml:"weight_origin,omitempty"`

	// WeightDestination is the ratio at the destination component. Zero means unset.
	WeightDestination float64 `json:"weight_destination,omitempty" yaml:"weight_destination,omitempty"`

	// ToLosses marks a converter output whose weight is the balance residual.
	ToLosses bool `json:"to_losses,omitempty" yaml:"to_losses,omitempty"`
}

// DemandEvent is one discrete demand of a Schedule component. Start and End
// are 1-indexed, inclusive horizon timesteps.
type DemandEvent struct {
	Start  int     `json:"start" yaml:"start"`
	End    int     `json:"end" yaml:"end"`
	Amount float64 `json:"amount" yaml:"amount"`
}

// Component is one node of the factory, tagged by Type.
type Component struct {
	Key    string           `json:"key" yaml:"key"`
	Name   string           `json:"name,omitempty" yaml:"name,omitempty"`
	Type   ComponentType    `json:"type" yaml:"type"`
	Params map[string]Value `json:"params,omitempty" yaml:"params,omitempty"`
	Events []DemandEvent    `json:"events,omitempty" yaml:"events,omitempty"`

	// Inputs and Outputs hold connection keys in declaration order. They are
	// derived by Factory.Freeze.
	Inputs  []string `json:"-" yaml:"-"`
	Outputs []string `json:"-" yaml:"-"`
}

// Param returns the named parameter, if declared.
func (c *Component) Param(name string) (Value, bool) {
	v, ok := c.Params[name]
	return v, ok
}

// Factory is the declarative, solver-independent flow network.
// Components, connections and flowtypes live in slices and are addressed by
// key through the index maps built by Freeze.
type Factory struct {
	Name                 string       `json:"name" yaml:"name"`
	Horizon              int          `json:"horizon" yaml:"horizon"`
	TimeReferenceFactor  float64      `json:"time_reference_factor" yaml:"time_reference_factor"`
	Currency             string       `json:"currency,omitempty" yaml:"currency,omitempty"`
	AllowPrimaryFallback bool         `json:"allow_primary_fallback,omitempty" yaml:"allow_primary_fallback,omitempty"`
	Flowtypes            []Flowtype   `json:"flowtypes" yaml:"flowtypes"`
	Components           []Component  `json:"components" yaml:"components"`
	Connections          []Connection `json:"connections" yaml:"connections"`

	flowtypeIndex   map[string]int
	componentIndex  map[string]int
	connectionIndex map[string]int
	frozen          bool
}

// Frozen reports whether Freeze succeeded on this factory.
func (f *Factory) Frozen() bool {
	return f.frozen
}

// Component returns the component with the given key.
func (f *Factory) Component(key string) (*Component, bool) {
	i, ok := f.componentIndex[key]
	if !ok {
		return nil, false
	}
	return &f.Components[i], true
}

// Connection returns the connection with the given key.
func (f *Factory) Connection(key string) (*Connection, bool) {
	i, ok := f.connectionIndex[key]
	if !ok {
		return nil, false
	}
	return &f.Connections[i], true
}

// Flowtype returns the flowtype with the given key.
func (f *Factory) Flowtype(key string) (*Flowtype, bool) {
	i, ok := f.flowtypeIndex[key]
	if !ok {
		return nil, false
	}
	return &f.Flowtypes[i], true
}

// UnitOf returns the unit of a connection's flowtype.
func (f *Factory) UnitOf(conn *Connection) Unit {
	ft, ok := f.Flowtype(conn.Flowtype)
	if !ok {
		return Unit{QuantityType: QuantityOther, ConversionFactor: 1}
	}
	return ft.Unit
}
