package engine

import (
	"fmt"
	"sort"
)

// ParamRef addresses one parameter of one component.
type ParamRef struct {
	Component string `json:"component"`
	Param     string `json:"param"`
}

// String implements fmt.Stringer.
func (r ParamRef) String() string {
	return r.Component + "." + r.Param
}

// Scenario selects one variation for each varied parameter. Parameters
// missing from Selections use their first declared variation.
type Scenario struct {
	Name       string              `json:"name"`
	Selections map[ParamRef]string `json:"-"`
}

// BaselineScenario is the scenario using first variations everywhere.
const BaselineScenario = "baseline"

// Variation returns the variation selected for ref, or "" for the default.
func (s Scenario) Variation(ref ParamRef) string {
	if s.Selections == nil {
		return ""
	}
	return s.Selections[ref]
}

// VariedParams returns every varied parameter of the factory in component
// declaration order, parameters sorted by name.
func VariedParams(f *Factory) []ParamRef {
	var refs []ParamRef
	for i := range f.Components {
		c := &f.Components[i]
		names := make([]string, 0, len(c.Params))
		for name, v := range c.Params {
			if v.IsVaried() {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			refs = append(refs, ParamRef{Component: c.Key, Param: name})
		}
	}
	return refs
}

// ExpandScenarios returns the baseline scenario followed by one scenario per
// non-default variation of each varied parameter. Every other varied
// parameter keeps its first variation, so each run changes exactly one
// parameter against the baseline.
func ExpandScenarios(f *Factory) []Scenario {
	scenarios := []Scenario{{Name: BaselineScenario}}
	for _, ref := range VariedParams(f) {
		c, _ := f.Component(ref.Component)
		v := c.Params[ref.Param]
		for _, vr := range v.Variations[1:] {
			scenarios = append(scenarios, Scenario{
				Name:       fmt.Sprintf("%s=%s", ref, vr.Name),
				Selections: map[ParamRef]string{ref: vr.Name},
			})
		}
	}
	return scenarios
}

// FindScenario returns the expanded scenario with the given name.
func FindScenario(f *Factory, name string) (Scenario, error) {
	for _, s := range ExpandScenarios(f) {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, NewConfigurationError(fmt.Sprintf("unknown scenario %q", name), nil).
		WithCode(ErrCodeNotFound)
}
