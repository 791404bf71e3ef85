package model

import (
	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/solver"
)

// poolRule emits Σ in(t) = Σ out(t) for the whole window as a single
// constraint group. A pool without inputs or outputs pins the other side
// to zero.
func poolRule(sim *Simulation, comp *engine.Component) error {
	in, err := sim.FlowSum(comp.Inputs)
	if err != nil {
		return err
	}
	out, err := sim.FlowSum(comp.Outputs)
	if err != nil {
		return err
	}
	return sim.Problem.AddConstraint(constraintName(comp, "balance"), in, solver.Equal, out)
}
