package model

import (
	"fmt"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/solver"
)

// scheduleRule requires each demand event inside the window to receive its
// amount, Σ_{t∈event} Σin(t)·trf = amount, and keeps the inputs idle
// outside every event. Event bounds are 1-indexed horizon timesteps.
func scheduleRule(sim *Simulation, comp *engine.Component) error {
	in, err := sim.FlowSum(comp.Inputs)
	if err != nil {
		return err
	}

	n := sim.IntervalLength()
	covered := make([]bool, n)
	for i, ev := range comp.Events {
		first, last := ev.Start-1, ev.End-1
		if last < sim.TStart || first > sim.TEnd {
			continue
		}
		if first < sim.TStart || last > sim.TEnd {
			return engine.NewConfigurationError(
				fmt.Sprintf("event %d [%d, %d] straddles the simulated window", i, ev.Start, ev.End), nil).
				WithResource(comp.Key).WithCode(engine.ErrCodeParameter)
		}

		var delivered solver.LinExpr
		for t := first; t <= last; t++ {
			delivered = delivered.Plus(in[t-sim.TStart])
			covered[t-sim.TStart] = true
		}
		delivered = delivered.Scale(sim.TimeReferenceFactor).Compact()
		name := constraintName(comp, fmt.Sprintf("event_%d", i))
		if err := sim.Problem.AddRow(name, delivered, solver.Equal, solver.Constant(ev.Amount)); err != nil {
			return err
		}
	}

	var idle solver.VecExpr
	for t, c := range covered {
		if !c {
			idle = append(idle, in[t])
		}
	}
	if len(idle) > 0 {
		if err := sim.Problem.AddConstraint(constraintName(comp, "idle"), idle, solver.Equal, solver.Zeros(len(idle))); err != nil {
			return err
		}
	}

	pmax, err := sim.Series(comp, "power_max")
	if err != nil || pmax == nil {
		return err
	}
	return sim.Problem.AddConstraint(constraintName(comp, "power_max"), in, solver.LessEqual, solver.Values(pmax))
}
