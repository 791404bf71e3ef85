package model

import (
	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/solver"
)

// sourceRule caps the total output at power_max·availability, or fixes it
// there when the source is determined, and charges cost per unit supplied.
func sourceRule(sim *Simulation, comp *engine.Component) error {
	out, err := sim.FlowSum(comp.Outputs)
	if err != nil {
		return err
	}

	pmax, err := sim.Series(comp, "power_max")
	if err != nil {
		return err
	}
	avail, err := sim.SeriesOr(comp, "availability", 1)
	if err != nil {
		return err
	}
	capacity := make([]float64, len(pmax))
	for t := range pmax {
		capacity[t] = pmax[t] * avail[t]
	}

	determined, err := sim.FlagOr(comp, "determined", false)
	if err != nil {
		return err
	}
	sense := solver.LessEqual
	if determined {
		sense = solver.Equal
	}
	if err := sim.Problem.AddConstraint(constraintName(comp, "capacity"), out, sense, solver.Values(capacity)); err != nil {
		return err
	}

	pmin, err := sim.Series(comp, "power_min")
	if err != nil {
		return err
	}
	if pmin != nil && !determined {
		if err := sim.Problem.AddConstraint(constraintName(comp, "power_min"), out, solver.GreaterEqual, solver.Values(pmin)); err != nil {
			return err
		}
	}

	cost, err := sim.Series(comp, "cost")
	if err != nil || cost == nil {
		return err
	}
	return sim.AddCostTerm(comp.Key, "", "supply", out.Dot(cost))
}

// sinkRule fixes the total input to demand when declared, otherwise caps it
// at power_max. Cost is charged and revenue credited per unit consumed.
func sinkRule(sim *Simulation, comp *engine.Component) error {
	in, err := sim.FlowSum(comp.Inputs)
	if err != nil {
		return err
	}

	demand, err := sim.Series(comp, "demand")
	if err != nil {
		return err
	}
	if demand != nil {
		if err := sim.Problem.AddConstraint(constraintName(comp, "demand"), in, solver.Equal, solver.Values(demand)); err != nil {
			return err
		}
	} else {
		pmax, err := sim.Series(comp, "power_max")
		if err != nil {
			return err
		}
		if pmax != nil {
			if err := sim.Problem.AddConstraint(constraintName(comp, "power_max"), in, solver.LessEqual, solver.Values(pmax)); err != nil {
				return err
			}
		}
	}

	cost, err := sim.Series(comp, "cost")
	if err != nil {
		return err
	}
	if cost != nil {
		if err := sim.AddCostTerm(comp.Key, "", "consumption", in.Dot(cost)); err != nil {
			return err
		}
	}

	revenue, err := sim.Series(comp, "revenue")
	if err != nil || revenue == nil {
		return err
	}
	return sim.AddCostTerm(comp.Key, "", "revenue", in.Dot(revenue).Scale(-1))
}
