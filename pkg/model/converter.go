package model

import (
	"fmt"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/solver"
)

// converterRule ties every connection to the primary flow by its weight.
// Loss connections use the residual weight that closes the balance, never a
// declared one. Operating range, ramping and cost apply to the primary flow
// and reach the other connections through the ratios.
func converterRule(sim *Simulation, comp *engine.Component) error {
	cw, err := sim.Factory.LossWeights(comp)
	if err != nil {
		return err
	}
	if cw.Primary.Fallback {
		sim.Warn(comp.Key, engine.ErrCodePrimaryDefault, fmt.Sprintf(
			"no connection with weight 1, weights normalized against %s", cw.Primary.Key))
	}

	primary, err := sim.Flow(cw.Primary.Key)
	if err != nil {
		return err
	}
	p := primary.Expr()

	keys := append(append([]string(nil), comp.Inputs...), comp.Outputs...)
	for _, key := range keys {
		if key == cw.Primary.Key {
			continue
		}
		flow, err := sim.Flow(key)
		if err != nil {
			return err
		}
		name := constraintName(comp, "ratio_"+key)
		if err := sim.Problem.AddConstraint(name, flow.Expr(), solver.Equal, p.Scale(cw.Weights[key])); err != nil {
			return err
		}
	}

	if err := converterRange(sim, comp, p); err != nil {
		return err
	}
	if err := converterRamp(sim, comp, p); err != nil {
		return err
	}

	cost, err := sim.Series(comp, "cost")
	if err != nil || cost == nil {
		return err
	}
	return sim.AddCostTerm(comp.Key, "", "operation", p.Dot(cost))
}

func converterRange(sim *Simulation, comp *engine.Component, p solver.VecExpr) error {
	pmax, err := sim.Series(comp, "power_max")
	if err != nil {
		return err
	}
	if pmax != nil {
		avail, err := sim.SeriesOr(comp, "availability", 1)
		if err != nil {
			return err
		}
		limit := make([]float64, len(pmax))
		for t := range pmax {
			limit[t] = pmax[t] * avail[t]
		}
		if err := sim.Problem.AddConstraint(constraintName(comp, "power_max"), p, solver.LessEqual, solver.Values(limit)); err != nil {
			return err
		}
	}

	pmin, err := sim.Series(comp, "power_min")
	if err != nil || pmin == nil {
		return err
	}
	return sim.Problem.AddConstraint(constraintName(comp, "power_min"), p, solver.GreaterEqual, solver.Values(pmin))
}

// converterRamp bounds |p(t) − p(t−1)| by the ramp limit with one row per
// direction and step.
func converterRamp(sim *Simulation, comp *engine.Component, p solver.VecExpr) error {
	limit, err := sim.Series(comp, "ramp_limit")
	if err != nil || limit == nil || len(p) < 2 {
		return err
	}
	delta := p[1:].Minus(p[:len(p)-1])
	bound := solver.Values(limit[1:])
	if err := sim.Problem.AddConstraint(constraintName(comp, "ramp_up"), delta, solver.LessEqual, bound); err != nil {
		return err
	}
	return sim.Problem.AddConstraint(constraintName(comp, "ramp_down"), delta.Scale(-1), solver.LessEqual, bound)
}
