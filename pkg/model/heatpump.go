package model

import (
	"fmt"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/solver"
)

// heatpumpRule routes every flow through the utilization vector P(t):
// main input = P, gains = P·(COP−1), output = P·COP. COP is data, so all
// rows stay linear in P.
func heatpumpRule(sim *Simulation, comp *engine.Component) error {
	cop, err := sim.Series(comp, "cop")
	if err != nil {
		return err
	}
	gainsFactor := make([]float64, len(cop))
	for t, c := range cop {
		if c < 1 {
			return engine.NewConfigurationError(
				fmt.Sprintf("cop %g at timestep %d is below 1", c, sim.TStart+t), nil).
				WithResource(comp.Key).WithCode(engine.ErrCodeParameter)
		}
		gainsFactor[t] = c - 1
	}

	main, err := sim.Flow(comp.Inputs[0])
	if err != nil {
		return err
	}
	gains, err := sim.Flow(comp.Inputs[1])
	if err != nil {
		return err
	}
	out, err := sim.Flow(comp.Outputs[0])
	if err != nil {
		return err
	}

	util := sim.AddAux(comp.Key, "utilization", 0, solver.Inf)
	u := util.Expr()

	pmax, err := sim.Series(comp, "power_max")
	if err != nil {
		return err
	}
	if pmax != nil {
		if err := sim.Problem.AddConstraint(constraintName(comp, "power_max"), u, solver.LessEqual, solver.Values(pmax)); err != nil {
			return err
		}
	}

	rows := []struct {
		name string
		lhs  solver.VecExpr
		rhs  solver.VecExpr
	}{
		{"main", main.Expr(), u},
		{"gains", gains.Expr(), u.ScaleBy(gainsFactor)},
		{"output", out.Expr(), u.ScaleBy(cop)},
	}
	for _, r := range rows {
		if err := sim.Problem.AddConstraint(constraintName(comp, r.name), r.lhs, solver.Equal, r.rhs); err != nil {
			return err
		}
	}

	cost, err := sim.Series(comp, "cost")
	if err != nil || cost == nil {
		return err
	}
	return sim.AddCostTerm(comp.Key, "", "operation", u.Dot(cost))
}
