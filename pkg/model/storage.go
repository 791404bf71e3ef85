package model

import (
	"fmt"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/solver"
)

// storageRule tracks the state of charge at the end of every timestep:
//
//	soc(t) = (1 − leakage)·soc(t−1) + (efficiency·Σin(t) − Σout(t))·trf
//
// with soc(−1) = soc_start·capacity. A cyclic storage must end the window at
// least as full as it started.
func storageRule(sim *Simulation, comp *engine.Component) error {
	capacity, err := sim.ScalarOr(comp, "capacity", 0)
	if err != nil {
		return err
	}
	socStart, err := sim.ScalarOr(comp, "soc_start", 0.5)
	if err != nil {
		return err
	}
	leakage, err := sim.ScalarOr(comp, "leakage", 0)
	if err != nil {
		return err
	}
	efficiency, err := sim.ScalarOr(comp, "efficiency", 1)
	if err != nil {
		return err
	}
	cyclic, err := sim.FlagOr(comp, "cyclic", true)
	if err != nil {
		return err
	}
	switch {
	case capacity < 0:
		return storageParamError(comp, "capacity", capacity)
	case socStart < 0 || socStart > 1:
		return storageParamError(comp, "soc_start", socStart)
	case leakage < 0 || leakage >= 1:
		return storageParamError(comp, "leakage", leakage)
	case efficiency <= 0 || efficiency > 1:
		return storageParamError(comp, "efficiency", efficiency)
	}

	in, err := sim.FlowSum(comp.Inputs)
	if err != nil {
		return err
	}
	out, err := sim.FlowSum(comp.Outputs)
	if err != nil {
		return err
	}

	n := sim.IntervalLength()
	trf := sim.TimeReferenceFactor
	initial := socStart * capacity
	soc := sim.AddAux(comp.Key, "soc", 0, capacity)
	s := soc.Expr()

	prev := make(solver.VecExpr, n)
	prev[0] = solver.Constant(initial * (1 - leakage))
	for t := 1; t < n; t++ {
		prev[t] = s[t-1].Scale(1 - leakage)
	}
	net := in.Scale(efficiency * trf).Minus(out.Scale(trf))
	if err := sim.Problem.AddConstraint(constraintName(comp, "soc"), s, solver.Equal, prev.Plus(net)); err != nil {
		return err
	}

	for _, limit := range []struct {
		param string
		flow  solver.VecExpr
	}{
		{"power_max_charge", in},
		{"power_max_discharge", out},
	} {
		pmax, err := sim.Series(comp, limit.param)
		if err != nil {
			return err
		}
		if pmax == nil {
			continue
		}
		if err := sim.Problem.AddConstraint(constraintName(comp, limit.param), limit.flow, solver.LessEqual, solver.Values(pmax)); err != nil {
			return err
		}
	}

	if !cyclic {
		return nil
	}
	return sim.Problem.AddRow(constraintName(comp, "cyclic"), s[n-1], solver.GreaterEqual, solver.Constant(initial))
}

func storageParamError(comp *engine.Component, name string, v float64) error {
	return engine.NewConfigurationError(fmt.Sprintf("parameter %q out of range: %g", name, v), nil).
		WithResource(comp.Key).WithCode(engine.ErrCodeParameter)
}
