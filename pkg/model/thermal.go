package model

import (
	"fmt"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/solver"
)

// thermalRule models a lumped thermal mass with capacity C and a loss
// coefficient U towards the ambient temperature:
//
//	C·(T(t) − T(t−1)) = (Σin(t) − Σout(t) − U·(T(t−1) − T_amb(t)))·trf
//
// with T(−1) = temperature_start. The temperature is a free auxiliary
// vector bounded by the optional comfort band.
func thermalRule(sim *Simulation, comp *engine.Component) error {
	capacity, err := sim.ScalarOr(comp, "capacity", 0)
	if err != nil {
		return err
	}
	if capacity <= 0 {
		return engine.NewConfigurationError(fmt.Sprintf("capacity must be positive, got %g", capacity), nil).
			WithResource(comp.Key).WithCode(engine.ErrCodeParameter)
	}
	loss, err := sim.ScalarOr(comp, "loss_coefficient", 0)
	if err != nil {
		return err
	}
	if loss < 0 {
		return engine.NewConfigurationError(fmt.Sprintf("negative loss coefficient %g", loss), nil).
			WithResource(comp.Key).WithCode(engine.ErrCodeParameter)
	}
	start, err := sim.ScalarOr(comp, "temperature_start", 0)
	if err != nil {
		return err
	}
	ambient, err := sim.SeriesOr(comp, "ambient", 0)
	if err != nil {
		return err
	}
	sustain, err := sim.FlagOr(comp, "sustain", false)
	if err != nil {
		return err
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
	temp := sim.AddAux(comp.Key, "temperature", -solver.Inf, solver.Inf)
	T := temp.Expr()

	// C·T(t) = (C − U·trf)·T(t−1) + trf·(in − out) + U·trf·T_amb(t)
	carry := capacity - loss*trf
	rhs := make(solver.VecExpr, n)
	for t := 0; t < n; t++ {
		var prev solver.LinExpr
		if t == 0 {
			prev = solver.Constant(start * carry)
		} else {
			prev = T[t-1].Scale(carry)
		}
		rhs[t] = prev.
			Plus(in[t].Minus(out[t]).Scale(trf)).
			Plus(solver.Constant(loss * trf * ambient[t]))
	}
	if err := sim.Problem.AddConstraint(constraintName(comp, "temperature"), T.Scale(capacity), solver.Equal, rhs); err != nil {
		return err
	}

	tmin, err := sim.Series(comp, "temperature_min")
	if err != nil {
		return err
	}
	if tmin != nil {
		if err := sim.Problem.AddConstraint(constraintName(comp, "temperature_min"), T, solver.GreaterEqual, solver.Values(tmin)); err != nil {
			return err
		}
	}
	tmax, err := sim.Series(comp, "temperature_max")
	if err != nil {
		return err
	}
	if tmax != nil {
		if err := sim.Problem.AddConstraint(constraintName(comp, "temperature_max"), T, solver.LessEqual, solver.Values(tmax)); err != nil {
			return err
		}
	}

	if !sustain {
		return nil
	}
	return sim.Problem.AddRow(constraintName(comp, "sustain"), T[n-1], solver.GreaterEqual, solver.Constant(start))
}
