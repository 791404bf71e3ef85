package model

import (
	"fmt"
	"math"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/solver"
)

const delayTolerance = 1e-9

// MaxDelaySteps is the largest step count DelaySteps returns. Larger delays
// saturate here; any delay at or beyond the window length zeroes the output.
const MaxDelaySteps = math.MaxInt32

// DelaySteps converts a delay in native time units into whole timesteps,
// rounding half away from zero and saturating at MaxDelaySteps. exact is
// false when rounding changed the value.
func DelaySteps(delay, timeReferenceFactor float64) (steps int, exact bool) {
	q := delay / timeReferenceFactor
	r := math.Round(q)
	exact = math.Abs(q-r) <= delayTolerance
	// Saturate before converting; int() of an out-of-range float is undefined.
	if r >= MaxDelaySteps || math.IsNaN(r) {
		return MaxDelaySteps, exact
	}
	return int(r), exact
}

// Shift returns series delayed by d steps: out[t] = series[t−d], with the
// first d values zero and the last d input values dropped.
func Shift(series []float64, d int) []float64 {
	out := make([]float64, len(series))
	for t := d; t < len(series); t++ {
		out[t] = series[t-d]
	}
	return out
}

// deadtimeRule enforces output(t) = input(t − d). The start region has no
// history and the end region has no future within the window; without
// slack both are pinned to zero, with slack they are fed from the slack
// input and drained into the slack output. The slack output is indexed in
// reverse, slack_out(n−t−1) = input(t).
func deadtimeRule(sim *Simulation, comp *engine.Component) error {
	delay, err := sim.ScalarOr(comp, "delay", 0)
	if err != nil {
		return err
	}
	if delay < 0 {
		return engine.NewConfigurationError(fmt.Sprintf("negative delay %g", delay), nil).
			WithResource(comp.Key).WithCode(engine.ErrCodeParameter)
	}

	d, exact := DelaySteps(delay, sim.TimeReferenceFactor)
	if !exact {
		sim.Warn(comp.Key, engine.ErrCodeDelayRounded, fmt.Sprintf(
			"delay %g is %g timesteps, rounded to %d", delay, delay/sim.TimeReferenceFactor, d))
	}
	n := sim.IntervalLength()
	if d > n {
		d = n
	}

	input, err := sim.Flow(comp.Inputs[0])
	if err != nil {
		return err
	}
	output, err := sim.Flow(comp.Outputs[0])
	if err != nil {
		return err
	}
	in, out := input.Expr(), output.Expr()

	if d < n {
		if err := sim.Problem.AddConstraint(constraintName(comp, "delay"), out[d:], solver.Equal, in[:n-d]); err != nil {
			return err
		}
	}
	if d == 0 {
		return nil
	}

	if len(comp.Outputs) == 1 {
		if err := sim.Problem.AddConstraint(constraintName(comp, "start"), out[:d], solver.Equal, solver.Zeros(d)); err != nil {
			return err
		}
		return sim.Problem.AddConstraint(constraintName(comp, "end"), in[n-d:], solver.Equal, solver.Zeros(d))
	}

	slackInput, err := sim.Flow(comp.Inputs[1])
	if err != nil {
		return err
	}
	slackOutput, err := sim.Flow(comp.Outputs[1])
	if err != nil {
		return err
	}
	slackIn, slackOut := slackInput.Expr(), slackOutput.Expr()

	if err := sim.Problem.AddConstraint(constraintName(comp, "start"), out[:d], solver.Equal, slackIn[:d]); err != nil {
		return err
	}
	if d < n {
		if err := sim.Problem.AddConstraint(constraintName(comp, "slack_in_idle"), slackIn[d:], solver.Equal, solver.Zeros(n-d)); err != nil {
			return err
		}
		if err := sim.Problem.AddConstraint(constraintName(comp, "slack_out_idle"), slackOut[d:], solver.Equal, solver.Zeros(n-d)); err != nil {
			return err
		}
	}

	drained := make(solver.VecExpr, 0, d)
	source := make(solver.VecExpr, 0, d)
	for t := n - d; t < n; t++ {
		drained = append(drained, slackOut[n-t-1])
		source = append(source, in[t])
	}
	return sim.Problem.AddConstraint(constraintName(comp, "end"), drained, solver.Equal, source)
}
