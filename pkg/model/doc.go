// Package model compiles a frozen factory into a linear program.
//
// A Builder creates one Simulation per scenario and window, registers a
// non-negative flow vector for every connection and then applies the rule
// of each component in declaration order. Rules only add constraints,
// auxiliary vectors and cost terms to the Simulation's problem; they never
// read solver output. After solving, Extract turns a solver.Solution back
// into per-connection flows, auxiliary series and cost term values.
//
// Example:
//
//	sim, err := model.NewBuilder(logger).Build(ctx, factory, model.FullHorizon(engine.Scenario{}))
//	if err != nil {
//	    return err
//	}
//	sol, err := solver.NewSimplex().Solve(ctx, sim.Problem)
//	if err != nil {
//	    return err
//	}
//	result := model.Extract(sim, sol)
package model
