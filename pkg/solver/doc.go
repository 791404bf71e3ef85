// Package solver is the boundary between the model builder and numeric
// solvers.
//
// A Problem collects vectors of continuous columns, groups of affine
// constraint rows and scalar objective terms. Backends consume a Problem and
// return a Solution; Simplex is the in-process backend built on
// gonum.org/v1/gonum/optimize/convex/lp, and WriteLP exports the same
// problem in CPLEX LP format for external MILP solvers.
//
// Example:
//
//	p := solver.NewProblem("demo")
//	x := p.AddVector("x", 3, 0, solver.Inf)
//	_ = p.AddConstraint("demand", x.Expr(), solver.Equal, solver.Values([]float64{5, 5, 5}))
//	p.Minimize(x.Expr().Total())
//	sol, err := solver.NewSimplex().Solve(ctx, p)
package solver
