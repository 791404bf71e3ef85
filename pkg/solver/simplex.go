package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// DefaultTolerance is the pivoting and presolve tolerance of Simplex.
const DefaultTolerance = 1e-9

// Simplex solves problems with gonum's dense simplex implementation. It does
// not handle integrality.
//
// The tableau is dense, so time and memory grow quickly with the window. A
// three component factory solves in about a second at 96 timesteps and takes
// close to 20 seconds at 192. For longer horizons solve shorter windows, or
// export the model with WriteLP and hand it to an external solver.
type Simplex struct {
	// Tolerance overrides DefaultTolerance when positive.
	Tolerance float64
}

// NewSimplex creates a gonum-backed solver.
func NewSimplex() *Simplex {
	return &Simplex{Tolerance: DefaultTolerance}
}

// Name implements Backend.
func (s *Simplex) Name() string {
	return "gonum-simplex"
}

type simplexResult struct {
	sol *Solution
	err error
}

// Solve implements Backend. The simplex itself cannot be interrupted; when
// ctx ends first the result is abandoned and StatusTimeout returned.
func (s *Simplex) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	start := time.Now()
	done := make(chan simplexResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- simplexResult{err: fmt.Errorf("simplex panicked: %v", r)}
			}
		}()
		sol, err := s.solve(p)
		done <- simplexResult{sol: sol, err: err}
	}()

	select {
	case <-ctx.Done():
		return &Solution{Status: StatusTimeout, Backend: s.Name(), Duration: time.Since(start)}, nil
	case res := <-done:
		if res.sol != nil {
			res.sol.Backend = s.Name()
			res.sol.Duration = time.Since(start)
		}
		return res.sol, res.err
	}
}

func (s *Simplex) solve(p *Problem) (*Solution, error) {
	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	sf := toStandardForm(p)
	red, err := presolve(sf, tol)
	switch {
	case errors.Is(err, errPresolveInfeasible):
		return &Solution{Status: StatusInfeasible}, nil
	case errors.Is(err, errPresolveUnbounded):
		return &Solution{Status: StatusUnbounded}, nil
	case err != nil:
		return nil, err
	}

	y := make([]float64, len(sf.c))
	objective := sf.offset
	if len(red.a) > 0 {
		a := mat.NewDense(len(red.a), len(red.cols), nil)
		for i, row := range red.a {
			a.SetRow(i, row)
		}
		opt, x, err := lp.Simplex(red.c, a, red.b, tol, nil)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return &Solution{Status: StatusInfeasible}, nil
		case errors.Is(err, lp.ErrUnbounded):
			return &Solution{Status: StatusUnbounded}, nil
		case err != nil:
			return nil, fmt.Errorf("simplex: %w", err)
		}
		for k, j := range red.cols {
			y[j] = x[k]
		}
		objective += opt
	}

	return &Solution{
		Status:    StatusOptimal,
		Objective: objective,
		Values:    sf.unmap(y),
	}, nil
}
