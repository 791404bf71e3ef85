package solver

import (
	"context"
	"time"

	"github.com/openfroyo/factopt/pkg/engine"
)

// Status is the outcome of a solve.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusTimeout    Status = "timeout"
)

// Backend solves a Problem. Implementations must not retain the problem
// after Solve returns.
type Backend interface {
	// Name identifies the backend in logs and stored runs.
	Name() string

	// Solve minimizes the problem objective. Infeasible and unbounded
	// problems are reported through Solution.Status with a nil error; the
	// error is reserved for backend failures.
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}

// Solution is a column assignment returned by a Backend.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Backend   string
	Duration  time.Duration
}

// Vector returns the solved values of v.
func (s *Solution) Vector(v Vector) []float64 {
	out := make([]float64, v.Len)
	if s.Values == nil {
		return out
	}
	copy(out, s.Values[v.Offset:v.Offset+v.Len])
	return out
}

// Scalar returns the solved value of a one-element vector.
func (s *Solution) Scalar(v Vector) float64 {
	if s.Values == nil {
		return 0
	}
	return s.Values[v.Col(0)]
}

// Err converts a non-optimal status to a solver-class error.
func (s *Solution) Err() error {
	switch s.Status {
	case StatusOptimal:
		return nil
	case StatusInfeasible:
		return engine.NewSolverError("problem is infeasible", nil).WithCode(engine.ErrCodeInfeasible)
	case StatusUnbounded:
		return engine.NewSolverError("objective is unbounded", nil).WithCode(engine.ErrCodeUnbounded)
	case StatusTimeout:
		return engine.NewSolverError("solve timed out", nil).WithCode(engine.ErrCodeTimeout)
	default:
		return engine.NewSolverError("unknown solve status "+string(s.Status), nil)
	}
}
