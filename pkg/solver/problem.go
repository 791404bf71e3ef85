package solver

import (
	"fmt"
	"math"
	"sync"
)

// Inf is an infinite variable bound.
var Inf = math.Inf(1)

// Sense is the relation of a constraint row.
type Sense string

const (
	LessEqual    Sense = "<="
	GreaterEqual Sense = ">="
	Equal        Sense = "="
)

// Vector is a handle to a block of contiguous problem columns.
type Vector struct {
	Name   string
	Offset int
	Len    int
}

// Col returns the column index of element t.
func (v Vector) Col(t int) int {
	if t < 0 || t >= v.Len {
		panic(fmt.Sprintf("solver: index %d out of range for %s[%d]", t, v.Name, v.Len))
	}
	return v.Offset + t
}

// At returns element t as an expression.
func (v Vector) At(t int) LinExpr {
	return LinExpr{Terms: []Term{{Col: v.Col(t), Coef: 1}}}
}

// Expr returns the whole vector as a vector expression.
func (v Vector) Expr() VecExpr {
	out := make(VecExpr, v.Len)
	for t := range out {
		out[t] = v.At(t)
	}
	return out
}

// Row is one normalized constraint row: Σ terms <sense> RHS.
type Row struct {
	Terms []Term
	Sense Sense
	RHS   float64
}

// Constraint is a named group of rows emitted together.
type Constraint struct {
	Name string
	Rows []Row
}

// Problem is an LP under construction: columns with bounds, constraint
// groups and an objective made of scalar expressions to minimize.
// It is safe for concurrent use, but one problem usually belongs to one
// simulation context.
type Problem struct {
	mu sync.RWMutex

	name        string
	vectors     []Vector
	colNames    []string
	lower       []float64
	upper       []float64
	constraints []Constraint
	objective   []LinExpr
	rows        int
}

// NewProblem creates an empty problem.
func NewProblem(name string) *Problem {
	return &Problem{name: name}
}

// Name returns the problem name.
func (p *Problem) Name() string {
	return p.name
}

// AddVector registers n columns bounded by [lower, upper].
func (p *Problem) AddVector(name string, n int, lower, upper float64) Vector {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := Vector{Name: name, Offset: len(p.lower), Len: n}
	for t := 0; t < n; t++ {
		p.colNames = append(p.colNames, fmt.Sprintf("%s(%d)", name, t))
		p.lower = append(p.lower, lower)
		p.upper = append(p.upper, upper)
	}
	p.vectors = append(p.vectors, v)
	return v
}

// AddConstraint emits lhs[t] <sense> rhs[t] for every t as one group.
func (p *Problem) AddConstraint(name string, lhs VecExpr, sense Sense, rhs VecExpr) error {
	if len(lhs) != len(rhs) {
		return fmt.Errorf("constraint %s: lhs has %d rows, rhs has %d", name, len(lhs), len(rhs))
	}
	switch sense {
	case LessEqual, GreaterEqual, Equal:
	default:
		return fmt.Errorf("constraint %s: invalid sense %q", name, sense)
	}

	rows := make([]Row, 0, len(lhs))
	for t := range lhs {
		diff := lhs[t].Minus(rhs[t]).Compact()
		rhs := -diff.Constant
		if rhs == 0 {
			rhs = 0 // drop negative zero
		}
		rows = append(rows, Row{Terms: diff.Terms, Sense: sense, RHS: rhs})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range rows {
		for _, term := range r.Terms {
			if term.Col < 0 || term.Col >= len(p.lower) {
				return fmt.Errorf("constraint %s: unknown column %d", name, term.Col)
			}
		}
	}
	p.constraints = append(p.constraints, Constraint{Name: name, Rows: rows})
	p.rows += len(rows)
	return nil
}

// AddRow emits a single scalar constraint.
func (p *Problem) AddRow(name string, lhs LinExpr, sense Sense, rhs LinExpr) error {
	return p.AddConstraint(name, VecExpr{lhs}, sense, VecExpr{rhs})
}

// AddAuxiliary registers a free scalar column tied to expr by equality.
func (p *Problem) AddAuxiliary(name string, expr LinExpr) (Vector, error) {
	v := p.AddVector(name, 1, -Inf, Inf)
	if err := p.AddRow(name, v.At(0), Equal, expr); err != nil {
		return Vector{}, err
	}
	return v, nil
}

// Minimize adds scalar expressions to the objective sum.
func (p *Problem) Minimize(exprs ...LinExpr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objective = append(p.objective, exprs...)
}

// NumColumns returns the number of registered columns.
func (p *Problem) NumColumns() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.lower)
}

// NumRows returns the number of constraint rows.
func (p *Problem) NumRows() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rows
}

// Constraints returns the constraint groups in emission order.
func (p *Problem) Constraints() []Constraint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Constraint(nil), p.constraints...)
}

// Constraint returns the first group with the given name.
func (p *Problem) Constraint(name string) (Constraint, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.constraints {
		if c.Name == name {
			return c, true
		}
	}
	return Constraint{}, false
}

// Vectors returns the registered vectors.
func (p *Problem) Vectors() []Vector {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Vector(nil), p.vectors...)
}

// Bounds returns the bounds of column col.
func (p *Problem) Bounds(col int) (lower, upper float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lower[col], p.upper[col]
}

// ColumnName returns the display name of column col.
func (p *Problem) ColumnName(col int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.colNames[col]
}

// Objective returns the objective as one compacted expression.
func (p *Problem) Objective() LinExpr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out LinExpr
	for _, e := range p.objective {
		out = out.Plus(e)
	}
	return out.Compact()
}

// Violation describes a row or bound not satisfied by an assignment.
type Violation struct {
	Constraint string
	Row        int
	Residual   float64
}

// Check returns every bound and row violated by x beyond tol.
func (p *Problem) Check(x []float64, tol float64) []Violation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Violation
	for col := range p.lower {
		if x[col] < p.lower[col]-tol {
			out = append(out, Violation{Constraint: "bound:" + p.colNames[col], Residual: p.lower[col] - x[col]})
		}
		if x[col] > p.upper[col]+tol {
			out = append(out, Violation{Constraint: "bound:" + p.colNames[col], Residual: x[col] - p.upper[col]})
		}
	}
	for _, c := range p.constraints {
		for i, r := range c.Rows {
			lhs := LinExpr{Terms: r.Terms}.Eval(x)
			var residual float64
			switch r.Sense {
			case Equal:
				residual = math.Abs(lhs - r.RHS)
			case LessEqual:
				residual = lhs - r.RHS
			case GreaterEqual:
				residual = r.RHS - lhs
			}
			if residual > tol {
				out = append(out, Violation{Constraint: c.Name, Row: i, Residual: residual})
			}
		}
	}
	return out
}
