package solver

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"
)

const testTol = 1e-6

func solveOrFail(t *testing.T, p *Problem) *Solution {
	t.Helper()
	sol, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	return sol
}

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > testTol {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestSimplex_FixedDemand(t *testing.T) {
	p := NewProblem("demand")
	x := p.AddVector("x", 3, 0, Inf)
	if err := p.AddConstraint("demand", x.Expr(), Equal, Values([]float64{5, 5, 5})); err != nil {
		t.Fatalf("AddConstraint() error = %v", err)
	}
	p.Minimize(x.Expr().Total())

	sol := solveOrFail(t, p)
	if sol.Status != StatusOptimal {
		t.Fatalf("Status = %v, want optimal", sol.Status)
	}
	assertClose(t, "objective", sol.Objective, 15)
	for _, v := range sol.Vector(x) {
		assertClose(t, "x", v, 5)
	}
	if v := p.Check(sol.Values, testTol); len(v) != 0 {
		t.Errorf("Check() = %v, want no violations", v)
	}
}

func TestSimplex_MeritOrder(t *testing.T) {
	p := NewProblem("merit")
	cheap := p.AddVector("cheap", 1, 0, 4)
	dear := p.AddVector("dear", 1, 0, Inf)
	if err := p.AddRow("balance", cheap.At(0).Plus(dear.At(0)), Equal, Constant(10)); err != nil {
		t.Fatal(err)
	}
	p.Minimize(cheap.At(0), dear.At(0).Scale(2))

	sol := solveOrFail(t, p)
	if sol.Status != StatusOptimal {
		t.Fatalf("Status = %v, want optimal", sol.Status)
	}
	assertClose(t, "cheap", sol.Scalar(cheap), 4)
	assertClose(t, "dear", sol.Scalar(dear), 6)
	assertClose(t, "objective", sol.Objective, 16)
}

func TestSimplex_Infeasible(t *testing.T) {
	p := NewProblem("infeasible")
	x := p.AddVector("x", 1, 0, 3)
	if err := p.AddRow("min", x.At(0), GreaterEqual, Constant(5)); err != nil {
		t.Fatal(err)
	}
	p.Minimize(x.At(0))

	sol := solveOrFail(t, p)
	if sol.Status != StatusInfeasible {
		t.Fatalf("Status = %v, want infeasible", sol.Status)
	}
	if err := sol.Err(); err == nil {
		t.Error("Err() = nil, want solver error")
	}
}

func TestSimplex_InconsistentDuplicateRows(t *testing.T) {
	p := NewProblem("inconsistent")
	x := p.AddVector("x", 2, 0, Inf)
	sum := x.At(0).Plus(x.At(1))
	_ = p.AddRow("a", sum, Equal, Constant(4))
	_ = p.AddRow("b", sum, Equal, Constant(5))
	p.Minimize(x.At(0))

	sol := solveOrFail(t, p)
	if sol.Status != StatusInfeasible {
		t.Fatalf("Status = %v, want infeasible", sol.Status)
	}
}

func TestSimplex_DependentRows(t *testing.T) {
	p := NewProblem("dependent")
	x := p.AddVector("x", 2, 0, Inf)
	sum := x.At(0).Plus(x.At(1))
	_ = p.AddRow("a", sum, Equal, Constant(4))
	_ = p.AddRow("b", sum, Equal, Constant(4))
	_ = p.AddRow("c", sum.Scale(2), Equal, Constant(8))
	p.Minimize(x.At(0), x.At(1).Scale(2))

	sol := solveOrFail(t, p)
	if sol.Status != StatusOptimal {
		t.Fatalf("Status = %v, want optimal", sol.Status)
	}
	assertClose(t, "x0", sol.Values[0], 4)
	assertClose(t, "x1", sol.Values[1], 0)
	assertClose(t, "objective", sol.Objective, 4)
}

func TestSimplex_Unbounded(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *Problem)
	}{
		{
			name: "unconstrained column",
			build: func(p *Problem) {
				x := p.AddVector("x", 1, 0, Inf)
				p.Minimize(x.At(0).Scale(-1))
			},
		},
		{
			name: "unbounded ray",
			build: func(p *Problem) {
				x := p.AddVector("x", 2, 0, Inf)
				_ = p.AddRow("tie", x.At(0), Equal, x.At(1))
				p.Minimize(x.At(0).Scale(-1))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProblem(tt.name)
			tt.build(p)
			sol := solveOrFail(t, p)
			if sol.Status != StatusUnbounded {
				t.Errorf("Status = %v, want unbounded", sol.Status)
			}
		})
	}
}

func TestSimplex_FreeAuxiliary(t *testing.T) {
	p := NewProblem("aux")
	x := p.AddVector("x", 1, 0, Inf)
	_ = p.AddRow("fix", x.At(0), Equal, Constant(2))
	z, err := p.AddAuxiliary("z", x.At(0).Minus(Constant(5)))
	if err != nil {
		t.Fatalf("AddAuxiliary() error = %v", err)
	}
	p.Minimize(z.At(0))

	sol := solveOrFail(t, p)
	if sol.Status != StatusOptimal {
		t.Fatalf("Status = %v, want optimal", sol.Status)
	}
	assertClose(t, "z", sol.Scalar(z), -3)
	assertClose(t, "objective", sol.Objective, -3)
}

func TestSimplex_LowerBoundShift(t *testing.T) {
	p := NewProblem("shift")
	x := p.AddVector("x", 1, 2, 7)
	p.Minimize(x.At(0))

	sol := solveOrFail(t, p)
	if sol.Status != StatusOptimal {
		t.Fatalf("Status = %v, want optimal", sol.Status)
	}
	assertClose(t, "x", sol.Scalar(x), 2)
	assertClose(t, "objective", sol.Objective, 2)
}

func TestSimplex_ContextExpired(t *testing.T) {
	p := NewProblem("expired")
	x := p.AddVector("x", 1, 0, Inf)
	p.Minimize(x.At(0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	sol, err := NewSimplex().Solve(ctx, p)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	// Either outcome is legal once the deadline has passed; the solve may
	// have finished before the select observed ctx.
	if sol.Status != StatusTimeout && sol.Status != StatusOptimal {
		t.Errorf("Status = %v, want timeout or optimal", sol.Status)
	}
}

func TestProblem_AddConstraintErrors(t *testing.T) {
	p := NewProblem("errors")
	x := p.AddVector("x", 2, 0, Inf)

	if err := p.AddConstraint("len", x.Expr(), Equal, Zeros(3)); err == nil {
		t.Error("expected length mismatch error")
	}
	if err := p.AddConstraint("sense", x.Expr(), Sense("<"), Zeros(2)); err == nil {
		t.Error("expected invalid sense error")
	}
	bad := VecExpr{LinExpr{Terms: []Term{{Col: 99, Coef: 1}}}}
	if err := p.AddConstraint("col", bad, Equal, Zeros(1)); err == nil {
		t.Error("expected unknown column error")
	}
	if p.NumRows() != 0 {
		t.Errorf("NumRows() = %d, want 0", p.NumRows())
	}
}

func TestProblem_Check(t *testing.T) {
	p := NewProblem("check")
	x := p.AddVector("x", 2, 0, 10)
	_ = p.AddConstraint("pair", x.Expr(), LessEqual, Fill(2, 3))

	if v := p.Check([]float64{1, 3}, testTol); len(v) != 0 {
		t.Errorf("Check(feasible) = %v", v)
	}
	v := p.Check([]float64{4, -1}, testTol)
	if len(v) != 2 {
		t.Fatalf("Check(infeasible) = %v, want 2 violations", v)
	}
	if v[0].Constraint != "bound:x(1)" || v[1].Constraint != "pair" {
		t.Errorf("violations = %+v", v)
	}
}

func TestWriteLP(t *testing.T) {
	p := NewProblem("lp export")
	x := p.AddVector("flow c1", 2, 0, Inf)
	z, _ := p.AddAuxiliary("cost", x.Expr().Dot([]float64{1, 2}))
	_ = p.AddConstraint("cap", x.Expr(), LessEqual, Fill(2, 4))
	p.Minimize(z.At(0))

	var sb strings.Builder
	if err := WriteLP(&sb, p); err != nil {
		t.Fatalf("WriteLP() error = %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		"Minimize\n obj: 1 cost(0)",
		"cost_0: 1 cost(0) - 1 flow_c1(0) - 2 flow_c1(1) = 0",
		"cap_1: 1 flow_c1(1) <= 4",
		"cost(0) free",
		"End\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("LP output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteLP_ConstantRows(t *testing.T) {
	p := NewProblem("constant rows")
	x := p.AddVector("x", 1, 0, Inf)
	_ = p.AddRow("pin", Constant(0), Equal, Constant(5))
	_ = p.AddRow("cap", x.At(0), LessEqual, Constant(3))

	var sb strings.Builder
	if err := WriteLP(&sb, p); err != nil {
		t.Fatalf("WriteLP() error = %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		"Minimize\n obj: 0 zero\n",
		"pin_0: 0 zero = 5\n",
		"cap_0: 1 x(0) <= 3\n",
		" zero = 0\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("LP output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteLP_NameCollisions(t *testing.T) {
	p := NewProblem("collisions")
	a := p.AddVector("a-b", 1, 0, Inf)
	b := p.AddVector("a_b", 1, 0, Inf)
	_ = p.AddRow("c-d", a.At(0), LessEqual, Constant(1))
	_ = p.AddRow("c_d", b.At(0), LessEqual, Constant(2))
	p.Minimize(a.At(0), b.At(0))

	var sb strings.Builder
	if err := WriteLP(&sb, p); err != nil {
		t.Fatalf("WriteLP() error = %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		"c_d_0: 1 a_b(0) <= 1\n",
		"c_d_0~2: 1 a_b(0)~2 <= 2\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("LP output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "zero") {
		t.Errorf("LP output declares an unneeded zero column:\n%s", out)
	}
}
