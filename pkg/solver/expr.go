package solver

import "fmt"

// Term is one coefficient on one problem column.
type Term struct {
	Col  int
	Coef float64
}

// LinExpr is an affine expression over problem columns.
type LinExpr struct {
	Terms    []Term
	Constant float64
}

// Constant returns an expression with no variable terms.
func Constant(c float64) LinExpr {
	return LinExpr{Constant: c}
}

// Plus returns e + o.
func (e LinExpr) Plus(o LinExpr) LinExpr {
	out := LinExpr{
		Terms:    make([]Term, 0, len(e.Terms)+len(o.Terms)),
		Constant: e.Constant + o.Constant,
	}
	out.Terms = append(out.Terms, e.Terms...)
	out.Terms = append(out.Terms, o.Terms...)
	return out
}

// Minus returns e - o.
func (e LinExpr) Minus(o LinExpr) LinExpr {
	return e.Plus(o.Scale(-1))
}

// Scale returns k * e.
func (e LinExpr) Scale(k float64) LinExpr {
	out := LinExpr{Terms: make([]Term, len(e.Terms)), Constant: e.Constant * k}
	for i, t := range e.Terms {
		out.Terms[i] = Term{Col: t.Col, Coef: t.Coef * k}
	}
	return out
}

// Compact merges terms on the same column and drops zero coefficients.
// Column order follows first appearance.
func (e LinExpr) Compact() LinExpr {
	index := make(map[int]int, len(e.Terms))
	out := LinExpr{Constant: e.Constant}
	for _, t := range e.Terms {
		if i, ok := index[t.Col]; ok {
			out.Terms[i].Coef += t.Coef
			continue
		}
		index[t.Col] = len(out.Terms)
		out.Terms = append(out.Terms, t)
	}
	kept := out.Terms[:0]
	for _, t := range out.Terms {
		if t.Coef != 0 {
			kept = append(kept, t)
		}
	}
	out.Terms = kept
	return out
}

// Eval evaluates e at the column assignment x.
func (e LinExpr) Eval(x []float64) float64 {
	v := e.Constant
	for _, t := range e.Terms {
		v += t.Coef * x[t.Col]
	}
	return v
}

// VecExpr is a vector of affine expressions, one per timestep.
type VecExpr []LinExpr

// Zeros returns a vector expression of n zero constants.
func Zeros(n int) VecExpr {
	return make(VecExpr, n)
}

// Values returns a constant vector expression.
func Values(values []float64) VecExpr {
	out := make(VecExpr, len(values))
	for i, v := range values {
		out[i] = Constant(v)
	}
	return out
}

// Fill returns a constant vector expression of n copies of v.
func Fill(n int, v float64) VecExpr {
	out := make(VecExpr, n)
	for i := range out {
		out[i] = Constant(v)
	}
	return out
}

// Plus returns the elementwise sum. Lengths must match.
func (v VecExpr) Plus(o VecExpr) VecExpr {
	mustSameLen(len(v), len(o))
	out := make(VecExpr, len(v))
	for i := range v {
		out[i] = v[i].Plus(o[i])
	}
	return out
}

// Minus returns the elementwise difference. Lengths must match.
func (v VecExpr) Minus(o VecExpr) VecExpr {
	mustSameLen(len(v), len(o))
	out := make(VecExpr, len(v))
	for i := range v {
		out[i] = v[i].Minus(o[i])
	}
	return out
}

// Scale multiplies every element by k.
func (v VecExpr) Scale(k float64) VecExpr {
	out := make(VecExpr, len(v))
	for i := range v {
		out[i] = v[i].Scale(k)
	}
	return out
}

// ScaleBy multiplies element t by series[t].
func (v VecExpr) ScaleBy(series []float64) VecExpr {
	mustSameLen(len(v), len(series))
	out := make(VecExpr, len(v))
	for i := range v {
		out[i] = v[i].Scale(series[i])
	}
	return out
}

// Dot returns Σ_t series[t]·v[t].
func (v VecExpr) Dot(series []float64) LinExpr {
	mustSameLen(len(v), len(series))
	var out LinExpr
	for i := range v {
		out = out.Plus(v[i].Scale(series[i]))
	}
	return out.Compact()
}

// Total returns Σ_t v[t].
func (v VecExpr) Total() LinExpr {
	var out LinExpr
	for i := range v {
		out = out.Plus(v[i])
	}
	return out.Compact()
}

// Sum adds vector expressions of length n. With no arguments it is n zeros.
func Sum(n int, exprs ...VecExpr) VecExpr {
	out := Zeros(n)
	for _, e := range exprs {
		out = out.Plus(e)
	}
	return out
}

func mustSameLen(a, b int) {
	if a != b {
		panic(fmt.Sprintf("solver: vector length mismatch %d != %d", a, b))
	}
}
