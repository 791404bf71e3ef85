package solver

import (
	"errors"
	"math"
)

var (
	errPresolveInfeasible = errors.New("presolve: inconsistent equality rows")
	errPresolveUnbounded  = errors.New("presolve: free improving column")
)

// standardForm is a problem rewritten as min cᵀy s.t. Ay = b, y ≥ 0.
// Each original column x_j maps to y[pos[j]] + shift[j], minus y[neg[j]]
// when the column has no finite lower bound.
type standardForm struct {
	c      []float64
	a      [][]float64
	b      []float64
	offset float64

	pos   []int
	neg   []int
	shift []float64
}

type sparseRow struct {
	cols      []int
	vals      []float64
	rhs       float64
	slackSign float64
}

// toStandardForm shifts finite lower bounds to zero, splits free columns,
// turns finite upper bounds into rows and adds one slack or surplus column
// per inequality row.
func toStandardForm(p *Problem) *standardForm {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.lower)
	sf := &standardForm{
		pos:   make([]int, n),
		neg:   make([]int, n),
		shift: make([]float64, n),
	}

	cols := 0
	for j := 0; j < n; j++ {
		sf.pos[j] = cols
		cols++
		sf.neg[j] = -1
		if math.IsInf(p.lower[j], -1) {
			sf.neg[j] = cols
			cols++
		} else {
			sf.shift[j] = p.lower[j]
		}
	}

	var rows []sparseRow
	addRow := func(terms []Term, sense Sense, rhs float64) {
		r := sparseRow{rhs: rhs}
		for _, t := range terms {
			r.cols = append(r.cols, sf.pos[t.Col])
			r.vals = append(r.vals, t.Coef)
			if sf.neg[t.Col] >= 0 {
				r.cols = append(r.cols, sf.neg[t.Col])
				r.vals = append(r.vals, -t.Coef)
			}
			r.rhs -= t.Coef * sf.shift[t.Col]
		}
		switch sense {
		case LessEqual:
			r.slackSign = 1
		case GreaterEqual:
			r.slackSign = -1
		}
		rows = append(rows, r)
	}

	for _, c := range p.constraints {
		for _, r := range c.Rows {
			addRow(r.Terms, r.Sense, r.RHS)
		}
	}
	for j := 0; j < n; j++ {
		if !math.IsInf(p.upper[j], 1) {
			addRow([]Term{{Col: j, Coef: 1}}, LessEqual, p.upper[j])
		}
	}

	slacks := 0
	for _, r := range rows {
		if r.slackSign != 0 {
			slacks++
		}
	}
	total := cols + slacks

	sf.a = make([][]float64, len(rows))
	sf.b = make([]float64, len(rows))
	next := cols
	for i, r := range rows {
		dense := make([]float64, total)
		for k, col := range r.cols {
			dense[col] += r.vals[k]
		}
		if r.slackSign != 0 {
			dense[next] = r.slackSign
			next++
		}
		sf.a[i] = dense
		sf.b[i] = r.rhs
	}

	sf.c = make([]float64, total)
	for _, e := range p.objective {
		sf.offset += e.Constant
		for _, t := range e.Terms {
			sf.c[sf.pos[t.Col]] += t.Coef
			if sf.neg[t.Col] >= 0 {
				sf.c[sf.neg[t.Col]] -= t.Coef
			}
			sf.offset += t.Coef * sf.shift[t.Col]
		}
	}
	return sf
}

// reduced is the presolved system handed to the simplex, with the map
// from its columns back to standard-form columns.
type reduced struct {
	c    []float64
	a    [][]float64
	b    []float64
	cols []int
}

// presolve drops empty and linearly dependent rows, flips rows so that
// b ≥ 0 and removes columns that appear in no remaining row. Removed
// columns are fixed at zero.
func presolve(sf *standardForm, tol float64) (*reduced, error) {
	total := len(sf.c)

	var keep []int
	var basis []pivotRow
	for i, row := range sf.a {
		scale := maxAbs(row)
		if scale <= tol {
			if math.Abs(sf.b[i]) > tol {
				return nil, errPresolveInfeasible
			}
			continue
		}
		pr, independent := reduceRow(basis, row, sf.b[i], scale*tol)
		if !independent {
			if math.Abs(pr.rhs) > tol*math.Max(1, math.Abs(sf.b[i])) {
				return nil, errPresolveInfeasible
			}
			continue
		}
		basis = append(basis, pr)
		keep = append(keep, i)
	}

	used := make([]bool, total)
	for _, i := range keep {
		for j, v := range sf.a[i] {
			if v != 0 {
				used[j] = true
			}
		}
	}
	var cols []int
	for j := 0; j < total; j++ {
		if used[j] {
			cols = append(cols, j)
			continue
		}
		if sf.c[j] < -tol {
			return nil, errPresolveUnbounded
		}
	}

	r := &reduced{cols: cols, c: make([]float64, len(cols))}
	for k, j := range cols {
		r.c[k] = sf.c[j]
	}
	for _, i := range keep {
		row := make([]float64, len(cols))
		for k, j := range cols {
			row[k] = sf.a[i][j]
		}
		rhs := sf.b[i]
		if rhs < 0 {
			for k := range row {
				row[k] = -row[k]
			}
			rhs = -rhs
		}
		r.a = append(r.a, row)
		r.b = append(r.b, rhs)
	}
	return r, nil
}

// pivotRow is a row in reduced echelon form with a unit pivot.
type pivotRow struct {
	vals  []float64
	rhs   float64
	pivot int
}

// reduceRow eliminates the pivots of basis from row. It reports whether
// something independent remains; if not, the returned rhs is the residual
// of the right-hand side.
func reduceRow(basis []pivotRow, row []float64, rhs, eps float64) (pivotRow, bool) {
	vals := append([]float64(nil), row...)
	for _, b := range basis {
		f := vals[b.pivot]
		if f == 0 {
			continue
		}
		for j := range vals {
			vals[j] -= f * b.vals[j]
		}
		rhs -= f * b.rhs
	}

	pivot := -1
	best := 0.0
	for j, v := range vals {
		if a := math.Abs(v); a > best {
			best = a
			pivot = j
		}
	}
	if best <= eps {
		return pivotRow{rhs: rhs}, false
	}
	p := vals[pivot]
	for j := range vals {
		vals[j] /= p
	}
	return pivotRow{vals: vals, rhs: rhs / p, pivot: pivot}, true
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

// unmap maps a standard-form assignment back to problem columns.
func (sf *standardForm) unmap(y []float64) []float64 {
	x := make([]float64, len(sf.pos))
	for j := range x {
		x[j] = y[sf.pos[j]] + sf.shift[j]
		if sf.neg[j] >= 0 {
			x[j] -= y[sf.neg[j]]
		}
	}
	return x
}
