package solver

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
)

// WriteLP writes the problem in CPLEX LP format so it can be handed to an
// external MILP solver. Column names are sanitized and made unique; rows are
// named "<constraint>_<row>". Rows without terms are written against a
// column fixed at zero so an unsatisfiable constant row stays infeasible.
func WriteLP(w io.Writer, p *Problem) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	bw := bufio.NewWriter(w)
	cols := make(lpNamer)
	names := make([]string, len(p.colNames))
	for i, n := range p.colNames {
		names[i] = cols.name(n)
	}

	var obj LinExpr
	for _, e := range p.objective {
		obj = obj.Plus(e)
	}
	obj = obj.Compact()

	// Reserve the zero column only when an empty expression needs it.
	zero := ""
	needZero := len(obj.Terms) == 0
	for _, c := range p.constraints {
		for _, r := range c.Rows {
			if len(r.Terms) == 0 {
				needZero = true
			}
		}
	}
	if needZero {
		zero = cols.name("zero")
	}

	fmt.Fprintf(bw, "\\ Problem: %s\n", p.name)
	if obj.Constant != 0 {
		fmt.Fprintf(bw, "\\ Objective offset: %g\n", obj.Constant)
	}
	bw.WriteString("Minimize\n obj:")
	writeTerms(bw, obj.Terms, names, zero)
	bw.WriteString("\n")

	bw.WriteString("Subject To\n")
	rows := make(lpNamer)
	for _, c := range p.constraints {
		for i, r := range c.Rows {
			fmt.Fprintf(bw, " %s:", rows.name(fmt.Sprintf("%s_%d", c.Name, i)))
			writeTerms(bw, r.Terms, names, zero)
			fmt.Fprintf(bw, " %s %s\n", r.Sense, formatFloat(r.RHS))
		}
	}

	bw.WriteString("Bounds\n")
	for j, n := range names {
		lo, up := p.lower[j], p.upper[j]
		switch {
		case math.IsInf(lo, -1) && math.IsInf(up, 1):
			fmt.Fprintf(bw, " %s free\n", n)
		case math.IsInf(up, 1):
			if lo != 0 {
				fmt.Fprintf(bw, " %s >= %s\n", n, formatFloat(lo))
			}
		case math.IsInf(lo, -1):
			fmt.Fprintf(bw, " -inf <= %s <= %s\n", n, formatFloat(up))
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", formatFloat(lo), n, formatFloat(up))
		}
	}
	if zero != "" {
		fmt.Fprintf(bw, " %s = 0\n", zero)
	}
	bw.WriteString("End\n")
	return bw.Flush()
}

func writeTerms(w *bufio.Writer, terms []Term, names []string, zero string) {
	if len(terms) == 0 {
		w.WriteString(" 0 " + zero)
		return
	}
	for i, t := range terms {
		sign := "+"
		coef := t.Coef
		if coef < 0 {
			sign = "-"
			coef = -coef
		}
		if i == 0 && sign == "+" {
			sign = ""
		}
		if sign != "" {
			w.WriteString(" " + sign)
		}
		fmt.Fprintf(w, " %s %s", formatFloat(coef), names[t.Col])
	}
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.12g", v)
}

// lpName replaces characters the LP format does not accept in names.
func lpName(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case strings.ContainsRune("!\"#$%&()/,.;?@_`'{}|~", r):
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	name := sb.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') || name[0] == '.' {
		name = "x" + name
	}
	return name
}

// lpNamer hands out sanitized names that are unique within one namespace.
// Names that collide after sanitizing get a numeric suffix.
type lpNamer map[string]bool

func (u lpNamer) name(s string) string {
	base := lpName(s)
	name := base
	for k := 2; u[name]; k++ {
		name = fmt.Sprintf("%s~%d", base, k)
	}
	u[name] = true
	return name
}
