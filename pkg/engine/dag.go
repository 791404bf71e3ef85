package engine

import (
	"fmt"
	"strings"
)

// Topology is the component graph of a frozen factory. Unlike an execution
// DAG it may contain cycles: flow can circulate through pools, storages and
// thermal systems because balances are enforced per timestep.
type Topology struct {
	factory *Factory

	// order holds component keys in declaration order.
	order []string

	// successors maps a component to its downstream components.
	successors map[string][]string

	// predecessors maps a component to its upstream components.
	predecessors map[string][]string

	levels [][]string
	cycles [][]string
}

// NewTopology builds the component graph of a frozen factory.
// It indexes components, links them along connections, then detects cycles
// and computes levels.
func NewTopology(f *Factory) (*Topology, error) {
	if !f.Frozen() {
		return nil, NewInternalError("topology requires a frozen factory")
	}

	// Initialize the graph with components in declaration order
	t := &Topology{
		factory:      f,
		order:        make([]string, 0, len(f.Components)),
		successors:   make(map[string][]string, len(f.Components)),
		predecessors: make(map[string][]string, len(f.Components)),
	}
	for i := range f.Components {
		t.order = append(t.order, f.Components[i].Key)
	}
	// Link components along connections; parallel connections collapse
	// into one edge
	for i := range f.Connections {
		conn := &f.Connections[i]
		t.successors[conn.From] = appendUnique(t.successors[conn.From], conn.To)
		t.predecessors[conn.To] = appendUnique(t.predecessors[conn.To], conn.From)
	}

	// Detect loops before levels so cyclic components can be set aside
	t.detectCycles()
	t.computeLevels()
	return t, nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// detectCycles records one cycle per DFS back edge.
func (t *Topology) detectCycles() {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string

	var visit func(key string)
	visit = func(key string) {
		visited[key] = true
		onStack[key] = true
		path = append(path, key)

		// Visit all downstream components
		for _, next := range t.successors[key] {
			if !visited[next] {
				visit(next)
			} else if onStack[next] {
				// Back edge: the cycle is the path from next to here
				for i, id := range path {
					if id == next {
						cycle := append(append([]string(nil), path[i:]...), next)
						t.cycles = append(t.cycles, cycle)
						break
					}
				}
			}
		}

		// Unwind
		path = path[:len(path)-1]
		onStack[key] = false
	}

	for _, key := range t.order {
		if !visited[key] {
			visit(key)
		}
	}
}

// computeLevels assigns levels with Kahn's algorithm. Components left over
// because they sit on a cycle form one final level.
func (t *Topology) computeLevels() {
	inDegree := make(map[string]int, len(t.order))
	for _, key := range t.order {
		inDegree[key] = len(t.predecessors[key])
	}

	// Find all root components (no upstream connections)
	var current []string
	for _, key := range t.order {
		if inDegree[key] == 0 {
			current = append(current, key)
		}
	}

	// Process components level by level
	placed := make(map[string]bool, len(t.order))
	for len(current) > 0 {
		t.levels = append(t.levels, current)
		var next []string
		for _, key := range current {
			placed[key] = true
			for _, succ := range t.successors[key] {
				inDegree[succ]--
				if inDegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		current = next
	}

	// Whatever was never released sits on or behind a cycle
	var rest []string
	for _, key := range t.order {
		if !placed[key] {
			rest = append(rest, key)
		}
	}
	if len(rest) > 0 {
		t.levels = append(t.levels, rest)
	}
}

// Levels returns components grouped by distance from the sources.
func (t *Topology) Levels() [][]string {
	return t.levels
}

// Cycles returns the cycles found in the component graph, each closed by
// repeating its first key.
func (t *Topology) Cycles() [][]string {
	return t.cycles
}

// UnbufferedCycles returns the cycles that pass through no pool, storage or
// thermal system. Such loops let converters amplify flow around the cycle.
func (t *Topology) UnbufferedCycles() [][]string {
	var out [][]string
	for _, cycle := range t.cycles {
		buffered := false
		for _, key := range cycle {
			if c, ok := t.factory.Component(key); ok && c.Type.IsStateful() {
				buffered = true
				break
			}
		}
		if !buffered {
			out = append(out, cycle)
		}
	}
	return out
}

// Successors returns the downstream components of key.
func (t *Topology) Successors(key string) []string {
	return t.successors[key]
}

// Predecessors returns the upstream components of key.
func (t *Topology) Predecessors(key string) []string {
	return t.predecessors[key]
}

// ToDOT generates a DOT representation of the factory for Graphviz.
// Components are clustered by level and colored by type; edges carry the
// flowtype color and name.
func (t *Topology) ToDOT() string {
	var sb strings.Builder

	// Graph header
	sb.WriteString(fmt.Sprintf("digraph %q {\n", t.factory.Name))
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	// One cluster per level
	for level, keys := range t.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, key := range keys {
			c, _ := t.factory.Component(key)
			label := c.Key
			if c.Name != "" {
				label = c.Name
			}
			sb.WriteString(fmt.Sprintf("    %q [label=\"%s\\n%s\", fillcolor=%q, style=\"filled,rounded\"];\n",
				key, label, c.Type, componentColor(c.Type)))
		}
		sb.WriteString("  }\n\n")
	}

	// Edges take the flowtype color; loss connections are dashed
	for i := range t.factory.Connections {
		conn := &t.factory.Connections[i]
		color := "black"
		label := conn.Flowtype
		if ft, ok := t.factory.Flowtype(conn.Flowtype); ok {
			if ft.Color != "" {
				color = ft.Color
			}
			if ft.Name != "" {
				label = ft.Name
			}
		}
		style := "solid"
		if conn.ToLosses {
			style = "dashed"
		}
		sb.WriteString(fmt.Sprintf("  %q -> %q [label=%q, color=%q, style=%s];\n",
			conn.From, conn.To, label, color, style))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// FormatCycle formats a cycle path for messages.
func FormatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

func componentColor(ct ComponentType) string {
	switch ct {
	case ComponentSource:
		return "lightgreen"
	case ComponentSink, ComponentSchedule:
		return "lightcoral"
	case ComponentConverter, ComponentHeatpump:
		return "lightblue"
	case ComponentStorage, ComponentThermalSystem:
		return "khaki"
	case ComponentSlack:
		return "lightgray"
	default:
		return "white"
	}
}
