package engine

import (
	"reflect"
	"strings"
	"testing"
)

func frozen(t *testing.T, f *Factory) *Factory {
	t.Helper()
	if err := f.Freeze(); err != nil {
		t.Fatalf("Freeze() error = %v", err)
	}
	return f
}

// loopFactory feeds part of a converter chain's output back to its head.
// With buffered set the loop runs through a pool instead.
func loopFactory(buffered bool) *Factory {
	f := &Factory{
		Name:                "loop",
		Horizon:             2,
		TimeReferenceFactor: 1,
		Flowtypes:           []Flowtype{{Key: "el", Unit: testEnergy}},
		Components: []Component{
			{Key: "grid", Type: ComponentSource, Params: map[string]Value{"power_max": Scalar(10)}},
			{Key: "a", Type: ComponentConverter},
			{Key: "b", Type: ComponentConverter},
			{Key: "load", Type: ComponentSink},
		},
		Connections: []Connection{
			{Key: "grid_a", From: "grid", To: "a", Flowtype: "el", WeightDestination: 1},
			{Key: "a_b", From: "a", To: "b", Flowtype: "el", WeightOrigin: 1, WeightDestination: 1},
			{Key: "b_a", From: "b", To: "a", Flowtype: "el", WeightOrigin: 0.5, WeightDestination: 0.5},
			{Key: "b_load", From: "b", To: "load", Flowtype: "el", WeightOrigin: 0.5},
		},
	}
	if buffered {
		f.Components = append(f.Components, Component{Key: "bus", Type: ComponentPool})
		f.Connections[2] = Connection{Key: "b_bus", From: "b", To: "bus", Flowtype: "el", WeightOrigin: 0.5}
		f.Connections = append(f.Connections,
			Connection{Key: "bus_a", From: "bus", To: "a", Flowtype: "el", WeightDestination: 0.5})
	}
	return f
}

func TestNewTopology_RequiresFrozenFactory(t *testing.T) {
	_, err := NewTopology(chpFactory())
	if !IsInternal(err) {
		t.Fatalf("NewTopology() error = %v, want internal error", err)
	}
}

func TestTopology_Levels(t *testing.T) {
	topo, err := NewTopology(frozen(t, chpFactory()))
	if err != nil {
		t.Fatalf("NewTopology() error = %v", err)
	}

	want := [][]string{{"grid"}, {"chp"}, {"load", "bus"}, {"ambient"}}
	if got := topo.Levels(); !reflect.DeepEqual(got, want) {
		t.Errorf("Levels() = %v, want %v", got, want)
	}
	if got := topo.Successors("chp"); !reflect.DeepEqual(got, []string{"load", "bus", "ambient"}) {
		t.Errorf("Successors(chp) = %v", got)
	}
	if got := topo.Predecessors("ambient"); !reflect.DeepEqual(got, []string{"chp", "bus"}) {
		t.Errorf("Predecessors(ambient) = %v", got)
	}
	if len(topo.Cycles()) != 0 {
		t.Errorf("Cycles() = %v, want none", topo.Cycles())
	}
}

func TestTopology_UnbufferedCycle(t *testing.T) {
	topo, err := NewTopology(frozen(t, loopFactory(false)))
	if err != nil {
		t.Fatalf("NewTopology() error = %v", err)
	}

	cycles := topo.UnbufferedCycles()
	if len(cycles) != 1 {
		t.Fatalf("UnbufferedCycles() = %v, want one cycle", cycles)
	}
	if got := FormatCycle(cycles[0]); got != "a -> b -> a" {
		t.Errorf("cycle = %s, want a -> b -> a", got)
	}

	// Components on the loop are placed in one final level.
	levels := topo.Levels()
	if !reflect.DeepEqual(levels, [][]string{{"grid"}, {"a", "b", "load"}}) {
		t.Errorf("Levels() = %v", levels)
	}
}

func TestTopology_BufferedCycle(t *testing.T) {
	topo, err := NewTopology(frozen(t, loopFactory(true)))
	if err != nil {
		t.Fatalf("NewTopology() error = %v", err)
	}
	if len(topo.Cycles()) != 1 {
		t.Fatalf("Cycles() = %v, want one cycle", topo.Cycles())
	}
	if got := topo.UnbufferedCycles(); len(got) != 0 {
		t.Errorf("UnbufferedCycles() = %v, want none through the pool", got)
	}
}

func TestTopology_ToDOT(t *testing.T) {
	f := frozen(t, chpFactory())
	f.Components[1].Name = "CHP plant"
	topo, err := NewTopology(f)
	if err != nil {
		t.Fatalf("NewTopology() error = %v", err)
	}

	dot := topo.ToDOT()
	for _, want := range []string{
		`digraph "chp" {`,
		`subgraph cluster_level_3 {`,
		`"chp" [label="CHP plant\nconverter", fillcolor="lightblue"`,
		`"grid" -> "chp" [label="Gas", color="black", style=solid];`,
		`"chp" -> "ambient" [label="Heat", color="red", style=dashed];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() missing %s\n%s", want, dot)
		}
	}
}
