package runner

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/model"
	"github.com/openfroyo/factopt/pkg/solver"
	"github.com/openfroyo/factopt/pkg/telemetry"
)

type memoryStore struct {
	mu      sync.Mutex
	runs    map[string]engine.Run
	results map[string]*model.Result
	events  []engine.Event
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		runs:    make(map[string]engine.Run),
		results: make(map[string]*model.Result),
	}
}

func (s *memoryStore) SaveRun(_ context.Context, run *engine.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *memoryStore) SaveResult(_ context.Context, res *model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.RunID] = res
	return nil
}

func (s *memoryStore) SaveEvent(_ context.Context, e *engine.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

func (s *memoryStore) eventTypes(runID string) []engine.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []engine.EventType
	for _, e := range s.events {
		if e.RunID == runID {
			out = append(out, e.Type)
		}
	}
	return out
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }

func (failingBackend) Solve(context.Context, *solver.Problem) (*solver.Solution, error) {
	return nil, errors.New("license expired")
}

// gridFactory supplies a fixed demand from a priced grid connection. The
// grid price and the demand are varied.
func gridFactory() *engine.Factory {
	energy := engine.Unit{QuantityType: engine.QuantityEnergy, ConversionFactor: 1}
	return &engine.Factory{
		Name:                "grid",
		Horizon:             3,
		TimeReferenceFactor: 1,
		Flowtypes:           []engine.Flowtype{{Key: "el", Unit: energy}},
		Components: []engine.Component{
			{Key: "grid", Type: engine.ComponentSource, Params: map[string]engine.Value{
				"power_max": engine.Scalar(10),
				"cost": engine.Variations(
					engine.Variation{Name: "low", Value: engine.Scalar(1)},
					engine.Variation{Name: "high", Value: engine.Scalar(2)},
				),
			}},
			{Key: "load", Type: engine.ComponentSink, Params: map[string]engine.Value{
				"demand": engine.Variations(
					engine.Variation{Name: "normal", Value: engine.Series(5, 5, 5)},
					engine.Variation{Name: "huge", Value: engine.Series(20, 20, 20)},
				),
			}},
		},
		Connections: []engine.Connection{
			{Key: "grid_load", From: "grid", To: "load", Flowtype: "el"},
		},
	}
}

func TestRunner_Scenarios(t *testing.T) {
	store := newMemoryStore()
	r := New(solver.NewSimplex(), telemetry.Nop()).WithStore(store)

	opts := DefaultOptions()
	opts.Parallelism = 2
	outcomes, err := r.Run(context.Background(), gridFactory(), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("Run() returned %d outcomes, want 3", len(outcomes))
	}

	tests := []struct {
		scenario  string
		status    engine.RunStatus
		objective float64
	}{
		{"baseline", engine.RunStatusSucceeded, 15},
		{"grid.cost=high", engine.RunStatusSucceeded, 30},
		{"load.demand=huge", engine.RunStatusInfeasible, 0},
	}
	for i, tt := range tests {
		out := outcomes[i]
		if out.Run.Scenario != tt.scenario {
			t.Errorf("outcome[%d] scenario = %s, want %s", i, out.Run.Scenario, tt.scenario)
			continue
		}
		if out.Run.Status != tt.status {
			t.Errorf("%s: status = %s, want %s (err %v)", tt.scenario, out.Run.Status, tt.status, out.Err)
		}
		if math.Abs(out.Run.Objective-tt.objective) > 1e-6 {
			t.Errorf("%s: objective = %v, want %v", tt.scenario, out.Run.Objective, tt.objective)
		}
		if out.Result == nil || out.Result.RunID != out.Run.ID {
			t.Errorf("%s: result not linked to run", tt.scenario)
		}
		if out.Run.CompletedAt == nil || out.Run.Rows == 0 {
			t.Errorf("%s: run record incomplete: %+v", tt.scenario, out.Run)
		}
		stored, ok := store.runs[out.Run.ID]
		if !ok || stored.Status != tt.status {
			t.Errorf("%s: stored run = %+v", tt.scenario, stored)
		}
	}

	if !engine.IsSolver(outcomes[2].Err) {
		t.Errorf("infeasible outcome error = %v, want solver error", outcomes[2].Err)
	}

	want := []engine.EventType{
		engine.EventTypeRunStarted,
		engine.EventTypeModelBuilt,
		engine.EventTypeSolveCompleted,
		engine.EventTypeRunCompleted,
	}
	got := store.eventTypes(outcomes[0].Run.ID)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	s := Summarize(outcomes)
	if s.Total != 3 || s.ByStatus[engine.RunStatusSucceeded] != 2 || s.Best != "baseline" {
		t.Errorf("Summarize() = %+v", s)
	}
}

func TestRunner_SelectedScenario(t *testing.T) {
	r := New(solver.NewSimplex(), nil)

	opts := DefaultOptions()
	opts.Scenarios = []string{"grid.cost=high"}
	outcomes, err := r.Run(context.Background(), gridFactory(), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Run.Scenario != "grid.cost=high" {
		t.Fatalf("Run() outcomes = %+v", outcomes)
	}

	opts.Scenarios = []string{"grid.cost=free"}
	if _, err := r.Run(context.Background(), gridFactory(), opts); !engine.IsConfiguration(err) {
		t.Errorf("Run(unknown scenario) error = %v, want configuration error", err)
	}
}

func TestRunner_Window(t *testing.T) {
	r := New(solver.NewSimplex(), nil)

	opts := Options{Parallelism: 1, TStart: 1, TEnd: 2, Scenarios: []string{"baseline"}}
	outcomes, err := r.Run(context.Background(), gridFactory(), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	res := outcomes[0].Result
	if res == nil || math.Abs(res.Objective-10) > 1e-6 {
		t.Fatalf("windowed result = %+v, want objective 10", res)
	}
	flow, _ := res.Flow("grid_load")
	if len(flow.Values) != 2 {
		t.Errorf("flow has %d values, want 2", len(flow.Values))
	}
}

func TestRunner_InvalidFactory(t *testing.T) {
	f := gridFactory()
	f.Connections[0].To = "nowhere"

	_, err := New(solver.NewSimplex(), nil).Run(context.Background(), f, DefaultOptions())
	if !engine.IsConfiguration(err) {
		t.Fatalf("Run() error = %v, want configuration error", err)
	}
}

func TestRunner_BackendFailure(t *testing.T) {
	f := gridFactory()
	if err := f.Freeze(); err != nil {
		t.Fatalf("Freeze() error = %v", err)
	}

	out, err := New(failingBackend{}, nil).RunOne(context.Background(), f, engine.Scenario{Name: "baseline"}, DefaultOptions())
	if err != nil {
		t.Fatalf("RunOne() error = %v", err)
	}
	if out.Run.Status != engine.RunStatusFailed || out.Result != nil {
		t.Errorf("run = %+v, want failed without result", out.Run)
	}
	if !engine.IsSolver(out.Err) {
		t.Errorf("Err = %v, want solver error", out.Err)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := New(solver.NewSimplex(), nil).Run(ctx, gridFactory(), DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	for _, out := range outcomes {
		if out != nil && out.Run.Status != engine.RunStatusCancelled {
			t.Errorf("%s: status = %s, want cancelled", out.Run.Scenario, out.Run.Status)
		}
	}
}
