package engine

import (
	"encoding/json"
	"testing"
)

func variedFactory() *Factory {
	f := chpFactory()
	f.Components[0].Params["cost"] = Variations(
		Variation{Name: "low", Value: Scalar(1)},
		Variation{Name: "high", Value: Scalar(3)},
		Variation{Name: "peak", Value: Series(1, 5, 1)},
	)
	f.Components[3].Params["demand"] = Variations(
		Variation{Name: "normal", Value: Series(1, 2, 3)},
		Variation{Name: "flat", Value: Scalar(2)},
	)
	return f
}

func TestExpandScenarios(t *testing.T) {
	f := frozen(t, variedFactory())

	refs := VariedParams(f)
	if len(refs) != 2 || refs[0].String() != "grid.cost" || refs[1].String() != "load.demand" {
		t.Fatalf("VariedParams() = %v", refs)
	}

	scenarios := ExpandScenarios(f)
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	want := []string{"baseline", "grid.cost=high", "grid.cost=peak", "load.demand=flat"}
	if len(names) != len(want) {
		t.Fatalf("ExpandScenarios() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("scenario[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	peak := scenarios[2]
	if got := peak.Variation(ParamRef{"grid", "cost"}); got != "peak" {
		t.Errorf("Variation(grid.cost) = %q, want peak", got)
	}
	if got := peak.Variation(ParamRef{"load", "demand"}); got != "" {
		t.Errorf("Variation(load.demand) = %q, want default", got)
	}
}

func TestFindScenario(t *testing.T) {
	f := frozen(t, variedFactory())

	s, err := FindScenario(f, "load.demand=flat")
	if err != nil {
		t.Fatalf("FindScenario() error = %v", err)
	}
	if s.Variation(ParamRef{"load", "demand"}) != "flat" {
		t.Errorf("scenario selections = %v", s.Selections)
	}

	if _, err := FindScenario(f, "grid.cost=free"); !IsConfiguration(err) {
		t.Errorf("FindScenario(unknown) error = %v, want configuration error", err)
	}
}

func TestFreeze_RejectsBadVariations(t *testing.T) {
	tests := []struct {
		name  string
		value Value
	}{
		{"empty", Variations()},
		{"unnamed", Variations(Variation{Value: Scalar(1)})},
		{"duplicate", Variations(Variation{Name: "a", Value: Scalar(1)}, Variation{Name: "a", Value: Scalar(2)})},
		{"nested", Variations(Variation{Name: "a", Value: Variations(Variation{Name: "b", Value: Scalar(1)})})},
		{"short series", Variations(Variation{Name: "a", Value: Series(1)})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := chpFactory()
			f.Components[0].Params["cost"] = tt.value
			if err := f.Freeze(); !hasCode(err, ErrCodeParameter) {
				t.Errorf("Freeze() error = %v, want %s", err, ErrCodeParameter)
			}
		})
	}
}

func TestValue_ResolveAndSlice(t *testing.T) {
	v := Variations(
		Variation{Name: "flat", Value: Scalar(2)},
		Variation{Name: "ramp", Value: Series(1, 2, 3, 4)},
	)

	def, err := v.Resolve("")
	if err != nil {
		t.Fatalf("Resolve(default) error = %v", err)
	}
	if got := def.Slice(1, 3); len(got) != 3 || got[0] != 2 || got[2] != 2 {
		t.Errorf("scalar Slice(1, 3) = %v, want [2 2 2]", got)
	}

	ramp, err := v.Resolve("ramp")
	if err != nil {
		t.Fatalf("Resolve(ramp) error = %v", err)
	}
	if got := ramp.Slice(1, 2); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("series Slice(1, 2) = %v, want [2 3]", got)
	}

	if _, err := v.Resolve("steep"); err == nil {
		t.Error("Resolve(unknown) succeeded, want error")
	}
	if s, _ := Scalar(7).Resolve("anything"); s.At(0) != 7 {
		t.Error("non-varied value did not resolve to itself")
	}
	if !Flag(true).Bool() || Flag(false).Bool() {
		t.Error("Flag() did not round trip through Bool()")
	}
}

func TestValue_MarshalJSON(t *testing.T) {
	v := Variations(
		Variation{Name: "a", Value: Scalar(1.5)},
		Variation{Name: "b", Value: Series(1, 2)},
	)
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got, want := string(data), `{"variations":{"a":1.5,"b":[1,2]}}`; got != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestUnit_Format(t *testing.T) {
	u := Unit{
		QuantityType:     QuantityEnergy,
		ConversionFactor: 1,
		Magnitudes: []Magnitude{
			{Factor: 1, FlowLabel: "kWh", FlowrateLabel: "kW"},
			{Factor: 1000, FlowLabel: "MWh", FlowrateLabel: "MW"},
		},
	}
	tests := []struct {
		v    float64
		rate bool
		want string
	}{
		{12, false, "12 kWh"},
		{2500, false, "2.5 MWh"},
		{-2500, true, "-2.5 MW"},
		{0.5, true, "0.5 kW"},
	}
	for _, tt := range tests {
		if got := u.Format(tt.v, tt.rate); got != tt.want {
			t.Errorf("Format(%v, %v) = %q, want %q", tt.v, tt.rate, got, tt.want)
		}
	}

	u.Magnitudes[1].Factor = 1
	if err := u.Validate(); err == nil {
		t.Error("Validate() accepted non-ascending magnitudes")
	}
}

func TestEventFilter_Match(t *testing.T) {
	warning := Event{RunID: "r1", Type: EventTypeWarning, Level: EventTypeWarning.Severity()}
	info := Event{RunID: "r1", Type: EventTypeModelBuilt, Level: EventTypeModelBuilt.Severity()}

	tests := []struct {
		name   string
		filter EventFilter
		event  Event
		want   bool
	}{
		{"empty filter", EventFilter{}, info, true},
		{"other run", EventFilter{RunID: "r2"}, info, false},
		{"type listed", EventFilter{Types: []EventType{EventTypeModelBuilt}}, info, true},
		{"type not listed", EventFilter{Types: []EventType{EventTypeRunStarted}}, info, false},
		{"below min level", EventFilter{MinLevel: "warning"}, info, false},
		{"at min level", EventFilter{MinLevel: "warning"}, warning, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(tt.event); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunStatus_JSON(t *testing.T) {
	var s RunStatus
	if err := json.Unmarshal([]byte(`"infeasible"`), &s); err != nil || s != RunStatusInfeasible {
		t.Errorf("Unmarshal() = %v, %v", s, err)
	}
	if err := json.Unmarshal([]byte(`"exploded"`), &s); err == nil {
		t.Error("Unmarshal() accepted an unknown status")
	}
	if !RunStatusCancelled.IsTerminal() || RunStatusRunning.IsTerminal() {
		t.Error("IsTerminal() misclassified a status")
	}
}
