package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/openfroyo/factopt/pkg/engine"
)

const plantYAML = `
name: plant
horizon: 3
currency: EUR
flowtypes:
  - key: el
    name: Electricity
    color: gold
    unit:
      quantity_type: energy
      magnitudes:
        - {factor: 1, flow: kWh, flowrate: kW}
        - {factor: 1000, flow: MWh, flowrate: MW}
components:
  - key: grid
    type: source
    params:
      power_max: 10
      determined: false
      cost:
        variations:
          peak: [3, 2, 1]
          flat: 2
  - key: load
    name: Assembly line
    type: sink
    params:
      demand:
        script: "values = ramp(1, 3, horizon)"
connections:
  - key: grid_load
    from: grid
    to: load
    flowtype: el
`

const plantJSON = `{
	"name": "plant",
	"horizon": 3,
	"currency": "EUR",
	"flowtypes": [{"key": "el", "name": "Electricity", "color": "gold",
		"unit": {"quantity_type": "energy", "magnitudes": [
			{"factor": 1, "flow": "kWh", "flowrate": "kW"},
			{"factor": 1000, "flow": "MWh", "flowrate": "MW"}]}}],
	"components": [
		{"key": "grid", "type": "source", "params": {
			"power_max": 10, "determined": false,
			"cost": {"variations": {"peak": [3, 2, 1], "flat": 2}}}},
		{"key": "load", "name": "Assembly line", "type": "sink", "params": {
			"demand": {"script": "values = ramp(1, 3, horizon)"}}}
	],
	"connections": [{"key": "grid_load", "from": "grid", "to": "load", "flowtype": "el"}]
}`

const plantCUE = `
name:     "plant"
horizon:  3
currency: "EUR"
flowtypes: [{
	key:   "el"
	name:  "Electricity"
	color: "gold"
	unit: {
		quantity_type: "energy"
		magnitudes: [
			{factor: 1, flow: "kWh", flowrate: "kW"},
			{factor: 1000, flow: "MWh", flowrate: "MW"},
		]
	}
}]
components: [
	{key: "grid", type: "source", params: {
		power_max:  10
		determined: false
		cost: variations: {peak: [3, 2, 1], flat: 2}
	}},
	{key: "load", name: "Assembly line", type: "sink", params: {
		demand: script: "values = ramp(1, 3, horizon)"
	}},
]
connections: [{key: "grid_load", from: "grid", to: "load", flowtype: "el"}]
`

func newTestLoader() *Loader {
	return NewLoader(zerolog.Nop())
}

func checkPlant(t *testing.T, f *engine.Factory) {
	t.Helper()

	if f.Name != "plant" || f.Horizon != 3 || f.TimeReferenceFactor != 1 || f.Currency != "EUR" {
		t.Errorf("header = %s/%d/%g/%s", f.Name, f.Horizon, f.TimeReferenceFactor, f.Currency)
	}
	if len(f.Flowtypes) != 1 || f.Flowtypes[0].Unit.ConversionFactor != 1 || len(f.Flowtypes[0].Unit.Magnitudes) != 2 {
		t.Errorf("flowtypes = %+v", f.Flowtypes)
	}
	if len(f.Components) != 2 || f.Components[1].Name != "Assembly line" {
		t.Fatalf("components = %+v", f.Components)
	}

	cost := f.Components[0].Params["cost"]
	if !cost.IsVaried() || len(cost.Variations) != 2 {
		t.Fatalf("cost = %+v, want two variations", cost)
	}
	if cost.Variations[0].Name != "peak" || !reflect.DeepEqual(cost.Variations[0].Value, engine.Series(3, 2, 1)) {
		t.Errorf("first variation = %+v, want peak [3 2 1]", cost.Variations[0])
	}
	if cost.Variations[1].Name != "flat" || cost.Variations[1].Value.Scalar != 2 {
		t.Errorf("second variation = %+v, want flat 2", cost.Variations[1])
	}
	if f.Components[0].Params["determined"].Bool() {
		t.Error("determined flag should be false")
	}
	if demand := f.Components[1].Params["demand"]; !reflect.DeepEqual(demand.Series, []float64{1, 2, 3}) {
		t.Errorf("demand = %+v, want scripted [1 2 3]", demand)
	}

	if err := f.Freeze(); err != nil {
		t.Fatalf("loaded factory does not freeze: %v", err)
	}
}

func TestLoader_Formats(t *testing.T) {
	docs := map[string]string{
		"plant.yaml": plantYAML,
		"plant.json": plantJSON,
		"plant.cue":  plantCUE,
	}

	dir := t.TempDir()
	for name, content := range docs {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("failed to write %s: %v", name, err)
			}

			f, err := newTestLoader().Load(context.Background(), path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			checkPlant(t, f)
		})
	}
}

func TestLoader_LoadBytes(t *testing.T) {
	ctx := context.Background()
	for format, content := range map[Format]string{FormatYAML: plantYAML, FormatJSON: plantJSON, FormatCUE: plantCUE} {
		f, err := newTestLoader().LoadBytes(ctx, []byte(content), format)
		if err != nil {
			t.Fatalf("LoadBytes(%s) error = %v", format, err)
		}
		checkPlant(t, f)
	}
}

func TestFormatOf(t *testing.T) {
	tests := map[string]Format{
		"a.yaml": FormatYAML,
		"b.YML":  FormatYAML,
		"c.json": FormatJSON,
		"d.cue":  FormatCUE,
	}
	for path, want := range tests {
		got, err := FormatOf(path)
		if err != nil || got != want {
			t.Errorf("FormatOf(%s) = %s, %v; want %s", path, got, err, want)
		}
	}
	if _, err := FormatOf("factory.toml"); err == nil {
		t.Error("expected error for .toml")
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(string) string
		code   string
		want   []string
	}{
		{
			name:   "unknown field",
			mutate: func(s string) string { return strings.Replace(s, "currency: EUR", "currencies: EUR", 1) },
			want:   []string{"currencies"},
		},
		{
			name:   "zero horizon",
			mutate: func(s string) string { return strings.Replace(s, "horizon: 3", "horizon: 0", 1) },
			code:   engine.ErrCodeValidation,
			want:   []string{"horizon: is required"},
		},
		{
			name:   "unknown component type",
			mutate: func(s string) string { return strings.Replace(s, "type: sink", "type: boiler", 1) },
			code:   engine.ErrCodeValidation,
			want:   []string{"components[1].type: must be one of"},
		},
		{
			name:   "self loop",
			mutate: func(s string) string { return strings.Replace(s, "to: load", "to: grid", 1) },
			code:   engine.ErrCodeValidation,
			want:   []string{"connections[0].to: must differ from from"},
		},
		{
			name:   "bad quantity type",
			mutate: func(s string) string { return strings.Replace(s, "quantity_type: energy", "quantity_type: heat", 1) },
			code:   engine.ErrCodeValidation,
			want:   []string{"flowtypes[0].unit.quantity_type"},
		},
		{
			name: "failing script",
			mutate: func(s string) string {
				return strings.Replace(s, `values = ramp(1, 3, horizon)`, `values = undefined`, 1)
			},
			code: engine.ErrCodeParameter,
			want: []string{"parameter demand"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader().LoadBytes(context.Background(), []byte(tt.mutate(plantYAML)), FormatYAML)
			if err == nil {
				t.Fatal("expected error")
			}
			if !engine.IsConfiguration(err) {
				t.Errorf("error %v is not a configuration error", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
			if tt.code == "" {
				return
			}
			for _, e := range multierr.Errors(err) {
				var ee *engine.EngineError
				if !errors.As(e, &ee) || ee.Code != tt.code {
					t.Errorf("error %v: want code %s", e, tt.code)
				}
			}
		})
	}
}

func TestLoader_CollectsAllFieldErrors(t *testing.T) {
	doc := strings.Replace(plantYAML, "horizon: 3", "horizon: -1", 1)
	doc = strings.Replace(doc, "type: sink", "type: boiler", 1)

	_, err := newTestLoader().LoadBytes(context.Background(), []byte(doc), FormatYAML)
	if got := len(multierr.Errors(err)); got != 2 {
		t.Errorf("got %d errors, want 2: %v", got, err)
	}
}

func TestLoader_ScriptsDisabled(t *testing.T) {
	l := NewLoader(zerolog.Nop(), WithScriptTimeout(0))
	_, err := l.LoadBytes(context.Background(), []byte(plantYAML), FormatYAML)
	if err == nil || !strings.Contains(err.Error(), "scripts are disabled") {
		t.Errorf("error = %v, want scripts disabled", err)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := newTestLoader().Load(context.Background(), filepath.Join(t.TempDir(), "none.yaml"))
	if !engine.IsConfiguration(err) {
		t.Errorf("error = %v, want configuration error", err)
	}
}
