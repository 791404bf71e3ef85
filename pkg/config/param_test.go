package config

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/factopt/pkg/engine"
)

const paramsYAML = `
a: 1.5
b: true
c: [1, 2, 3]
d:
  variations:
    peak: [3, 2, 1]
    flat: 2
e:
  script: "values = ramp(1, 3, horizon)"
`

const paramsJSON = `{
	"a": 1.5,
	"b": true,
	"c": [1, 2, 3],
	"d": {"variations": {"peak": [3, 2, 1], "flat": 2}},
	"e": {"script": "values = ramp(1, 3, horizon)"}
}`

func TestParam_Decode(t *testing.T) {
	decoders := map[string]func() (map[string]Param, error){
		"yaml": func() (map[string]Param, error) {
			var out map[string]Param
			err := yaml.Unmarshal([]byte(paramsYAML), &out)
			return out, err
		},
		"json": func() (map[string]Param, error) {
			var out map[string]Param
			err := json.Unmarshal([]byte(paramsJSON), &out)
			return out, err
		},
	}

	for name, decode := range decoders {
		t.Run(name, func(t *testing.T) {
			params, err := decode()
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}

			if p := params["a"]; p.Scalar == nil || *p.Scalar != 1.5 {
				t.Errorf("a = %+v, want scalar 1.5", p)
			}
			if p := params["b"]; p.Flag == nil || !*p.Flag {
				t.Errorf("b = %+v, want flag true", p)
			}
			if p := params["c"]; !reflect.DeepEqual(p.Series, []float64{1, 2, 3}) {
				t.Errorf("c = %+v, want series", p)
			}

			d := params["d"]
			if len(d.Variations) != 2 || d.Variations[0].Name != "peak" || d.Variations[1].Name != "flat" {
				t.Fatalf("d variations = %+v, want peak then flat", d.Variations)
			}
			if !reflect.DeepEqual(d.Variations[0].Param.Series, []float64{3, 2, 1}) {
				t.Errorf("peak = %+v", d.Variations[0].Param)
			}

			if params["e"].Script != "values = ramp(1, 3, horizon)" {
				t.Errorf("e script = %q", params["e"].Script)
			}
		})
	}
}

func TestParam_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"string scalar", `p: high`, "must be a number"},
		{"unknown key", `p: {profile: [1]}`, "unknown parameter key"},
		{"empty mapping", `p: {}`, "needs variations or a script"},
		{"both shapes", `p: {variations: {a: 1}, script: "value = 1"}`, "cannot declare both"},
		{"variations list", `p: {variations: [1, 2]}`, "must be a mapping"},
		{"text in series", `p: [1, two]`, "must contain numbers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]Param
			err := yaml.Unmarshal([]byte(tt.yaml), &out)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParam_MarshalJSONKeepsOrder(t *testing.T) {
	var p Param
	if err := json.Unmarshal([]byte(`{"variations":{"z":1,"a":[1,2]}}`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"variations":{"z":1,"a":[1,2]}}` {
		t.Errorf("got %s", data)
	}
}

func TestParam_ToValue(t *testing.T) {
	eval := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()
	flag := false

	tests := []struct {
		name  string
		param Param
		want  engine.Value
	}{
		{"scalar", ScalarParam(2), engine.Scalar(2)},
		{"flag", Param{Flag: &flag}, engine.Scalar(0)},
		{"series", SeriesParam(1, 2, 3), engine.Series(1, 2, 3)},
		{"series script", Param{Script: "values = ramp(1, 3, horizon)"}, engine.Series(1, 2, 3)},
		{"scalar script", Param{Script: "value = 2 * trf"}, engine.Scalar(0.5)},
		{"int series script", Param{Script: "values = repeat([1, 0], horizon)"}, engine.Series(1, 0, 1)},
		{"variations", Param{Variations: []ParamVariation{
			{Name: "low", Param: ScalarParam(1)},
			{Name: "high", Param: SeriesParam(2, 2, 3)},
		}}, engine.Variations(
			engine.Variation{Name: "low", Value: engine.Scalar(1)},
			engine.Variation{Name: "high", Value: engine.Series(2, 2, 3)},
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.param.ToValue(ctx, eval, 3, 0.25)
			if err != nil {
				t.Fatalf("ToValue() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToValue() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParam_ToValueErrors(t *testing.T) {
	eval := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name  string
		param Param
		eval  *StarlarkEvaluator
	}{
		{"empty", Param{}, eval},
		{"scripts disabled", Param{Script: "value = 1"}, nil},
		{"no output", Param{Script: "x = 1"}, eval},
		{"values not a list", Param{Script: "values = 3"}, eval},
		{"non numeric values", Param{Script: `values = [1, "a"]`}, eval},
		{"nested variations", Param{Variations: []ParamVariation{
			{Name: "outer", Param: Param{Variations: []ParamVariation{{Name: "inner", Param: ScalarParam(1)}}}},
		}}, eval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.param.ToValue(ctx, tt.eval, 3, 1); err == nil {
				t.Error("expected error")
			}
		})
	}
}
