package config

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name:   "simple arithmetic",
			script: `value = 2 + 2`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["value"] != int64(4) {
					t.Errorf("expected value=4, got %v", sr.Output["value"])
				}
			},
		},
		{
			name:   "use horizon input",
			script: `values = [t * 0.5 for t in range(horizon)]`,
			input:  map[string]interface{}{"horizon": 3},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				want := []interface{}{0.0, 0.5, 1.0}
				if !reflect.DeepEqual(sr.Output["values"], want) {
					t.Errorf("expected %v, got %v", want, sr.Output["values"])
				}
			},
		},
		{
			name: "helper functions are not outputs",
			script: `
def profile(n):
    return [1.0 if t % 2 == 0 else 2.0 for t in range(n)]

values = profile(4)
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if _, ok := sr.Output["profile"]; ok {
					t.Error("function leaked into output")
				}
				if len(sr.Output["values"].([]interface{})) != 4 {
					t.Errorf("expected 4 values, got %v", sr.Output["values"])
				}
			},
		},
		{
			name:   "private globals are skipped",
			script: "_base = 3\nvalue = _base * 2",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if _, ok := sr.Output["_base"]; ok {
					t.Error("private global leaked into output")
				}
			},
		},
		{
			name:    "syntax error",
			script:  `invalid syntax here`,
			wantErr: true,
		},
		{
			name:    "runtime error",
			script:  `value = undefined_variable`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				if result == nil || result.Error == "" {
					t.Error("expected error in result")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Helpers(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name   string
		script string
		want   []interface{}
	}{
		{"repeat", `values = repeat([1, 2], 5)`, []interface{}{int64(1), int64(2), int64(1), int64(2), int64(1)}},
		{"ramp", `values = ramp(0, 10, 3)`, []interface{}{0.0, 5.0, 10.0}},
		{"ramp single", `values = ramp(4, 10, 1)`, []interface{}{4.0}},
		{"pulse", `values = pulse(5, 1, 3, 2.5)`, []interface{}{int64(0), 2.5, 2.5, int64(0), int64(0)}},
		{"pulse off", `values = pulse(3, 0, 1, 1, off=4)`, []interface{}{int64(1), int64(4), int64(4)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result.Output["values"], tt.want) {
				t.Errorf("expected %v, got %v", tt.want, result.Output["values"])
			}
		})
	}

	for _, script := range []string{`values = repeat([], 3)`, `values = ramp(0, 1, 0)`, `values = pulse(-1, 0, 1, 1)`} {
		if _, err := evaluator.Evaluate(ctx, script, nil); err == nil {
			t.Errorf("expected error for %q", script)
		}
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(100 * time.Millisecond)
	ctx := context.Background()

	script := `
def slow_function():
    result = 0
    for i in range(100000000):
        result = result + i
    return result

value = slow_function()
`

	start := time.Now()
	result, err := evaluator.Evaluate(ctx, script, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if result == nil || result.Error == "" {
		t.Error("expected timeout error in result")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout took %v", time.Since(start))
	}
}

func TestStarlarkEvaluator_TypeConversion(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name   string
		input  map[string]interface{}
		script string
		want   interface{}
	}{
		{"bool", map[string]interface{}{"enabled": true}, `result = enabled and True`, true},
		{"int", map[string]interface{}{"count": 42}, `result = count + 8`, int64(50)},
		{"float", map[string]interface{}{"trf": 0.25}, `result = trf * 2`, 0.5},
		{"string", map[string]interface{}{"name": "chp"}, `result = name + "-1"`, "chp-1"},
		{"list", map[string]interface{}{"items": []interface{}{1.0, 2.0}}, `result = len(items)`, int64(2)},
		{"dict", map[string]interface{}{"cfg": map[string]interface{}{"peak": 3}}, `result = cfg["peak"] * 2`, int64(6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result.Output["result"], tt.want) {
				t.Errorf("expected %v, got %v", tt.want, result.Output["result"])
			}
		})
	}
}

func TestStarlarkEvaluator_PrintSuppressed(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)

	result, err := evaluator.Evaluate(context.Background(), "print(\"hidden\")\nresult = \"done\"", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output["result"] != "done" {
		t.Errorf("expected result='done', got %v", result.Output["result"])
	}
}
