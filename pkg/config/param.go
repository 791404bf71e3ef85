package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/factopt/pkg/engine"
)

// ParamVariation is one named alternative of a varied parameter.
type ParamVariation struct {
	Name  string
	Param Param
}

// Param is a component parameter as written in a factory file:
//
//	cost: 0.3                       # scalar
//	determined: true                # flag
//	demand: [1, 2, 3]               # timeseries
//	cost: {variations: {low: 1, high: [2, 2, 3]}}
//	demand: {script: "values = repeat([1, 2], horizon)"}
//
// Variation order is the declaration order in the document; the first
// variation is the baseline.
type Param struct {
	Scalar     *float64
	Flag       *bool
	Series     []float64
	Variations []ParamVariation
	Script     string
}

// ScalarParam returns a scalar Param.
func ScalarParam(v float64) Param {
	return Param{Scalar: &v}
}

// SeriesParam returns a timeseries Param.
func SeriesParam(values ...float64) Param {
	return Param{Series: values}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Param) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!bool" {
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			p.Flag = &b
			return nil
		}
		var f float64
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("line %d: parameter must be a number, list or mapping: %w", node.Line, err)
		}
		p.Scalar = &f
		return nil

	case yaml.SequenceNode:
		var values []float64
		if err := node.Decode(&values); err != nil {
			return fmt.Errorf("line %d: timeseries must contain numbers: %w", node.Line, err)
		}
		p.Series = values
		return nil

	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i].Value, node.Content[i+1]
			switch key {
			case "variations":
				if val.Kind != yaml.MappingNode {
					return fmt.Errorf("line %d: variations must be a mapping", val.Line)
				}
				for j := 0; j+1 < len(val.Content); j += 2 {
					var inner Param
					if err := val.Content[j+1].Decode(&inner); err != nil {
						return err
					}
					p.Variations = append(p.Variations, ParamVariation{Name: val.Content[j].Value, Param: inner})
				}
			case "script":
				if err := val.Decode(&p.Script); err != nil {
					return err
				}
			default:
				return fmt.Errorf("line %d: unknown parameter key %q", node.Content[i].Line, key)
			}
		}
		return p.checkShape()
	}
	return fmt.Errorf("line %d: unsupported parameter shape", node.Line)
}

// UnmarshalJSON implements json.Unmarshaler. Object keys are read in
// document order so variations keep their declared order.
func (p *Param) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty parameter")
	}

	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		p.Flag = &b
		return nil
	case '[':
		var values []float64
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("timeseries must contain numbers: %w", err)
		}
		p.Series = values
		return nil
	case '{':
		return p.unmarshalObject(data)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("parameter must be a number, list or object: %w", err)
		}
		p.Scalar = &f
		return nil
	}
}

func (p *Param) unmarshalObject(data []byte) error {
	fields, err := orderedObject(data)
	if err != nil {
		return err
	}
	for _, field := range fields {
		switch field.key {
		case "variations":
			vars, err := orderedObject(field.raw)
			if err != nil {
				return fmt.Errorf("variations: %w", err)
			}
			for _, v := range vars {
				var inner Param
				if err := inner.UnmarshalJSON(v.raw); err != nil {
					return fmt.Errorf("variation %q: %w", v.key, err)
				}
				p.Variations = append(p.Variations, ParamVariation{Name: v.key, Param: inner})
			}
		case "script":
			if err := json.Unmarshal(field.raw, &p.Script); err != nil {
				return fmt.Errorf("script: %w", err)
			}
		default:
			return fmt.Errorf("unknown parameter key %q", field.key)
		}
	}
	return p.checkShape()
}

type rawField struct {
	key string
	raw json.RawMessage
}

// orderedObject splits a JSON object into its fields in document order.
func orderedObject(data []byte) ([]rawField, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected an object")
	}

	var fields []rawField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		fields = append(fields, rawField{key: key, raw: raw})
	}
	return fields, nil
}

func (p *Param) checkShape() error {
	if len(p.Variations) > 0 && p.Script != "" {
		return fmt.Errorf("parameter cannot declare both variations and a script")
	}
	if len(p.Variations) == 0 && p.Script == "" {
		return fmt.Errorf("parameter mapping needs variations or a script")
	}
	return nil
}

// MarshalJSON renders the parameter in the shape UnmarshalJSON accepts.
func (p Param) MarshalJSON() ([]byte, error) {
	switch {
	case p.Flag != nil:
		return json.Marshal(*p.Flag)
	case p.Scalar != nil:
		return json.Marshal(*p.Scalar)
	case p.Series != nil:
		return json.Marshal(p.Series)
	case p.Script != "":
		return json.Marshal(map[string]string{"script": p.Script})
	case len(p.Variations) > 0:
		var buf bytes.Buffer
		buf.WriteString(`{"variations":{`)
		for i, v := range p.Variations {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(v.Name)
			buf.Write(key)
			buf.WriteByte(':')
			inner, err := v.Param.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(inner)
		}
		buf.WriteString("}}")
		return buf.Bytes(), nil
	}
	return []byte("null"), nil
}

// ToValue converts the parameter into an engine value. Scripts are run
// through eval with horizon and trf predeclared and must assign either
// `values` (a timeseries) or `value` (a scalar).
func (p Param) ToValue(ctx context.Context, eval *StarlarkEvaluator, horizon int, trf float64) (engine.Value, error) {
	switch {
	case p.Flag != nil:
		return engine.Flag(*p.Flag), nil
	case p.Scalar != nil:
		return engine.Scalar(*p.Scalar), nil
	case p.Series != nil:
		return engine.Series(p.Series...), nil
	case p.Script != "":
		return evalScript(ctx, eval, p.Script, horizon, trf)
	case len(p.Variations) > 0:
		vars := make([]engine.Variation, 0, len(p.Variations))
		for _, v := range p.Variations {
			if len(v.Param.Variations) > 0 {
				return engine.Value{}, fmt.Errorf("variation %q: variations cannot nest", v.Name)
			}
			inner, err := v.Param.ToValue(ctx, eval, horizon, trf)
			if err != nil {
				return engine.Value{}, fmt.Errorf("variation %q: %w", v.Name, err)
			}
			vars = append(vars, engine.Variation{Name: v.Name, Value: inner})
		}
		return engine.Variations(vars...), nil
	}
	return engine.Value{}, fmt.Errorf("empty parameter")
}

func evalScript(ctx context.Context, eval *StarlarkEvaluator, script string, horizon int, trf float64) (engine.Value, error) {
	if eval == nil {
		return engine.Value{}, fmt.Errorf("scripts are disabled")
	}
	result, err := eval.Evaluate(ctx, script, map[string]interface{}{
		"horizon": horizon,
		"trf":     trf,
	})
	if err != nil {
		return engine.Value{}, err
	}

	if raw, ok := result.Output["values"]; ok {
		list, ok := raw.([]interface{})
		if !ok {
			return engine.Value{}, fmt.Errorf("script: values must be a list, got %T", raw)
		}
		series := make([]float64, len(list))
		for i, item := range list {
			f, ok := toFloat(item)
			if !ok {
				return engine.Value{}, fmt.Errorf("script: values[%d] is not a number", i)
			}
			series[i] = f
		}
		return engine.Series(series...), nil
	}
	if raw, ok := result.Output["value"]; ok {
		f, ok := toFloat(raw)
		if !ok {
			return engine.Value{}, fmt.Errorf("script: value is not a number")
		}
		return engine.Scalar(f), nil
	}
	return engine.Value{}, fmt.Errorf("script must assign values or value")
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
