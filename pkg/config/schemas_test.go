package config

import (
	"context"
	"reflect"
	"testing"

	"github.com/openfroyo/factopt/pkg/engine"
)

func validFactoryConfig() *FactoryConfig {
	return &FactoryConfig{
		Name:    "plant",
		Horizon: 2,
		Flowtypes: []FlowtypeConfig{
			{Key: "el", Unit: UnitConfig{QuantityType: "energy"}},
		},
		Components: []ComponentConfig{
			{Key: "grid", Type: "source", Params: map[string]Param{"power_max": ScalarParam(10)}},
			{Key: "load", Type: "sink", Params: map[string]Param{"demand": SeriesParam(1, 2)}},
		},
		Connections: []ConnectionConfig{
			{Key: "grid_load", From: "grid", To: "load", Flowtype: "el"},
		},
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	want := []string{SchemaComponent, SchemaConnection, SchemaFactory, SchemaFlowtype, SchemaParam}
	if got := sr.ListSchemas(); !reflect.DeepEqual(got, want) {
		t.Errorf("ListSchemas() = %v, want %v", got, want)
	}
	for _, name := range want {
		if _, ok := sr.GetSchema(name); !ok {
			t.Errorf("schema %s not registered", name)
		}
	}
}

func TestSchemaRegistry_ValidateFactory(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*FactoryConfig)
		wantErr bool
	}{
		{"valid", func(*FactoryConfig) {}, false},
		{"bad quantity type", func(fc *FactoryConfig) { fc.Flowtypes[0].Unit.QuantityType = "heat" }, true},
		{"bad component type", func(fc *FactoryConfig) { fc.Components[0].Type = "boiler" }, true},
		{"negative weight", func(fc *FactoryConfig) { fc.Connections[0].WeightOrigin = -1 }, true},
		{"zero horizon", func(fc *FactoryConfig) { fc.Horizon = 0 }, true},
		{"event ends before start", func(fc *FactoryConfig) {
			fc.Components[1].Type = "schedule"
			fc.Components[1].Params = nil
			fc.Components[1].Events = append(fc.Components[1].Events, engine.DemandEvent{Start: 2, End: 1, Amount: 5})
		}, true},
		{"varied parameter", func(fc *FactoryConfig) {
			fc.Components[0].Params["cost"] = Param{Variations: []ParamVariation{
				{Name: "low", Param: ScalarParam(1)},
				{Name: "high", Param: SeriesParam(2, 3)},
			}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := validFactoryConfig()
			tt.mutate(fc)
			err := sr.ValidateFactory(ctx, fc)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFactory() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_ValidateParam(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		data    interface{}
		wantErr bool
	}{
		{"scalar", 1.5, false},
		{"flag", true, false},
		{"series", []float64{1, 2}, false},
		{"variations", map[string]interface{}{"variations": map[string]interface{}{"a": 1}}, false},
		{"script", map[string]interface{}{"script": "value = 1"}, false},
		{"empty script", map[string]interface{}{"script": ""}, true},
		{"string", "high", true},
		{"unknown key", map[string]interface{}{"profile": []int{1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema(ctx, SchemaParam, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgainstSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_RegisterSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	schema := `#Site: {name: string, area: number & >0}`
	if err := sr.RegisterSchema("site", schema, "#Site"); err != nil {
		t.Fatalf("RegisterSchema() error = %v", err)
	}
	if err := sr.ValidateAgainstSchema(ctx, "site", map[string]interface{}{"name": "north", "area": 12}); err != nil {
		t.Errorf("valid site rejected: %v", err)
	}
	if err := sr.ValidateAgainstSchema(ctx, "site", map[string]interface{}{"name": "north", "area": 0}); err == nil {
		t.Error("expected error for zero area")
	}

	if err := sr.RegisterSchema("broken", `#X: {`, ""); err == nil {
		t.Error("expected compile error")
	}
	if err := sr.RegisterSchema("missing", schema, "#Nope"); err == nil {
		t.Error("expected error for missing definition")
	}
	if err := sr.ValidateAgainstSchema(ctx, "unknown", 1); err == nil {
		t.Error("expected error for unknown schema")
	}
}
