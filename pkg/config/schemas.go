package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Names of the built-in schemas.
const (
	SchemaFactory    = "factory"
	SchemaFlowtype   = "flowtype"
	SchemaComponent  = "component"
	SchemaConnection = "connection"
	SchemaParam      = "param"
)

// SchemaRegistry manages CUE schemas for validation. All schemas share one
// cue.Context so they can be unified with documents compiled by CUEParser.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.registerBuiltInSchemas(); err != nil {
		panic(fmt.Sprintf("built-in schema does not compile: %v", err))
	}

	return sr
}

// Context returns the cue.Context the schemas were compiled in.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

func (sr *SchemaRegistry) registerBuiltInSchemas() error {
	defs := map[string]string{
		SchemaFactory:    "#Factory",
		SchemaFlowtype:   "#Flowtype",
		SchemaComponent:  "#Component",
		SchemaConnection: "#Connection",
		SchemaParam:      "#Param",
	}
	for name, def := range defs {
		if err := sr.RegisterSchema(name, builtinFactorySchema, def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSchema compiles schema and registers it under name. When
// definition is set, only that definition of the compiled source is
// registered.
func (sr *SchemaRegistry) RegisterSchema(name, schema, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	if definition != "" {
		val = val.LookupPath(cue.ParsePath(definition))
		if !val.Exists() {
			return fmt.Errorf("schema %s: definition %s not found", name, definition)
		}
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema. data is
// encoded through encoding/json so json tags and custom marshalers apply.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	dataVal := sr.ctx.CompileBytes(raw)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateFactory validates a factory document against #Factory.
func (sr *SchemaRegistry) ValidateFactory(ctx context.Context, fc *FactoryConfig) error {
	return sr.ValidateAgainstSchema(ctx, SchemaFactory, fc)
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinFactorySchema = `
#Magnitude: {
	factor:   number & >0
	flow:     string
	flowrate: string
}

#Unit: {
	quantity_type:     "energy" | "mass" | "other"
	conversion_factor: *1 | number & >0
	magnitudes?: [...#Magnitude]
}

#Flowtype: {
	key:    string & !=""
	name?:  string
	color?: string
	unit:   #Unit
}

#Series: [...number]

// A parameter is a scalar, a flag, a timeseries, a set of named
// variations or a Starlark script producing a scalar or a timeseries.
#Param: number | bool | #Series |
	{variations: {[string]: number | bool | #Series}} |
	{script: string & !=""}

#DemandEvent: {
	start:  int & >=1
	end:    int & >=start
	amount: number
}

#Component: {
	key:   string & !=""
	name?: string
	type:  "source" | "sink" | "pool" | "converter" | "storage" |
		"heatpump" | "deadtime" | "slack" | "schedule" | "thermalsystem"
	params?: {[string]: #Param}
	events?: [...#DemandEvent]
}

#Connection: {
	key:                 string & !=""
	from:                string & !=""
	to:                  string & !=""
	flowtype:            string & !=""
	weight_origin?:      number & >=0
	weight_destination?: number & >=0
	to_losses?:          bool
}

#Factory: {
	name:                    string & !=""
	horizon:                 int & >0
	time_reference_factor:   *1 | number & >0
	currency?:               string
	allow_primary_fallback?: bool
	flowtypes: [...#Flowtype]
	components: [...#Component]
	connections?: [...#Connection]
}
`
