package config

import (
	"time"

	"github.com/openfroyo/factopt/pkg/engine"
)

// Format identifies the encoding of a factory document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FactoryConfig is the file representation of a factory. It mirrors
// engine.Factory with parameters left in their declarative form.
type FactoryConfig struct {
	// Name identifies the factory in runs and reports.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Horizon is the number of timesteps covered by every timeseries.
	Horizon int `json:"horizon" yaml:"horizon" validate:"required,gt=0"`

	// TimeReferenceFactor converts flowrates into quantities per timestep.
	// Defaults to 1.
	TimeReferenceFactor float64 `json:"time_reference_factor,omitempty" yaml:"time_reference_factor,omitempty" validate:"omitempty,gt=0"`

	// Currency is display only.
	Currency string `json:"currency,omitempty" yaml:"currency,omitempty"`

	// AllowPrimaryFallback accepts converters without an explicit primary flow.
	AllowPrimaryFallback bool `json:"allow_primary_fallback,omitempty" yaml:"allow_primary_fallback,omitempty"`

	Flowtypes   []FlowtypeConfig   `json:"flowtypes" yaml:"flowtypes" validate:"required,min=1,dive"`
	Components  []ComponentConfig  `json:"components" yaml:"components" validate:"required,min=1,dive"`
	Connections []ConnectionConfig `json:"connections,omitempty" yaml:"connections,omitempty" validate:"dive"`
}

// UnitConfig is the file representation of engine.Unit.
type UnitConfig struct {
	QuantityType string `json:"quantity_type" yaml:"quantity_type" validate:"required,oneof=energy mass other"`

	// ConversionFactor defaults to 1.
	ConversionFactor float64            `json:"conversion_factor,omitempty" yaml:"conversion_factor,omitempty" validate:"omitempty,gt=0"`
	Magnitudes       []engine.Magnitude `json:"magnitudes,omitempty" yaml:"magnitudes,omitempty"`
}

// FlowtypeConfig is the file representation of engine.Flowtype.
type FlowtypeConfig struct {
	Key   string     `json:"key" yaml:"key" validate:"required"`
	Name  string     `json:"name,omitempty" yaml:"name,omitempty"`
	Color string     `json:"color,omitempty" yaml:"color,omitempty"`
	Unit  UnitConfig `json:"unit" yaml:"unit"`
}

// ComponentConfig is the file representation of engine.Component.
type ComponentConfig struct {
	Key  string `json:"key" yaml:"key" validate:"required"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Type is one of the engine component variants.
	Type string `json:"type" yaml:"type" validate:"required,oneof=source sink pool converter storage heatpump deadtime slack schedule thermalsystem"`

	Params map[string]Param    `json:"params,omitempty" yaml:"params,omitempty"`
	Events []engine.DemandEvent `json:"events,omitempty" yaml:"events,omitempty"`
}

// ConnectionConfig is the file representation of engine.Connection.
type ConnectionConfig struct {
	Key               string  `json:"key" yaml:"key" validate:"required"`
	From              string  `json:"from" yaml:"from" validate:"required"`
	To                string  `json:"to" yaml:"to" validate:"required,nefield=From"`
	Flowtype          string  `json:"flowtype" yaml:"flowtype" validate:"required"`
	WeightOrigin      float64 `json:"weight_origin,omitempty" yaml:"weight_origin,omitempty" validate:"gte=0"`
	WeightDestination float64 `json:"weight_destination,omitempty" yaml:"weight_destination,omitempty" validate:"gte=0"`
	ToLosses          bool    `json:"to_losses,omitempty" yaml:"to_losses,omitempty"`
}

// ParsedConfig is the outcome of parsing one or more factory sources.
type ParsedConfig struct {
	// Factory is nil when Errors is non-empty.
	Factory *FactoryConfig `json:"factory,omitempty"`

	// SourceFiles are the files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the document path to the error (e.g., "components[2].type").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// Error implements the error interface.
func (v ValidationError) Error() string {
	loc := v.Path
	if v.File != "" {
		loc = v.File
		if v.Line > 0 {
			loc = fmtLocation(v.File, v.Line, v.Column)
		}
	}
	if loc == "" {
		return v.Message
	}
	return loc + ": " + v.Message
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
