// Package config loads factory definitions from YAML, JSON and CUE documents
// and converts them into engine factories.
//
// # Overview
//
// A factory document declares the horizon, the flowtypes with their units,
// the components with their parameters and the connections between them.
// The same structure is accepted in every format:
//
//	name: plant
//	horizon: 24
//	flowtypes:
//	  - key: el
//	    unit: {quantity_type: energy}
//	components:
//	  - key: grid
//	    type: source
//	    params:
//	      power_max: 500
//	      cost: {variations: {day: 0.3, night: 0.1}}
//	  - key: line
//	    type: sink
//	    params:
//	      demand: {script: "values = repeat([120, 80], horizon)"}
//	connections:
//	  - {key: grid_line, from: grid, to: line, flowtype: el}
//
// # Parameters
//
// A parameter is a scalar, a boolean flag, a timeseries, a set of named
// variations or a Starlark script. Scripts see horizon and trf and may use
// the helpers repeat, ramp and pulse; they assign values (a timeseries) or
// value (a scalar). Variation order follows the document and the first
// variation is the baseline.
//
// # Components
//
// Loader: decodes a document, checks it with validator struct tags and
// converts it into an unfrozen engine.Factory. Field errors are collected and
// returned together as engine configuration errors.
//
// CUEParser: parses CUE files, package directories or inline content and
// unifies the result with the built-in #Factory schema, which also supplies
// defaults.
//
// SchemaRegistry: holds the built-in CUE definitions (#Factory, #Component,
// #Connection, #Flowtype, #Param) and accepts custom schemas.
//
// StarlarkEvaluator: runs parameter scripts with a timeout.
//
// Watcher: reloads and freezes a factory file after it changes, debounced.
//
// # Usage Example
//
//	loader := config.NewLoader(logger)
//	f, err := loader.Load(ctx, "plant.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := f.Freeze(); err != nil {
//	    return err
//	}
package config
