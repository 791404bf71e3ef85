// Package engine provides the core domain types of factopt: the factory
// flow network, its parameters and scenarios, and the error and run types
// shared by the model builder, the runner and the stores.
//
// # Overview
//
// A Factory is a declarative, solver-independent description of a set of
// components exchanging typed flows over a discrete horizon:
//
//  1. Load - a Factory is decoded from YAML, JSON or CUE (package config)
//  2. Freeze - keys are indexed and the network is validated
//  3. Expand - varied parameters expand into scenarios
//  4. Build - each scenario compiles into a linear program (package model)
//  5. Solve - the program is solved and flows are extracted
//
// # Core Domain Types
//
//   - Flowtype: a physical quantity with its Unit
//   - Component: a node tagged by ComponentType with a closed parameter set
//   - Connection: a directed, typed edge carrying one flow trajectory
//   - Value: a scalar, a timeseries or a set of named variations
//   - Scenario: one variation choice per varied parameter
//   - Topology: the component graph, used for cycle checks and DOT export
//   - Run and Event: the lifecycle and timeline of one scenario solve
//
// # Error Classification
//
// Errors are EngineError values classified as configuration, alignment,
// balance, solver or internal. Freeze collects every configuration error
// with multierr so a factory can be fixed in one pass:
//
//	if err := f.Freeze(); err != nil {
//	    for _, e := range multierr.Errors(err) {
//	        fmt.Println(e)
//	    }
//	}
//
// Alignment errors are warnings: the builder records them and continues.
//
// # Immutability
//
// A frozen factory is read-only. Builds for different scenarios may share
// it across goroutines.
package engine
