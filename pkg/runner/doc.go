// Package runner solves the scenarios of a factory in parallel.
//
// Each scenario gets its own run record, simulation and problem. Runs are
// bounded by an errgroup limit; telemetry, the event bus and the optional
// Store are the only shared state. A scenario that fails to build or solve
// does not stop the others: its outcome carries the error and the run
// status, while Run itself only fails for invalid factories, cancellation
// and store errors.
package runner
