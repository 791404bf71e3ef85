// Package telemetry provides the observability stack of the model builder
// and the scenario runner: zerolog loggers, OpenTelemetry spans, a private
// Prometheus registry and an in-process run event bus.
//
// # Usage
//
//	tel, err := telemetry.New(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	builder := model.NewBuilder(tel.Logger).
//	    WithMetrics(tel.Metrics).
//	    WithTracer(tel.Tracer)
//
// # Logging
//
// Loggers are plain zerolog.Logger values. ComponentLogger and RunLogger
// derive children tagged with component, run_id and scenario fields.
//
// # Tracing
//
// Each scenario run opens a run.execute span with model.build and
// solver.solve children. Engine errors recorded on a span carry their
// class and code as attributes. Supported exporters are otlp (gRPC),
// stdout and none.
//
// # Metrics
//
// Metrics live in a private registry exposed by Metrics.Handler:
//
//	factopt_model_builds_total{status}
//	factopt_model_build_duration_seconds
//	factopt_model_rows, factopt_model_columns
//	factopt_solves_total{backend,status}
//	factopt_solve_duration_seconds{backend}
//	factopt_objective_value{scenario}
//	factopt_scenario_runs_total{status}
//	factopt_active_runs
//	factopt_build_warnings_total{code}
//	factopt_errors_total{class,code}
//
// A nil or disabled *Metrics ignores every call.
//
// # Events
//
// EventBus implements engine.EventPublisher. Subscribers receive events
// matching their engine.EventFilter on a bounded channel that is closed
// when the subscription context ends.
package telemetry
