package model

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/telemetry"
)

// Options selects the scenario and window of one build.
type Options struct {
	Scenario engine.Scenario

	// TStart and TEnd bound the window, inclusive. A negative TEnd means
	// the last timestep of the horizon.
	TStart int
	TEnd   int

	// RunID becomes the simulation ID when set.
	RunID string
}

// FullHorizon returns options covering the whole horizon of sc.
func FullHorizon(sc engine.Scenario) Options {
	return Options{Scenario: sc, TEnd: -1}
}

// Builder compiles a frozen factory into an optimization problem. A Builder
// holds no per-run state and may be shared by concurrent builds.
type Builder struct {
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// NewBuilder creates a builder logging to logger.
func NewBuilder(logger zerolog.Logger) *Builder {
	return &Builder{logger: logger.With().Str("component", "builder").Logger()}
}

// WithMetrics attaches Prometheus metrics.
func (b *Builder) WithMetrics(m *telemetry.Metrics) *Builder {
	b.metrics = m
	return b
}

// WithTracer attaches a tracer.
func (b *Builder) WithTracer(t *telemetry.Tracer) *Builder {
	b.tracer = t
	return b
}

// Build freezes the factory if needed, registers one flow vector per
// connection and applies the rule of every component in declaration order.
func (b *Builder) Build(ctx context.Context, f *engine.Factory, opts Options) (sim *Simulation, err error) {
	start := time.Now()
	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.StartBuildSpan(ctx, f.Name, opts.Scenario.Name)
		defer span.End()
	}
	defer func() {
		if b.metrics != nil {
			rows, cols := 0, 0
			if sim != nil {
				rows, cols = sim.Problem.NumRows(), sim.Problem.NumColumns()
			}
			b.metrics.RecordBuild(len(f.Components), rows, cols, time.Since(start), err)
		}
		if err != nil && b.tracer != nil {
			telemetry.RecordError(telemetry.SpanFromContext(ctx), err)
		}
	}()

	if !f.Frozen() {
		if err := f.Freeze(); err != nil {
			return nil, err
		}
	}

	tEnd := opts.TEnd
	if tEnd < 0 {
		tEnd = f.Horizon - 1
	}
	sim, err = newSimulation(opts.RunID, f, opts.Scenario, opts.TStart, tEnd, b.logger)
	if err != nil {
		return nil, err
	}

	sim.RegisterFlows()
	for i := range f.Components {
		comp := &f.Components[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := applyRule(sim, comp); err != nil {
			return nil, err
		}
	}

	b.logger.Debug().
		Str("factory", f.Name).
		Str("scenario", opts.Scenario.Name).
		Int("columns", sim.Problem.NumColumns()).
		Int("rows", sim.Problem.NumRows()).
		Int("cost_terms", len(sim.costTerms)).
		Dur("duration", time.Since(start)).
		Msg("Model built")

	if b.tracer != nil {
		telemetry.SetAttributes(telemetry.SpanFromContext(ctx),
			attribute.Int("model.columns", sim.Problem.NumColumns()),
			attribute.Int("model.rows", sim.Problem.NumRows()),
		)
	}
	for _, w := range sim.warnings {
		if b.metrics != nil {
			b.metrics.RecordWarning(w.Code)
		}
	}
	return sim, nil
}

// applyRule dispatches on the component variant.
func applyRule(sim *Simulation, comp *engine.Component) error {
	var err error
	switch comp.Type {
	case engine.ComponentSource:
		err = sourceRule(sim, comp)
	case engine.ComponentSink:
		err = sinkRule(sim, comp)
	case engine.ComponentPool:
		err = poolRule(sim, comp)
	case engine.ComponentConverter:
		err = converterRule(sim, comp)
	case engine.ComponentStorage:
		err = storageRule(sim, comp)
	case engine.ComponentHeatpump:
		err = heatpumpRule(sim, comp)
	case engine.ComponentDeadtime:
		err = deadtimeRule(sim, comp)
	case engine.ComponentSlack:
		err = slackRule(sim, comp)
	case engine.ComponentSchedule:
		err = scheduleRule(sim, comp)
	case engine.ComponentThermalSystem:
		err = thermalRule(sim, comp)
	default:
		return engine.NewInternalError(fmt.Sprintf("no rule for component type %q", comp.Type)).
			WithResource(comp.Key)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", comp.Type, comp.Key, err)
	}
	return nil
}

// constraintName builds a registry-unique constraint name.
func constraintName(comp *engine.Component, what string) string {
	return comp.Key + "_" + what
}
