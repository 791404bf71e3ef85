package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/model"
	"github.com/openfroyo/factopt/pkg/solver"
	"github.com/openfroyo/factopt/pkg/telemetry"
)

// Store persists runs, results and events. Implementations must be safe for
// concurrent use.
type Store interface {
	SaveRun(ctx context.Context, run *engine.Run) error
	SaveResult(ctx context.Context, result *model.Result) error
	SaveEvent(ctx context.Context, event *engine.Event) error
}

// Options controls one invocation of the runner.
type Options struct {
	// Parallelism bounds the number of scenarios solved at once.
	Parallelism int

	// Timeout bounds each solve. Zero means no limit.
	Timeout time.Duration

	// TStart and TEnd bound the window, inclusive. A negative TEnd means the
	// end of the horizon.
	TStart int
	TEnd   int

	// Scenarios selects scenarios by name. Empty runs every expanded
	// scenario.
	Scenarios []string
}

// DefaultOptions returns options running every scenario over the full
// horizon.
func DefaultOptions() Options {
	return Options{Parallelism: 4, TEnd: -1}
}

// Outcome is the run record and, if the build succeeded, the result of one
// scenario.
type Outcome struct {
	Run    *engine.Run
	Result *model.Result

	// Err is the build or solver error of a run that did not succeed.
	Err error
}

// Runner builds and solves the scenarios of a factory in parallel. Each
// scenario owns its simulation and problem; only telemetry and the store are
// shared.
type Runner struct {
	backend solver.Backend
	tel     *telemetry.Telemetry
	builder *model.Builder
	store   Store
	logger  zerolog.Logger
}

// New creates a runner solving with backend.
func New(backend solver.Backend, tel *telemetry.Telemetry) *Runner {
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Runner{
		backend: backend,
		tel:     tel,
		builder: model.NewBuilder(tel.Logger).WithMetrics(tel.Metrics).WithTracer(tel.Tracer),
		logger:  telemetry.ComponentLogger(tel.Logger, "runner"),
	}
}

// WithStore persists every run, result and event to store.
func (r *Runner) WithStore(store Store) *Runner {
	r.store = store
	return r
}

// Scenarios resolves scenarios by name. No names selects every expanded
// scenario.
func Scenarios(f *engine.Factory, names []string) ([]engine.Scenario, error) {
	if len(names) == 0 {
		return engine.ExpandScenarios(f), nil
	}
	out := make([]engine.Scenario, 0, len(names))
	for _, name := range names {
		sc, err := engine.FindScenario(f, name)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// Run solves the selected scenarios of f. Scenario failures are reported in
// the outcomes; the returned error is reserved for invalid factories,
// cancellation and store failures. Outcomes follow scenario order.
func (r *Runner) Run(ctx context.Context, f *engine.Factory, opts Options) ([]*Outcome, error) {
	if !f.Frozen() {
		if err := f.Freeze(); err != nil {
			r.tel.Metrics.RecordError(err)
			return nil, err
		}
	}
	scenarios, err := Scenarios(f, opts.Scenarios)
	if err != nil {
		return nil, err
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}

	r.logger.Info().
		Str("factory", f.Name).
		Int("scenarios", len(scenarios)).
		Int("parallelism", opts.Parallelism).
		Msg("Starting scenario runs")

	outcomes := make([]*Outcome, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			out, err := r.runScenario(gctx, f, sc, opts)
			outcomes[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, ctx.Err()
}

// RunOne solves a single scenario.
func (r *Runner) RunOne(ctx context.Context, f *engine.Factory, sc engine.Scenario, opts Options) (*Outcome, error) {
	if !f.Frozen() {
		if err := f.Freeze(); err != nil {
			return nil, err
		}
	}
	return r.runScenario(ctx, f, sc, opts)
}

func (r *Runner) runScenario(ctx context.Context, f *engine.Factory, sc engine.Scenario, opts Options) (*Outcome, error) {
	run := &engine.Run{
		ID:        uuid.New().String(),
		Factory:   f.Name,
		Scenario:  sc.Name,
		Status:    engine.RunStatusRunning,
		TStart:    opts.TStart,
		TEnd:      opts.TEnd,
		Backend:   r.backend.Name(),
		StartedAt: time.Now(),
	}
	if run.TEnd < 0 {
		run.TEnd = f.Horizon - 1
	}

	ctx, span := r.tel.Tracer.StartRunSpan(ctx, run.ID, sc.Name)
	defer span.End()
	run.TraceID = telemetry.TraceID(ctx)

	logger := telemetry.RunLogger(r.logger, run.ID, sc.Name)
	r.tel.Metrics.RecordRunStarted()

	if err := r.saveRun(ctx, run); err != nil {
		return nil, err
	}
	if err := r.publish(ctx, telemetry.RunStarted(run)); err != nil {
		return nil, err
	}

	out := &Outcome{Run: run}
	out.Result, out.Err = r.execute(ctx, f, sc, run, opts, logger)

	now := time.Now()
	run.CompletedAt = &now
	run.Duration = now.Sub(run.StartedAt)
	switch {
	case out.Err != nil && out.Result == nil:
		run.Status = engine.RunStatusFailed
		if errors.Is(out.Err, context.Canceled) || errors.Is(out.Err, context.DeadlineExceeded) {
			run.Status = engine.RunStatusCancelled
		}
		run.Error = out.Err.Error()
	case out.Result != nil:
		run.Status = out.Result.Status
		run.Objective = out.Result.Objective
		if out.Err != nil {
			run.Error = out.Err.Error()
		}
	}
	if out.Err != nil {
		telemetry.RecordError(span, out.Err)
		r.tel.Metrics.RecordError(out.Err)
	} else {
		telemetry.RecordSuccess(span)
	}
	telemetry.SetAttributes(span, attribute.String("run.status", string(run.Status)))
	r.tel.Metrics.RecordRunCompleted(run.Status)

	logEvent := logger.Info()
	if run.Status != engine.RunStatusSucceeded {
		logEvent = logger.Warn().Err(out.Err)
	}
	logEvent.
		Str("status", string(run.Status)).
		Float64("objective", run.Objective).
		Dur("duration", run.Duration).
		Msg("Run completed")

	if err := r.saveRun(ctx, run); err != nil {
		return out, err
	}
	if out.Result != nil && r.store != nil {
		if err := r.store.SaveResult(ctx, out.Result); err != nil {
			return out, fmt.Errorf("failed to save result: %w", err)
		}
	}
	if err := r.publish(ctx, telemetry.RunCompleted(run)); err != nil {
		return out, err
	}
	return out, nil
}

// execute builds and solves one scenario. A nil result with an error means
// the build failed; a result with an error carries a non-optimal status.
func (r *Runner) execute(ctx context.Context, f *engine.Factory, sc engine.Scenario, run *engine.Run, opts Options, logger zerolog.Logger) (*model.Result, error) {
	buildStart := time.Now()
	sim, err := r.builder.Build(ctx, f, model.Options{
		Scenario: sc,
		TStart:   opts.TStart,
		TEnd:     opts.TEnd,
		RunID:    run.ID,
	})
	if err != nil {
		return nil, err
	}
	run.Rows, run.Columns = sim.Problem.NumRows(), sim.Problem.NumColumns()

	if err := r.publish(ctx, telemetry.ModelBuilt(run.ID, run.Rows, run.Columns, time.Since(buildStart))); err != nil {
		return nil, err
	}
	for _, w := range sim.Warnings() {
		logger.Warn().Str("component", w.Component).Str("code", w.Code).Msg(w.Message)
		if err := r.publish(ctx, telemetry.BuildWarning(run.ID, w.Component, w.Code, w.Message)); err != nil {
			return nil, err
		}
	}

	solveCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	solveCtx, span := r.tel.Tracer.StartSolveSpan(solveCtx, r.backend.Name(), run.Rows, run.Columns)
	sol, err := r.backend.Solve(solveCtx, sim.Problem)
	if err != nil {
		telemetry.RecordError(span, err)
		span.End()
		return nil, engine.NewSolverError("backend failed", err).WithResource(sc.Name)
	}
	telemetry.SetAttributes(span, telemetry.AttrStatus.String(string(sol.Status)))
	span.End()

	r.tel.Metrics.RecordSolve(sol.Backend, sc.Name, string(sol.Status), sol.Objective, sol.Duration)
	if err := r.publish(ctx, telemetry.SolveCompleted(run.ID, sol.Backend, string(sol.Status), sol.Objective, sol.Duration)); err != nil {
		return nil, err
	}

	return model.Extract(sim, sol), sol.Err()
}

func (r *Runner) saveRun(ctx context.Context, run *engine.Run) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// publish sends an event to the event bus and the store. Bus failures are
// logged; store failures abort the run.
func (r *Runner) publish(ctx context.Context, event *engine.Event) error {
	if r.tel.Events != nil {
		if err := r.tel.Events.Publish(ctx, event); err != nil {
			r.logger.Debug().Err(err).Str("event", string(event.Type)).Msg("Event not published")
		}
	}
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// Summary aggregates outcomes by status.
type Summary struct {
	Total     int                      `json:"total"`
	ByStatus  map[engine.RunStatus]int `json:"by_status"`
	Best      string                   `json:"best,omitempty"`
	Objective float64                  `json:"objective,omitempty"`
}

// Summarize counts outcomes by status and picks the succeeded scenario
// with the lowest objective.
func Summarize(outcomes []*Outcome) Summary {
	s := Summary{ByStatus: make(map[engine.RunStatus]int)}
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		s.Total++
		s.ByStatus[o.Run.Status]++
		if o.Run.Status == engine.RunStatusSucceeded && (s.Best == "" || o.Run.Objective < s.Objective) {
			s.Best = o.Run.Scenario
			s.Objective = o.Run.Objective
		}
	}
	return s
}
