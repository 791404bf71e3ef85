package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/openfroyo/factopt/pkg/engine"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"empty event buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := RunLogger(newLogger(&buf, LoggingConfig{Level: "debug", Format: "json"}), "run-1", "baseline")
	logger.Debug().Msg("Model built")

	out := buf.String()
	for _, want := range []string{`"run_id":"run-1"`, `"scenario":"baseline"`, `"message":"Model built"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %s does not contain %s", out, want)
		}
	}
}

func TestLogger_Context(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), newLogger(&buf, LoggingConfig{Level: "info", Format: "json"}))
	logger := LoggerFromContext(ctx)
	logger.Info().Msg("hello")
	if buf.Len() == 0 {
		t.Error("logger from context wrote nothing")
	}

	// Without a logger the context yields a disabled one.
	nop := LoggerFromContext(context.Background())
	nop.Info().Msg("dropped")
	if nop.GetLevel() != zerolog.Disabled {
		t.Errorf("fallback logger level = %v, want disabled", nop.GetLevel())
	}
}

func TestMetrics_RecordBuildAndSolve(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordBuild(4, 12, 9, 10*time.Millisecond, nil)
	m.RecordBuild(4, 0, 0, time.Millisecond,
		engine.NewConfigurationError("bad", nil).WithCode(engine.ErrCodeArity))
	m.RecordSolve("gonum-simplex", "baseline", "optimal", 42, time.Second)
	m.RecordWarning(engine.ErrCodeDelayRounded)
	m.RecordRunStarted()
	m.RecordRunCompleted(engine.RunStatusSucceeded)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"successful builds", testutil.ToFloat64(m.buildsTotal.WithLabelValues("success")), 1},
		{"failed builds", testutil.ToFloat64(m.buildsTotal.WithLabelValues("error")), 1},
		{"configuration errors", testutil.ToFloat64(m.errorsByClass.WithLabelValues("configuration", engine.ErrCodeArity)), 1},
		{"solves", testutil.ToFloat64(m.solvesTotal.WithLabelValues("gonum-simplex", "optimal")), 1},
		{"objective", testutil.ToFloat64(m.objective.WithLabelValues("baseline")), 42},
		{"warnings", testutil.ToFloat64(m.warningsByCode.WithLabelValues(engine.ErrCodeDelayRounded)), 1},
		{"active runs", testutil.ToFloat64(m.activeRuns), 0},
		{"succeeded runs", testutil.ToFloat64(m.scenariosTotal.WithLabelValues("succeeded")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestMetrics_DisabledAndNil(t *testing.T) {
	disabled, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	var none *Metrics
	for _, m := range []*Metrics{disabled, none} {
		m.RecordBuild(1, 1, 1, time.Millisecond, errors.New("boom"))
		m.RecordSolve("b", "s", "optimal", 1, time.Millisecond)
		m.RecordWarning("x")
		m.RecordRunStarted()
		m.RecordRunCompleted(engine.RunStatusFailed)
		if m.Registry() != nil {
			t.Error("disabled metrics expose a registry")
		}
	}
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(EventsConfig{Enabled: true, BufferSize: 4})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx, engine.EventFilter{RunID: "run-1", MinLevel: "warning"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	events := []*engine.Event{
		{Type: engine.EventTypeRunStarted, RunID: "run-1"},
		BuildWarning("run-1", "pipe", engine.ErrCodeDelayRounded, "rounded"),
		BuildWarning("run-2", "pipe", engine.ErrCodeDelayRounded, "rounded"),
	}
	for _, e := range events {
		if err := bus.Publish(ctx, e); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	select {
	case got := <-ch:
		if got.Type != engine.EventTypeWarning || got.RunID != "run-1" || got.Component != "pipe" {
			t.Errorf("received %+v, want the run-1 warning", got)
		}
		if got.ID == "" || got.Timestamp.IsZero() || got.Level != "warning" {
			t.Errorf("event was not stamped: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case got := <-ch:
		t.Errorf("unexpected second event %+v", got)
	default:
	}
}

func TestEventBus_UnsubscribeOnCancel(t *testing.T) {
	bus := NewEventBus(EventsConfig{Enabled: true, BufferSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, engine.EventFilter{})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received an event after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestEventBus_DropsOnFullSubscriber(t *testing.T) {
	bus := NewEventBus(EventsConfig{Enabled: true, BufferSize: 1})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := bus.Subscribe(ctx, engine.EventFilter{}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := bus.Publish(ctx, &engine.Event{Type: engine.EventTypeInfo}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if got := bus.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}

func TestRunCompleted(t *testing.T) {
	run := &engine.Run{ID: "r", Status: engine.RunStatusFailed, Error: "infeasible"}
	if e := RunCompleted(run); e.Type != engine.EventTypeRunFailed {
		t.Errorf("Type = %s, want run_failed", e.Type)
	}
	run.Status = engine.RunStatusSucceeded
	if e := RunCompleted(run); e.Type != engine.EventTypeRunCompleted {
		t.Errorf("Type = %s, want run_completed", e.Type)
	}
}

func TestNopTelemetry(t *testing.T) {
	tel := Nop()
	ctx := tel.WithContext(context.Background())
	if FromContext(ctx) != tel {
		t.Error("FromContext() did not return the stored telemetry")
	}
	_, span := tel.Tracer.StartBuildSpan(ctx, "factory", "baseline")
	RecordError(span, engine.NewSolverError("infeasible", nil))
	span.End()
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
