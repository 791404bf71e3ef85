package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/factopt/pkg/engine"
)

// EventBus is an in-process engine.EventPublisher. Each subscriber has a
// bounded channel; events for a full subscriber are dropped and counted.
type EventBus struct {
	config EventsConfig

	mu      sync.RWMutex
	subs    map[string]*subscription
	dropped int
	closed  bool
}

type subscription struct {
	filter engine.EventFilter
	ch     chan engine.Event
}

var _ engine.EventPublisher = (*EventBus)(nil)

// NewEventBus creates an event bus.
func NewEventBus(cfg EventsConfig) *EventBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &EventBus{
		config: cfg,
		subs:   make(map[string]*subscription),
	}
}

// Publish stamps the event with an ID, a timestamp and a level when they
// are missing, then delivers it to every matching subscriber.
func (b *EventBus) Publish(ctx context.Context, event *engine.Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	// Fill in defaults
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = event.Type.Severity()
	}
	if !b.config.Enabled {
		return nil
	}

	// Deliver without blocking the publisher
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("event bus closed")
	}
	for _, s := range b.subs {
		if !s.filter.Match(*event) {
			continue
		}
		select {
		case s.ch <- *event:
		default:
			b.dropped++
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done.
func (b *EventBus) Subscribe(ctx context.Context, filter engine.EventFilter) (<-chan engine.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("event bus closed")
	}

	// Register subscriber
	id := uuid.New().String()
	s := &subscription{filter: filter, ch: make(chan engine.Event, b.config.BufferSize)}
	b.subs[id] = s

	// Unregister when ctx ends; Close may have done it already
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}()
	return s.ch, nil
}

// Dropped returns the number of events dropped on full subscribers.
func (b *EventBus) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close closes every subscriber channel. Later publishes fail.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}

// RunStarted builds a run_started event.
func RunStarted(run *engine.Run) *engine.Event {
	return &engine.Event{
		Type:    engine.EventTypeRunStarted,
		RunID:   run.ID,
		Message: fmt.Sprintf("Run of scenario %s started", run.Scenario),
		Details: map[string]interface{}{
			"factory": run.Factory,
			"t_start": run.TStart,
			"t_end":   run.TEnd,
		},
	}
}

// ModelBuilt builds a model_built event.
func ModelBuilt(runID string, rows, columns int, duration time.Duration) *engine.Event {
	return &engine.Event{
		Type:    engine.EventTypeModelBuilt,
		RunID:   runID,
		Message: fmt.Sprintf("Model built with %d rows and %d columns", rows, columns),
		Details: map[string]interface{}{
			"rows":     rows,
			"columns":  columns,
			"duration": duration.Seconds(),
		},
	}
}

// BuildWarning builds a warning event for one component.
func BuildWarning(runID, component, code, message string) *engine.Event {
	return &engine.Event{
		Type:      engine.EventTypeWarning,
		RunID:     runID,
		Component: component,
		Message:   message,
		Details:   map[string]interface{}{"code": code},
	}
}

// SolveCompleted builds a solve_completed event.
func SolveCompleted(runID, backend, status string, objective float64, duration time.Duration) *engine.Event {
	return &engine.Event{
		Type:    engine.EventTypeSolveCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("Solve finished with status %s", status),
		Details: map[string]interface{}{
			"backend":   backend,
			"status":    status,
			"objective": objective,
			"duration":  duration.Seconds(),
		},
	}
}

// RunCompleted builds the terminal event of a run.
func RunCompleted(run *engine.Run) *engine.Event {
	// Failed runs get their own event type so filters can select them
	typ := engine.EventTypeRunCompleted
	msg := fmt.Sprintf("Run completed with status %s", run.Status)
	if run.Status == engine.RunStatusFailed {
		typ = engine.EventTypeRunFailed
		msg = fmt.Sprintf("Run failed: %s", run.Error)
	}
	return &engine.Event{
		Type:    typ,
		RunID:   run.ID,
		Message: msg,
		Details: map[string]interface{}{
			"status":    string(run.Status),
			"objective": run.Objective,
			"duration":  run.Duration.Seconds(),
		},
	}
}
