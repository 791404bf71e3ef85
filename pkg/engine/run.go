package engine

import (
	"context"
	"time"
)

// Run is one build-and-solve of one scenario of a factory.
type Run struct {
	// ID is the unique identifier of the run, shared with the simulation.
	ID string `json:"id"`

	Factory  string    `json:"factory"`
	Scenario string    `json:"scenario"`
	Status   RunStatus `json:"status"`

	// TStart and TEnd bound the simulated window, inclusive.
	TStart int `json:"t_start"`
	TEnd   int `json:"t_end"`

	// Objective is set once the run succeeded.
	Objective float64 `json:"objective"`

	Backend string `json:"backend,omitempty"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`

	// Error is the failure message of a failed run.
	Error string `json:"error,omitempty"`

	// TraceID links the run to its trace, if tracing is enabled.
	TraceID string `json:"trace_id,omitempty"`
}

// Event is one entry in a run timeline.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`

	// Level is info, warning or error.
	Level string `json:"level"`
}

// EventPublisher publishes run events to subscribers.
type EventPublisher interface {
	// Publish publishes an event.
	Publish(ctx context.Context, event *Event) error

	// Subscribe delivers events matching filter until ctx is done, then
	// closes the channel.
	Subscribe(ctx context.Context, filter EventFilter) (<-chan Event, error)
}

// EventFilter selects events. Zero fields match everything.
type EventFilter struct {
	RunID string      `json:"run_id,omitempty"`
	Types []EventType `json:"types,omitempty"`

	// MinLevel drops events below info, warning or error.
	MinLevel string `json:"min_level,omitempty"`
}

var eventLevels = map[string]int{"info": 0, "warning": 1, "error": 2}

// Match reports whether the event passes the filter.
func (f EventFilter) Match(e Event) bool {
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return f.MinLevel == "" || eventLevels[e.Level] >= eventLevels[f.MinLevel]
}
