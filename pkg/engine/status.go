package engine

import (
	"encoding/json"
	"fmt"
)

// ComponentType is the variant tag of a Component.
type ComponentType string

const (
	// ComponentSource supplies flow into the factory.
	ComponentSource ComponentType = "source"

	// ComponentSink consumes flow, optionally against a fixed demand.
	ComponentSink ComponentType = "sink"

	// ComponentPool is a lossless junction.
	ComponentPool ComponentType = "pool"

	// ComponentConverter converts flows at fixed ratios to its primary flow.
	ComponentConverter ComponentType = "converter"

	// ComponentStorage buffers flow across timesteps.
	ComponentStorage ComponentType = "storage"

	// ComponentHeatpump converts a driving input and ambient gains into heat.
	ComponentHeatpump ComponentType = "heatpump"

	// ComponentDeadtime delays its input by a fixed number of timesteps.
	ComponentDeadtime ComponentType = "deadtime"

	// ComponentSlack is a cost-penalized, unconstrained source or sink.
	ComponentSlack ComponentType = "slack"

	// ComponentSchedule consumes discrete demand events.
	ComponentSchedule ComponentType = "schedule"

	// ComponentThermalSystem models a heated or cooled thermal mass.
	ComponentThermalSystem ComponentType = "thermalsystem"
)

// ComponentTypes lists every variant in a stable order.
var ComponentTypes = []ComponentType{
	ComponentSource, ComponentSink, ComponentPool, ComponentConverter,
	ComponentStorage, ComponentHeatpump, ComponentDeadtime, ComponentSlack,
	ComponentSchedule, ComponentThermalSystem,
}

// Validate checks if the component type is known.
func (c ComponentType) Validate() error {
	switch c {
	case ComponentSource, ComponentSink, ComponentPool, ComponentConverter,
		ComponentStorage, ComponentHeatpump, ComponentDeadtime, ComponentSlack,
		ComponentSchedule, ComponentThermalSystem:
		return nil
	default:
		return fmt.Errorf("invalid component type: %s", c)
	}
}

// IsStateful returns true for variants that couple consecutive timesteps or
// act as junctions, which makes cycles through them physically meaningful.
func (c ComponentType) IsStateful() bool {
	return c == ComponentStorage || c == ComponentPool || c == ComponentThermalSystem
}

// QuantityType is the physical quantity a Unit measures.
type QuantityType string

const (
	// QuantityEnergy is balanced across converters.
	QuantityEnergy QuantityType = "energy"

	// QuantityMass is balanced across converters.
	QuantityMass QuantityType = "mass"

	// QuantityOther is excluded from converter balances.
	QuantityOther QuantityType = "other"
)

// Validate checks if the quantity type is known.
func (q QuantityType) Validate() error {
	switch q {
	case QuantityEnergy, QuantityMass, QuantityOther:
		return nil
	default:
		return fmt.Errorf("invalid quantity type: %s", q)
	}
}

// IsBalanced returns true if converters must conserve this quantity.
func (q QuantityType) IsBalanced() bool {
	return q == QuantityEnergy || q == QuantityMass
}

// RunStatus represents the status of one scenario run.
type RunStatus string

const (
	// RunStatusPending indicates the run is queued but not yet started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the model is being built or solved.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates an optimal solution was found.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusInfeasible indicates the solver proved infeasibility.
	RunStatusInfeasible RunStatus = "infeasible"

	// RunStatusUnbounded indicates the objective is unbounded below.
	RunStatusUnbounded RunStatus = "unbounded"

	// RunStatusFailed indicates the build or solve failed with an error.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s != RunStatusPending && s != RunStatusRunning
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded, RunStatusInfeasible,
		RunStatusUnbounded, RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// EventType represents the type of event in a run timeline.
type EventType string

const (
	EventTypeRunStarted     EventType = "run_started"
	EventTypeRunCompleted   EventType = "run_completed"
	EventTypeRunFailed      EventType = "run_failed"
	EventTypeModelBuilt     EventType = "model_built"
	EventTypeSolveCompleted EventType = "solve_completed"
	EventTypeWarning        EventType = "warning"
	EventTypeInfo           EventType = "info"
)

// Severity returns the severity level of the event type.
func (e EventType) Severity() string {
	switch e {
	case EventTypeRunFailed:
		return "error"
	case EventTypeWarning:
		return "warning"
	default:
		return "info"
	}
}
