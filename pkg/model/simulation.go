package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/solver"
)

// CostTerm is one scalar contribution to the objective.
type CostTerm struct {
	Component  string `json:"component"`
	Connection string `json:"connection,omitempty"`
	Label      string `json:"label"`

	// Var is the scalar column tied to the term's expression.
	Var solver.Vector `json:"-"`
}

// Warning is a non-fatal issue raised while building.
type Warning struct {
	Component string `json:"component"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Simulation is the context of one scenario run. It owns the
// problem, the registry of flow and auxiliary vectors, and the cost terms
// that make up the objective. A Simulation is built by one goroutine and never
// shared between scenarios.
type Simulation struct {
	ID       string
	Factory  *engine.Factory
	Scenario engine.Scenario

	// TStart and TEnd bound the simulated window, inclusive, 0-indexed.
	TStart int
	TEnd   int

	// TimeReferenceFactor is the length of one timestep in the factory's
	// native time unit.
	TimeReferenceFactor float64

	Problem *solver.Problem

	flows     map[string]solver.Vector
	aux       map[string]map[string]solver.Vector
	costTerms []CostTerm
	warnings  []Warning
	logger    zerolog.Logger
}

// NewSimulation creates the context for one window of one scenario.
func NewSimulation(f *engine.Factory, sc engine.Scenario, tStart, tEnd int, logger zerolog.Logger) (*Simulation, error) {
	return newSimulation("", f, sc, tStart, tEnd, logger)
}

func newSimulation(id string, f *engine.Factory, sc engine.Scenario, tStart, tEnd int, logger zerolog.Logger) (*Simulation, error) {
	if !f.Frozen() {
		return nil, engine.NewInternalError("factory must be frozen before building")
	}
	if tStart < 0 || tEnd < tStart || tEnd >= f.Horizon {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("window [%d, %d] outside horizon [0, %d]", tStart, tEnd, f.Horizon-1), nil).
			WithCode(engine.ErrCodeValidation)
	}

	if id == "" {
		id = uuid.New().String()
	}
	name := f.Name
	if sc.Name != "" {
		name = f.Name + "/" + sc.Name
	}
	return &Simulation{
		ID:                  id,
		Factory:             f,
		Scenario:            sc,
		TStart:              tStart,
		TEnd:                tEnd,
		TimeReferenceFactor: f.TimeReferenceFactor,
		Problem:             solver.NewProblem(name),
		flows:               make(map[string]solver.Vector, len(f.Connections)),
		aux:                 make(map[string]map[string]solver.Vector),
		logger:              logger.With().Str("simulation_id", id).Str("scenario", sc.Name).Logger(),
	}, nil
}

// IntervalLength is the number of simulated timesteps.
func (s *Simulation) IntervalLength() int {
	return s.TEnd - s.TStart + 1
}

// RegisterFlows allocates one non-negative vector per connection. It must
// run before any component rule.
func (s *Simulation) RegisterFlows() {
	n := s.IntervalLength()
	for i := range s.Factory.Connections {
		key := s.Factory.Connections[i].Key
		s.flows[key] = s.Problem.AddVector("flow_"+key, n, 0, solver.Inf)
	}
}

// Flow returns the flow vector of a connection.
func (s *Simulation) Flow(key string) (solver.Vector, error) {
	v, ok := s.flows[key]
	if !ok {
		return solver.Vector{}, engine.NewInternalError("connection has no registered flow").WithResource(key)
	}
	return v, nil
}

// FlowSum returns Σ flow over the given connections as a vector expression.
func (s *Simulation) FlowSum(keys []string) (solver.VecExpr, error) {
	out := solver.Zeros(s.IntervalLength())
	for _, key := range keys {
		v, err := s.Flow(key)
		if err != nil {
			return nil, err
		}
		out = out.Plus(v.Expr())
	}
	return out, nil
}

// AddAux registers an auxiliary vector for a component.
func (s *Simulation) AddAux(component, name string, lower, upper float64) solver.Vector {
	v := s.Problem.AddVector(component+"_"+name, s.IntervalLength(), lower, upper)
	if s.aux[component] == nil {
		s.aux[component] = make(map[string]solver.Vector)
	}
	s.aux[component][name] = v
	return v
}

// Aux returns an auxiliary vector registered by a component rule.
func (s *Simulation) Aux(component, name string) (solver.Vector, bool) {
	v, ok := s.aux[component][name]
	return v, ok
}

// AuxNames returns the auxiliary vectors of every component.
func (s *Simulation) AuxNames() map[string][]string {
	out := make(map[string][]string, len(s.aux))
	for comp, vecs := range s.aux {
		for name := range vecs {
			out[comp] = append(out[comp], name)
		}
	}
	return out
}

// AddCostTerm ties a new scalar column to expr and appends it to the
// objective.
func (s *Simulation) AddCostTerm(component, connection, label string, expr solver.LinExpr) error {
	name := "cost_" + component + "_" + label
	if connection != "" {
		name += "_" + connection
	}
	v, err := s.Problem.AddAuxiliary(name, expr)
	if err != nil {
		return err
	}
	s.Problem.Minimize(v.At(0))
	s.costTerms = append(s.costTerms, CostTerm{
		Component:  component,
		Connection: connection,
		Label:      label,
		Var:        v,
	})
	return nil
}

// CostTerms returns the registered cost terms in emission order.
func (s *Simulation) CostTerms() []CostTerm {
	return append([]CostTerm(nil), s.costTerms...)
}

// Warn records a non-fatal issue and logs it.
func (s *Simulation) Warn(component, code, message string) {
	s.warnings = append(s.warnings, Warning{Component: component, Code: code, Message: message})
	s.logger.Warn().Str("component", component).Str("code", code).Msg(message)
}

// Warnings returns the warnings raised so far.
func (s *Simulation) Warnings() []Warning {
	return append([]Warning(nil), s.warnings...)
}

// Logger returns the context logger.
func (s *Simulation) Logger() zerolog.Logger {
	return s.logger
}

// Param resolves a component parameter for the context's scenario.
func (s *Simulation) Param(comp *engine.Component, name string) (engine.Value, bool, error) {
	v, ok := comp.Param(name)
	if !ok {
		return engine.Value{}, false, nil
	}
	ref := engine.ParamRef{Component: comp.Key, Param: name}
	resolved, err := v.Resolve(s.Scenario.Variation(ref))
	if err != nil {
		return engine.Value{}, false, engine.NewConfigurationError(
			fmt.Sprintf("parameter %q", name), err).
			WithResource(comp.Key).WithCode(engine.ErrCodeParameter)
	}
	return resolved, true, nil
}

// Series returns a parameter sliced to the window, or nil if undeclared.
func (s *Simulation) Series(comp *engine.Component, name string) ([]float64, error) {
	v, ok, err := s.Param(comp, name)
	if err != nil || !ok {
		return nil, err
	}
	return v.Slice(s.TStart, s.TEnd), nil
}

// SeriesOr returns a parameter sliced to the window, or def broadcast.
func (s *Simulation) SeriesOr(comp *engine.Component, name string, def float64) ([]float64, error) {
	series, err := s.Series(comp, name)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return engine.Scalar(def).Slice(s.TStart, s.TEnd), nil
	}
	return series, nil
}

// ScalarOr returns a scalar parameter, or def if undeclared. Series values
// are rejected.
func (s *Simulation) ScalarOr(comp *engine.Component, name string, def float64) (float64, error) {
	v, ok, err := s.Param(comp, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	if v.Kind != engine.ValueScalar {
		return 0, engine.NewConfigurationError(
			fmt.Sprintf("parameter %q must be a scalar", name), nil).
			WithResource(comp.Key).WithCode(engine.ErrCodeParameter)
	}
	return v.Scalar, nil
}

// FlagOr returns a boolean parameter, or def if undeclared.
func (s *Simulation) FlagOr(comp *engine.Component, name string, def bool) (bool, error) {
	v, ok, err := s.Param(comp, name)
	if err != nil || !ok {
		return def, err
	}
	return v.Bool(), nil
}
