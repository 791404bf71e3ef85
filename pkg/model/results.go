package model

import (
	"math"
	"sort"
	"time"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/solver"
)

// resultTolerance rounds solver noise around zero out of reported values.
const resultTolerance = 1e-9

// CostValue is the solved value of one cost term.
type CostValue struct {
	Component  string  `json:"component"`
	Connection string  `json:"connection,omitempty"`
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
}

// FlowResult is the solved flowrate series of one connection.
type FlowResult struct {
	Connection string    `json:"connection"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Flowtype   string    `json:"flowtype"`
	Values     []float64 `json:"values"`

	// Total is Σ values·trf, the quantity moved over the window.
	Total float64 `json:"total"`
}

// Result is the solved state of one simulation.
type Result struct {
	RunID     string                          `json:"run_id"`
	Factory   string                          `json:"factory"`
	Scenario  string                          `json:"scenario"`
	TStart    int                             `json:"t_start"`
	TEnd      int                             `json:"t_end"`
	Status    engine.RunStatus                `json:"status"`
	Objective float64                         `json:"objective"`
	Backend   string                          `json:"backend,omitempty"`
	Duration  time.Duration                   `json:"duration"`
	Flows     []FlowResult                    `json:"flows,omitempty"`
	Aux       map[string]map[string][]float64 `json:"aux,omitempty"`
	CostTerms []CostValue                     `json:"cost_terms,omitempty"`

	// SlackUsage is the total quantity moved through slack components.
	SlackUsage float64   `json:"slack_usage"`
	Warnings   []Warning `json:"warnings,omitempty"`
}

// RunStatusOf maps a solve status onto the run lifecycle.
func RunStatusOf(s solver.Status) engine.RunStatus {
	switch s {
	case solver.StatusOptimal:
		return engine.RunStatusSucceeded
	case solver.StatusInfeasible:
		return engine.RunStatusInfeasible
	case solver.StatusUnbounded:
		return engine.RunStatusUnbounded
	case solver.StatusTimeout:
		return engine.RunStatusCancelled
	}
	return engine.RunStatusFailed
}

// Extract reads the solved values of every flow, auxiliary vector and cost
// term. Non-optimal solutions yield a result carrying only the status and
// warnings.
func Extract(sim *Simulation, sol *solver.Solution) *Result {
	res := &Result{
		RunID:    sim.ID,
		Factory:  sim.Factory.Name,
		Scenario: sim.Scenario.Name,
		TStart:   sim.TStart,
		TEnd:     sim.TEnd,
		Status:   RunStatusOf(sol.Status),
		Backend:  sol.Backend,
		Duration: sol.Duration,
		Warnings: sim.Warnings(),
	}
	if sol.Status != solver.StatusOptimal {
		return res
	}
	res.Objective = clean(sol.Objective)

	slack := make(map[string]bool)
	for i := range sim.Factory.Components {
		if c := &sim.Factory.Components[i]; c.Type == engine.ComponentSlack {
			slack[c.Key] = true
		}
	}

	for i := range sim.Factory.Connections {
		conn := &sim.Factory.Connections[i]
		v, err := sim.Flow(conn.Key)
		if err != nil {
			continue
		}
		values := cleanAll(sol.Vector(v))
		var total float64
		for _, x := range values {
			total += x * sim.TimeReferenceFactor
		}
		res.Flows = append(res.Flows, FlowResult{
			Connection: conn.Key,
			From:       conn.From,
			To:         conn.To,
			Flowtype:   conn.Flowtype,
			Values:     values,
			Total:      clean(total),
		})
		if slack[conn.From] || slack[conn.To] {
			res.SlackUsage += total
		}
	}
	res.SlackUsage = clean(res.SlackUsage)

	if len(sim.aux) > 0 {
		res.Aux = make(map[string]map[string][]float64, len(sim.aux))
		for comp, vecs := range sim.aux {
			res.Aux[comp] = make(map[string][]float64, len(vecs))
			for name, v := range vecs {
				res.Aux[comp][name] = cleanAll(sol.Vector(v))
			}
		}
	}

	for _, term := range sim.costTerms {
		res.CostTerms = append(res.CostTerms, CostValue{
			Component:  term.Component,
			Connection: term.Connection,
			Label:      term.Label,
			Value:      clean(sol.Scalar(term.Var)),
		})
	}
	return res
}

// Flow returns the result of one connection.
func (r *Result) Flow(key string) (FlowResult, bool) {
	for _, f := range r.Flows {
		if f.Connection == key {
			return f, true
		}
	}
	return FlowResult{}, false
}

// CostByComponent sums cost term values per component, sorted by key.
func (r *Result) CostByComponent() []CostValue {
	sums := make(map[string]float64)
	for _, c := range r.CostTerms {
		sums[c.Component] += c.Value
	}
	out := make([]CostValue, 0, len(sums))
	for comp, v := range sums {
		out = append(out, CostValue{Component: comp, Label: "total", Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

func clean(v float64) float64 {
	if math.Abs(v) < resultTolerance {
		return 0
	}
	return v
}

func cleanAll(values []float64) []float64 {
	for i, v := range values {
		values[i] = clean(v)
	}
	return values
}
