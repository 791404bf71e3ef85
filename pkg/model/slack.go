package model

import (
	"github.com/openfroyo/factopt/pkg/engine"
)

// slackRule adds no capacity limit. Each input and output connection gets
// its own cost term Σ_t cost(t)·flow(t).
func slackRule(sim *Simulation, comp *engine.Component) error {
	cost, err := sim.Series(comp, "cost")
	if err != nil {
		return err
	}

	keys := append(append([]string(nil), comp.Inputs...), comp.Outputs...)
	for _, key := range keys {
		flow, err := sim.Flow(key)
		if err != nil {
			return err
		}
		if err := sim.AddCostTerm(comp.Key, key, "slack", flow.Expr().Dot(cost)); err != nil {
			return err
		}
	}
	return nil
}
