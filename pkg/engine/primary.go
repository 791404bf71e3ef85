package engine

import (
	"fmt"
	"math"
)

// balanceTolerance absorbs floating point noise in weighted balances.
const balanceTolerance = 1e-9

// PrimarySelection is the outcome of primary flow selection on a converter.
type PrimarySelection struct {
	// Key is the primary connection.
	Key string

	// Weight is the primary connection's declared weight at the converter.
	Weight float64

	// Fallback is set when no connection has weight 1 and the last output
	// was taken instead.
	Fallback bool
}

// PrimaryFlow selects the converter's primary connection: the first input,
// then the first output, whose converter-side weight is 1. Loss connections
// are never primary. Without a weight-1 connection the last output is the
// fallback candidate, accepted only if the factory allows it.
func (f *Factory) PrimaryFlow(c *Component) (PrimarySelection, error) {
	for _, key := range c.Inputs {
		conn, _ := f.Connection(key)
		if conn.WeightDestination == 1 {
			return PrimarySelection{Key: key, Weight: 1}, nil
		}
	}
	var last *Connection
	for _, key := range c.Outputs {
		conn, _ := f.Connection(key)
		if conn.ToLosses {
			continue
		}
		if conn.WeightOrigin == 1 {
			return PrimarySelection{Key: key, Weight: 1}, nil
		}
		last = conn
	}
	if last == nil {
		return PrimarySelection{}, NewConfigurationError("converter has no candidate primary flow", nil).
			WithResource(c.Key).WithCode(ErrCodeNoPrimary)
	}
	if !f.AllowPrimaryFallback {
		return PrimarySelection{}, NewConfigurationError(
			"converter has no connection with weight 1", nil).
			WithResource(c.Key).WithCode(ErrCodeNoPrimary).
			WithDetail("fallback", last.Key)
	}
	return PrimarySelection{Key: last.Key, Weight: last.WeightOrigin, Fallback: true}, nil
}

// ConverterWeights holds the normalized ratio of every converter connection
// to one unit of primary flow.
type ConverterWeights struct {
	Primary PrimarySelection

	// Weights maps connection key to its ratio; the primary maps to 1 and
	// loss connections map to their computed residual.
	Weights map[string]float64

	// Losses maps a balanced quantity type to its loss connection.
	Losses map[QuantityType]string
}

// LossWeights selects the primary flow, normalizes every declared weight
// against it and computes the residual weight of each loss connection so
// that, per balanced quantity type, weighted inputs equal weighted outputs
// including losses. A residual below zero would create energy or mass and
// is rejected.
func (f *Factory) LossWeights(c *Component) (*ConverterWeights, error) {
	primary, err := f.PrimaryFlow(c)
	if err != nil {
		return nil, err
	}

	cw := &ConverterWeights{
		Primary: primary,
		Weights: make(map[string]float64, len(c.Inputs)+len(c.Outputs)),
		Losses:  make(map[QuantityType]string),
	}
	inflow := make(map[QuantityType]float64)
	outflow := make(map[QuantityType]float64)

	for _, key := range c.Inputs {
		conn, _ := f.Connection(key)
		w := conn.WeightDestination / primary.Weight
		cw.Weights[key] = w
		u := f.UnitOf(conn)
		inflow[u.QuantityType] += u.ToBase(w)
	}
	for _, key := range c.Outputs {
		conn, _ := f.Connection(key)
		u := f.UnitOf(conn)
		if conn.ToLosses {
			cw.Losses[u.QuantityType] = key
			continue
		}
		w := conn.WeightOrigin / primary.Weight
		cw.Weights[key] = w
		outflow[u.QuantityType] += u.ToBase(w)
	}

	for q, key := range cw.Losses {
		conn, _ := f.Connection(key)
		residual := inflow[q] - outflow[q]
		if residual < -balanceTolerance {
			return nil, NewBalanceError(fmt.Sprintf(
				"%s outputs exceed inputs by %g per unit of primary flow", q, -residual)).
				WithResource(c.Key).
				WithDetail("loss_connection", key)
		}
		cw.Weights[key] = f.UnitOf(conn).FromBase(math.Max(residual, 0))
	}
	return cw, nil
}

// Balance returns weighted inputs minus weighted outputs, in base units,
// for one quantity type. It is zero for a balanced type with a loss connection.
func (cw *ConverterWeights) Balance(f *Factory, c *Component, q QuantityType) float64 {
	var sum float64
	for _, key := range c.Inputs {
		conn, _ := f.Connection(key)
		if u := f.UnitOf(conn); u.QuantityType == q {
			sum += u.ToBase(cw.Weights[key])
		}
	}
	for _, key := range c.Outputs {
		conn, _ := f.Connection(key)
		if u := f.UnitOf(conn); u.QuantityType == q {
			sum -= u.ToBase(cw.Weights[key])
		}
	}
	return sum
}
