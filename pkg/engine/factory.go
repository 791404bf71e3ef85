package engine

import (
	"fmt"

	"go.uber.org/multierr"
)

// Freeze indexes the factory, derives component inputs and outputs from the
// connection list, and validates the whole description. Every configuration
// error found is reported, not just the first. A frozen factory must not be
// mutated.
func (f *Factory) Freeze() error {
	f.frozen = false
	var err error

	if f.Horizon < 1 {
		err = multierr.Append(err, NewConfigurationError(
			fmt.Sprintf("horizon must be at least 1, got %d", f.Horizon), nil).WithCode(ErrCodeValidation))
	}
	if !(f.TimeReferenceFactor > 0) {
		err = multierr.Append(err, NewConfigurationError(
			fmt.Sprintf("time reference factor must be positive, got %g", f.TimeReferenceFactor), nil).
			WithCode(ErrCodeValidation))
	}

	f.flowtypeIndex = make(map[string]int, len(f.Flowtypes))
	for i := range f.Flowtypes {
		ft := &f.Flowtypes[i]
		if _, dup := f.flowtypeIndex[ft.Key]; dup {
			err = multierr.Append(err, duplicateKey("flowtype", ft.Key))
			continue
		}
		f.flowtypeIndex[ft.Key] = i
		if uerr := ft.Unit.Validate(); uerr != nil {
			err = multierr.Append(err, NewConfigurationError("invalid unit", uerr).
				WithResource(ft.Key).WithCode(ErrCodeValidation))
		}
	}

	f.componentIndex = make(map[string]int, len(f.Components))
	for i := range f.Components {
		c := &f.Components[i]
		c.Inputs, c.Outputs = nil, nil
		if c.Key == "" {
			err = multierr.Append(err, NewConfigurationError(
				fmt.Sprintf("component #%d has no key", i), nil).WithCode(ErrCodeValidation))
			continue
		}
		if _, dup := f.componentIndex[c.Key]; dup {
			err = multierr.Append(err, duplicateKey("component", c.Key))
			continue
		}
		f.componentIndex[c.Key] = i
	}

	f.connectionIndex = make(map[string]int, len(f.Connections))
	for i := range f.Connections {
		conn := &f.Connections[i]
		if _, dup := f.connectionIndex[conn.Key]; dup || conn.Key == "" {
			err = multierr.Append(err, duplicateKey("connection", conn.Key))
			continue
		}
		f.connectionIndex[conn.Key] = i
		err = multierr.Append(err, f.linkConnection(conn))
	}

	for i := range f.Components {
		err = multierr.Append(err, f.validateComponent(&f.Components[i]))
	}

	if err != nil {
		return err
	}
	f.frozen = true
	return nil
}

func duplicateKey(kind, key string) error {
	return NewConfigurationError(fmt.Sprintf("duplicate %s key", kind), nil).
		WithResource(key).WithCode(ErrCodeDuplicateKey)
}

// linkConnection checks a connection's endpoints and appends it to the
// output list of its origin and the input list of its destination.
func (f *Factory) linkConnection(conn *Connection) error {
	var err error
	if _, ok := f.flowtypeIndex[conn.Flowtype]; !ok {
		err = multierr.Append(err, NewConfigurationError(
			fmt.Sprintf("unknown flowtype %q", conn.Flowtype), nil).
			WithResource(conn.Key).WithCode(ErrCodeNotFound))
	}
	if conn.WeightOrigin < 0 || conn.WeightDestination < 0 {
		err = multierr.Append(err, NewConfigurationError("weights must be positive", nil).
			WithResource(conn.Key).WithCode(ErrCodeValidation))
	}
	from, okFrom := f.componentIndex[conn.From]
	to, okTo := f.componentIndex[conn.To]
	if !okFrom {
		err = multierr.Append(err, NewConfigurationError(
			fmt.Sprintf("origin %q does not exist", conn.From), nil).
			WithResource(conn.Key).WithCode(ErrCodeDangling))
	}
	if !okTo {
		err = multierr.Append(err, NewConfigurationError(
			fmt.Sprintf("destination %q does not exist", conn.To), nil).
			WithResource(conn.Key).WithCode(ErrCodeDangling))
	}
	if okFrom {
		origin := &f.Components[from]
		origin.Outputs = append(origin.Outputs, conn.Key)
		if conn.ToLosses && origin.Type != ComponentConverter {
			err = multierr.Append(err, NewConfigurationError(
				"only converter outputs can be flagged as losses", nil).
				WithResource(conn.Key).WithCode(ErrCodeLossWeight))
		}
		if conn.ToLosses && conn.WeightOrigin != 0 {
			err = multierr.Append(err, NewConfigurationError(
				"loss connections take a computed weight, not a declared one", nil).
				WithResource(conn.Key).WithCode(ErrCodeLossWeight))
		}
	}
	if okTo {
		dest := &f.Components[to]
		dest.Inputs = append(dest.Inputs, conn.Key)
	}
	return err
}

func (f *Factory) validateComponent(c *Component) error {
	if err := c.Type.Validate(); err != nil {
		return NewConfigurationError("invalid component", err).
			WithResource(c.Key).WithCode(ErrCodeValidation)
	}

	var err error
	a := arities[c.Type]
	if n := len(c.Inputs); n < a.minIn || (a.maxIn >= 0 && n > a.maxIn) {
		err = multierr.Append(err, arityError(c, "inputs", n, a.minIn, a.maxIn))
	}
	if n := len(c.Outputs); n < a.minOut || (a.maxOut >= 0 && n > a.maxOut) {
		err = multierr.Append(err, arityError(c, "outputs", n, a.minOut, a.maxOut))
	}
	if c.Type == ComponentDeadtime && len(c.Inputs) != len(c.Outputs) {
		err = multierr.Append(err, NewConfigurationError(
			"deadtime needs one input and one output, or two of each with slack", nil).
			WithResource(c.Key).WithCode(ErrCodeArity))
	}

	spec := ParamSpecs[c.Type]
	for _, name := range spec.Required {
		if _, ok := c.Params[name]; !ok {
			err = multierr.Append(err, NewConfigurationError(
				fmt.Sprintf("missing required parameter %q", name), nil).
				WithResource(c.Key).WithCode(ErrCodeParameter))
		}
	}
	for name, v := range c.Params {
		if !spec.Allows(name) {
			err = multierr.Append(err, NewConfigurationError(
				fmt.Sprintf("unknown parameter %q for %s", name, c.Type), nil).
				WithResource(c.Key).WithCode(ErrCodeParameter))
			continue
		}
		if verr := v.Validate(f.Horizon); verr != nil {
			err = multierr.Append(err, NewConfigurationError(
				fmt.Sprintf("parameter %q", name), verr).
				WithResource(c.Key).WithCode(ErrCodeParameter))
		}
	}

	if len(c.Events) > 0 && c.Type != ComponentSchedule {
		err = multierr.Append(err, NewConfigurationError("only schedules take events", nil).
			WithResource(c.Key).WithCode(ErrCodeParameter))
	}
	err = multierr.Append(err, f.validateEvents(c))

	if c.Type == ComponentConverter && len(c.Inputs) > 0 && len(c.Outputs) > 0 {
		err = multierr.Append(err, f.validateConverter(c))
	}
	return err
}

func arityError(c *Component, side string, n, lo, hi int) error {
	bound := fmt.Sprintf("at least %d", lo)
	if hi >= 0 {
		bound = fmt.Sprintf("between %d and %d", lo, hi)
	}
	return NewConfigurationError(
		fmt.Sprintf("%s has %d %s, expected %s", c.Type, n, side, bound), nil).
		WithResource(c.Key).WithCode(ErrCodeArity)
}

func (f *Factory) validateEvents(c *Component) error {
	var err error
	for i, ev := range c.Events {
		if ev.Start < 1 || ev.End < ev.Start || ev.End > f.Horizon {
			err = multierr.Append(err, NewConfigurationError(
				fmt.Sprintf("event %d spans [%d, %d] outside horizon [1, %d]", i, ev.Start, ev.End, f.Horizon), nil).
				WithResource(c.Key).WithCode(ErrCodeParameter))
		}
		if ev.Amount < 0 {
			err = multierr.Append(err, NewConfigurationError(
				fmt.Sprintf("event %d has a negative amount", i), nil).
				WithResource(c.Key).WithCode(ErrCodeParameter))
		}
		for j := 0; j < i; j++ {
			prev := c.Events[j]
			if ev.Start <= prev.End && prev.Start <= ev.End {
				err = multierr.Append(err, NewConfigurationError(
					fmt.Sprintf("event %d overlaps event %d", i, j), nil).
					WithResource(c.Key).WithCode(ErrCodeParameter))
			}
		}
	}
	return err
}

// validateConverter checks primary flow selection, declared weights and the
// balance of every quantity type.
func (f *Factory) validateConverter(c *Component) error {
	var err error
	lossTypes := make(map[QuantityType]string)
	for _, key := range c.Outputs {
		conn, _ := f.Connection(key)
		if !conn.ToLosses {
			continue
		}
		q := f.UnitOf(conn).QuantityType
		if !q.IsBalanced() {
			err = multierr.Append(err, NewConfigurationError(
				fmt.Sprintf("loss connection carries unbalanced quantity %q", q), nil).
				WithResource(conn.Key).WithCode(ErrCodeLossWeight))
			continue
		}
		if other, dup := lossTypes[q]; dup {
			err = multierr.Append(err, NewConfigurationError(
				fmt.Sprintf("second %s loss connection, %q is already one", q, other), nil).
				WithResource(conn.Key).WithCode(ErrCodeLossWeight))
			continue
		}
		lossTypes[q] = conn.Key
	}

	for _, key := range c.Inputs {
		conn, _ := f.Connection(key)
		if conn.WeightDestination == 0 {
			err = multierr.Append(err, NewConfigurationError("converter input needs a weight", nil).
				WithResource(conn.Key).WithCode(ErrCodeValidation))
		}
	}
	for _, key := range c.Outputs {
		conn, _ := f.Connection(key)
		if !conn.ToLosses && conn.WeightOrigin == 0 {
			err = multierr.Append(err, NewConfigurationError("converter output needs a weight", nil).
				WithResource(conn.Key).WithCode(ErrCodeValidation))
		}
	}
	if err != nil {
		return err
	}

	if _, perr := f.PrimaryFlow(c); perr != nil {
		return perr
	}
	_, berr := f.LossWeights(c)
	return berr
}
