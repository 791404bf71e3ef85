package policy

import (
	"math"
	"sort"
	"time"

	"github.com/openfroyo/factopt/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for design smells that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that should block a solve.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether the severity fails a check.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code. The module must define
// a deny set in its package.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with factopt.
	Builtin bool `json:"builtin,omitempty"`

	Tags     []string               `json:"tags,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Violation is a single policy finding.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Resource is the component, connection or flowtype key concerned.
	Resource string `json:"resource,omitempty"`

	Message  string   `json:"message"`
	Severity Severity `json:"severity"`

	// Remediation provides a suggested fix.
	Remediation string `json:"remediation,omitempty"`
}

// Result is the outcome of evaluating every enabled policy on a factory.
type Result struct {
	// Allowed is false when any violation has a blocking severity.
	Allowed bool `json:"allowed"`

	// Violations are sorted by policy, then resource.
	Violations []Violation `json:"violations,omitempty"`

	// Failures lists policies whose evaluation failed.
	Failures []string `json:"failures,omitempty"`

	EvaluatedAt       time.Time     `json:"evaluated_at"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// Count returns the number of violations with the given severity.
func (r *Result) Count(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}

// Input is the document policies see as input. Parameters are reduced to
// their range so rules can compare costs without knowing the value shape.
type Input struct {
	Name        string              `json:"name"`
	Horizon     int                 `json:"horizon"`
	Flowtypes   []string            `json:"flowtypes"`
	Components  []ComponentInput    `json:"components"`
	Connections []engine.Connection `json:"connections"`
}

// ComponentInput is the policy view of a component.
type ComponentInput struct {
	Key    string                `json:"key"`
	Type   string                `json:"type"`
	Params map[string]ParamRange `json:"params"`
	Events int                   `json:"events"`
}

// ParamRange spans every value a parameter takes across timesteps and
// variations.
type ParamRange struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Varied bool    `json:"varied,omitempty"`
}

// NewInput builds the policy input for a factory. The factory need not be
// frozen.
func NewInput(f *engine.Factory) *Input {
	in := &Input{
		Name:        f.Name,
		Horizon:     f.Horizon,
		Flowtypes:   make([]string, 0, len(f.Flowtypes)),
		Components:  make([]ComponentInput, 0, len(f.Components)),
		Connections: f.Connections,
	}
	if in.Connections == nil {
		in.Connections = []engine.Connection{}
	}
	for _, ft := range f.Flowtypes {
		in.Flowtypes = append(in.Flowtypes, ft.Key)
	}
	for i := range f.Components {
		c := &f.Components[i]
		ci := ComponentInput{
			Key:    c.Key,
			Type:   string(c.Type),
			Params: make(map[string]ParamRange, len(c.Params)),
			Events: len(c.Events),
		}
		for name, v := range c.Params {
			ci.Params[name] = rangeOf(v)
		}
		in.Components = append(in.Components, ci)
	}
	return in
}

func rangeOf(v engine.Value) ParamRange {
	r := ParamRange{Min: math.Inf(1), Max: math.Inf(-1)}
	var walk func(engine.Value)
	walk = func(v engine.Value) {
		switch v.Kind {
		case engine.ValueScalar:
			r.Min = math.Min(r.Min, v.Scalar)
			r.Max = math.Max(r.Max, v.Scalar)
		case engine.ValueSeries:
			for _, x := range v.Series {
				r.Min = math.Min(r.Min, x)
				r.Max = math.Max(r.Max, x)
			}
		case engine.ValueVariations:
			r.Varied = true
			for _, vr := range v.Variations {
				walk(vr.Value)
			}
		}
	}
	walk(v)
	if math.IsInf(r.Min, 1) {
		return ParamRange{Varied: r.Varied}
	}
	return r
}

func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].Policy != vs[j].Policy {
			return vs[i].Policy < vs[j].Policy
		}
		if vs[i].Resource != vs[j].Resource {
			return vs[i].Resource < vs[j].Resource
		}
		return vs[i].Message < vs[j].Message
	})
}
