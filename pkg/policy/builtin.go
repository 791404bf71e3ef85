package policy

// Built-in policy names.
const (
	PolicySlackCost       = "slack-cost"
	PolicyPrimaryFlow     = "primary-flow"
	PolicyUnusedFlowtypes = "unused-flowtypes"
	PolicyInertSinks      = "inert-sinks"
)

// GetBuiltinPolicies returns all built-in policies. They are advisory: every
// finding is a warning or info and never blocks a solve.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		slackCostPolicy(),
		primaryFlowPolicy(),
		unusedFlowtypesPolicy(),
		inertSinksPolicy(),
	}
}

// slackCostPolicy flags slack components that are not the most expensive
// way to balance the factory.
func slackCostPolicy() Policy {
	return Policy{
		Name:        PolicySlackCost,
		Description: "Slack must cost more than every source, converter and heatpump",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"slack", "cost"},
		Rego: `package factopt.policies.slack

import rego.v1

producers := {"source", "converter", "heatpump"}

deny contains violation if {
	some slack in input.components
	slack.type == "slack"
	slack_cost := slack.params.cost.min

	some c in input.components
	c.type in producers
	c.params.cost.max >= slack_cost

	violation := {
		"message": sprintf("slack %s costs %v which does not exceed the cost %v of %s %s", [slack.key, slack_cost, c.params.cost.max, c.type, c.key]),
		"resource": slack.key,
		"remediation": "raise the slack cost above every production cost so slack is used only to restore feasibility",
	}
}`,
	}
}

// primaryFlowPolicy checks that each converter declares exactly one
// connection with weight 1 on its side.
func primaryFlowPolicy() Policy {
	return Policy{
		Name:        PolicyPrimaryFlow,
		Description: "Converters should declare exactly one connection with weight 1",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"converter", "weights"},
		Rego: `package factopt.policies.primary

import rego.v1

unit_inputs(key) := [c.key |
	some c in input.connections
	c.to == key
	c.weight_destination == 1
]

unit_outputs(key) := [c.key |
	some c in input.connections
	c.from == key
	c.weight_origin == 1
	not c.to_losses
]

deny contains violation if {
	some c in input.components
	c.type == "converter"
	n := count(unit_inputs(c.key)) + count(unit_outputs(c.key))
	n == 0
	violation := {
		"message": sprintf("converter %s has no connection with weight 1", [c.key]),
		"resource": c.key,
		"remediation": "set weight 1 on the connection all other ratios refer to",
	}
}

deny contains violation if {
	some c in input.components
	c.type == "converter"
	units := array.concat(unit_inputs(c.key), unit_outputs(c.key))
	count(units) > 1
	violation := {
		"message": sprintf("converter %s has %v connections with weight 1, the first of %v is primary", [c.key, count(units), units]),
		"resource": c.key,
	}
}`,
	}
}

// unusedFlowtypesPolicy reports flowtypes no connection carries.
func unusedFlowtypesPolicy() Policy {
	return Policy{
		Name:        PolicyUnusedFlowtypes,
		Description: "Every flowtype should be carried by at least one connection",
		Severity:    SeverityInfo,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"flowtype"},
		Rego: `package factopt.policies.flowtypes

import rego.v1

used contains c.flowtype if {
	some c in input.connections
}

deny contains violation if {
	some ft in input.flowtypes
	not ft in used
	violation := {
		"message": sprintf("flowtype %s is not used by any connection", [ft]),
		"resource": ft,
	}
}`,
	}
}

// inertSinksPolicy flags sinks that neither demand nor earn anything, so
// the optimizer has no reason to send them flow. Sinks fed by loss
// connections are exempt.
func inertSinksPolicy() Policy {
	return Policy{
		Name:        PolicyInertSinks,
		Description: "Sinks other than loss sinks should declare a demand or a revenue",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"sink"},
		Rego: `package factopt.policies.sinks

import rego.v1

loss_sinks contains c.to if {
	some c in input.connections
	c.to_losses
}

deny contains violation if {
	some c in input.components
	c.type == "sink"
	not c.key in loss_sinks
	not c.params.demand
	not c.params.revenue
	violation := {
		"message": sprintf("sink %s has neither demand nor revenue and will receive no flow", [c.key]),
		"resource": c.key,
		"remediation": "add a demand timeseries or a revenue",
	}
}`,
	}
}
