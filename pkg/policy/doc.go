// Package policy runs Open Policy Agent (OPA) design checks over factories.
//
// Policies are Rego modules that define a deny set. Each member is either a
// message string or an object with message, resource, severity and
// remediation fields. The input document is built by NewInput: factory name
// and horizon, flowtype keys, connections as declared, and components with
// every parameter reduced to its min/max range across timesteps and
// variations.
//
// # Built-in Policies
//
//   - slack-cost: a slack must cost more than every source, converter and
//     heatpump, otherwise the optimizer prefers slack to production.
//   - primary-flow: a converter should declare exactly one connection with
//     weight 1 on its own side.
//   - unused-flowtypes: every flowtype should be carried by a connection.
//   - inert-sinks: a sink without demand or revenue never receives flow.
//
// The built-ins report warnings and info only. Custom policies loaded from
// .rego or .json files may use error or critical severity, which clears
// Result.Allowed.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, factory)
//	if err != nil {
//	    return err
//	}
//	for _, v := range result.Violations {
//	    fmt.Printf("[%s] %s: %s\n", v.Severity, v.Policy, v.Message)
//	}
//
// Engine.Watch reloads custom policies when their files change.
package policy
