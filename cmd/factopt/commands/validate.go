package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/policy"
)

// validateReport is the --json output of validate.
type validateReport struct {
	Factory          string             `json:"factory"`
	Valid            bool               `json:"valid"`
	Errors           []string           `json:"errors,omitempty"`
	Levels           [][]string         `json:"levels,omitempty"`
	Cycles           [][]string         `json:"cycles,omitempty"`
	UnbufferedCycles [][]string         `json:"unbuffered_cycles,omitempty"`
	Scenarios        []string           `json:"scenarios,omitempty"`
	Violations       []policy.Violation `json:"violations,omitempty"`
	PolicyFailures   []string           `json:"policy_failures,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var (
		strict   bool
		policies []string
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a factory file",
		Long: `Validate a factory file without building a model.

This command checks:
  - Document schema and parameter names
  - Connection endpoints, arities and converter weights
  - Cycles, and whether each cycle passes through storage
  - Scenario expansion of parameter variations
  - Design policies (OPA/rego), built-in and from --policies`,
		Example: `  # Validate a factory
  factopt validate factory.yaml

  # Fail on warnings and on cycles without storage
  factopt validate --strict factory.yaml

  # Add custom policies
  factopt validate --policies ./policies factory.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			log.Info().
				Str("path", path).
				Bool("strict", strict).
				Strs("policies", policies).
				Msg("Validating factory")

			tel, err := newTelemetry()
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			report := validateReport{Factory: path, Valid: true}
			out := cmd.OutOrStdout()

			f, err := loadFactory(ctx, tel, path)
			if err != nil {
				report.Valid = false
				report.Errors = errorStrings(err)
				if jsonOutput {
					if perr := printJSON(out, report); perr != nil {
						return perr
					}
				} else {
					fmt.Fprintf(out, "✗ %s is invalid:\n", path)
					printErrors(out, err)
				}
				return fmt.Errorf("factory %s is invalid", path)
			}
			report.Factory = f.Name

			topo, err := engine.NewTopology(f)
			if err != nil {
				return err
			}
			report.Levels = topo.Levels()
			report.Cycles = topo.Cycles()
			report.UnbufferedCycles = topo.UnbufferedCycles()
			for _, sc := range engine.ExpandScenarios(f) {
				report.Scenarios = append(report.Scenarios, sc.Name)
			}

			eng, err := policy.NewEngine(tel.Logger)
			if err != nil {
				return err
			}
			if len(policies) > 0 {
				if err := eng.LoadPolicies(ctx, policies); err != nil {
					return fmt.Errorf("failed to load policies: %w", err)
				}
			}
			result, err := eng.Evaluate(ctx, f)
			if err != nil {
				return err
			}
			report.Violations = result.Violations
			report.PolicyFailures = result.Failures

			if !result.Allowed || len(result.Failures) > 0 {
				report.Valid = false
			}
			if strict && (result.Count(policy.SeverityWarning) > 0 || len(report.UnbufferedCycles) > 0) {
				report.Valid = false
			}

			if jsonOutput {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				printValidateReport(cmd, report)
			}

			if !report.Valid {
				return fmt.Errorf("factory %s failed validation", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail on policy warnings and cycles without storage")
	cmd.Flags().StringSliceVar(&policies, "policies", nil, "additional policy files or directories")

	return cmd
}

func printValidateReport(cmd *cobra.Command, r validateReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Loaded factory %s\n", r.Factory)
	fmt.Fprintf(out, "✓ %d topological levels\n", len(r.Levels))
	for _, cycle := range r.Cycles {
		fmt.Fprintf(out, "  cycle: %s\n", engine.FormatCycle(cycle))
	}
	for _, cycle := range r.UnbufferedCycles {
		fmt.Fprintf(out, "⚠ cycle without storage: %s\n", engine.FormatCycle(cycle))
	}
	fmt.Fprintf(out, "✓ %d scenarios:\n", len(r.Scenarios))
	for _, name := range r.Scenarios {
		fmt.Fprintf(out, "  - %s\n", name)
	}

	if len(r.Violations) == 0 {
		fmt.Fprintf(out, "✓ No policy violations\n")
	}
	for _, v := range r.Violations {
		fmt.Fprintf(out, "[%s] %s: %s\n", v.Severity, v.Policy, v.Message)
		if v.Remediation != "" {
			fmt.Fprintf(out, "    fix: %s\n", v.Remediation)
		}
	}
	for _, failure := range r.PolicyFailures {
		fmt.Fprintf(out, "✗ %s\n", failure)
	}

	if r.Valid {
		fmt.Fprintf(out, "\n✅ %s is valid\n", r.Factory)
	} else {
		fmt.Fprintf(out, "\n✗ %s failed validation\n", r.Factory)
	}
}
