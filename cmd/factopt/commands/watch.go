package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/factopt/pkg/config"
	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/policy"
)

func newWatchCommand() *cobra.Command {
	var (
		flags    solveFlags
		scenario string
		debounce time.Duration
		policies []string
	)

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-solve a factory whenever it changes",
		Long: `Watch a factory file and solve one scenario after every change.

Each reload is checked against the design policies before solving. Custom
policy files given with --policies are reloaded when they change as well.
Stop with Ctrl-C.`,
		Example: `  # Re-solve the baseline on every save
  factopt watch factory.yaml

  # Watch policies too and expose metrics
  factopt watch factory.yaml --policies ./policies --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			log.Info().
				Str("path", path).
				Str("scenario", scenario).
				Dur("debounce", debounce).
				Strs("policies", policies).
				Msg("Watching factory")

			tel, err := newTelemetry()
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			eng, err := policy.NewEngine(tel.Logger)
			if err != nil {
				return err
			}
			if len(policies) > 0 {
				if err := eng.LoadPolicies(cmd.Context(), policies); err != nil {
					return fmt.Errorf("failed to load policies: %w", err)
				}
			}

			r, closeStore, err := flags.newRunner(cmd, tel)
			if err != nil {
				return err
			}
			defer closeStore()

			out := cmd.OutOrStdout()
			reload := func(ctx context.Context, f *engine.Factory, err error) {
				stamp := time.Now().Format(time.TimeOnly)
				if err != nil {
					fmt.Fprintf(out, "%s ✗ %s is invalid:\n", stamp, filepath.Base(path))
					printErrors(out, err)
					return
				}

				result, err := eng.Evaluate(ctx, f)
				if err != nil {
					fmt.Fprintf(out, "%s ✗ policy evaluation failed: %v\n", stamp, err)
					return
				}
				for _, v := range result.Violations {
					fmt.Fprintf(out, "%s [%s] %s: %s\n", stamp, v.Severity, v.Policy, v.Message)
				}
				if !result.Allowed {
					fmt.Fprintf(out, "%s ✗ blocked by policy, not solving\n", stamp)
					return
				}

				sc, err := engine.FindScenario(f, scenario)
				if err != nil {
					fmt.Fprintf(out, "%s ✗ %v\n", stamp, err)
					return
				}
				outcome, err := r.RunOne(ctx, f, sc, flags.options())
				if err != nil {
					fmt.Fprintf(out, "%s ✗ run failed: %v\n", stamp, err)
					return
				}
				run := outcome.Run
				if run.Status == engine.RunStatusSucceeded {
					fmt.Fprintf(out, "%s ✓ %s %s: %.4f %s (%s)\n", stamp, f.Name, run.Scenario, run.Objective, f.Currency, run.Duration.Round(time.Millisecond))
				} else {
					fmt.Fprintf(out, "%s ✗ %s %s: %s %s\n", stamp, f.Name, run.Scenario, run.Status, run.Error)
				}
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return config.NewWatcher(newLoader(tel), path, tel.Logger).
					WithDebounce(debounce).
					Watch(ctx, reload)
			})
			if len(policies) > 0 {
				g.Go(func() error {
					return eng.Watch(ctx, policies)
				})
			}
			if metricsAddr != "" {
				g.Go(func() error {
					return tel.Metrics.Serve(ctx, tel.Logger)
				})
			}
			return g.Wait()
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&scenario, "scenario", engine.BaselineScenario, "scenario name")
	cmd.Flags().DurationVar(&debounce, "debounce", config.DefaultDebounce, "delay between a change and the reload")
	cmd.Flags().StringSliceVar(&policies, "policies", nil, "custom policy files or directories")

	return cmd
}
