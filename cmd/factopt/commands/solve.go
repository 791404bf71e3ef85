package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/model"
	"github.com/openfroyo/factopt/pkg/runner"
	"github.com/openfroyo/factopt/pkg/solver"
	"github.com/openfroyo/factopt/pkg/telemetry"
)

// solveFlags are shared by solve and sweep.
type solveFlags struct {
	tStart  int
	tEnd    int
	timeout time.Duration
	save    bool
}

func (sf *solveFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&sf.tStart, "t-start", 0, "first timestep, 0-indexed")
	cmd.Flags().IntVar(&sf.tEnd, "t-end", -1, "last timestep, inclusive; -1 is the end of the horizon")
	cmd.Flags().DurationVar(&sf.timeout, "timeout", 0, "solver timeout per scenario, 0 disables it")
	cmd.Flags().BoolVar(&sf.save, "save", false, "record runs, results and events in the database")
}

func (sf *solveFlags) options() runner.Options {
	opts := runner.DefaultOptions()
	opts.TStart = sf.tStart
	opts.TEnd = sf.tEnd
	opts.Timeout = sf.timeout
	return opts
}

// newRunner creates a simplex runner, persisting to the database when
// --save is set. The returned close function is never nil.
func (sf *solveFlags) newRunner(cmd *cobra.Command, tel *telemetry.Telemetry) (*runner.Runner, func(), error) {
	r := runner.New(solver.NewSimplex(), tel)
	if !sf.save {
		return r, func() {}, nil
	}
	store, err := openStore(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	return r.WithStore(store), func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}, nil
}

func newSolveCommand() *cobra.Command {
	var (
		flags    solveFlags
		scenario string
		showFlow bool
	)

	cmd := &cobra.Command{
		Use:   "solve <file>",
		Short: "Solve one scenario of a factory",
		Long: `Build and solve one scenario of a factory and print the optimal cost.

The run is solved with the built-in simplex backend. With --save the run, its
result and its event timeline are recorded for "factopt runs".

The built-in backend uses a dense tableau. A small factory solves in about a
second at 96 timesteps and takes close to 20 seconds at 192 timesteps. For
longer horizons narrow the window with --t-start and --t-end, or write the
model with "factopt build --lp" and solve it with an external LP solver.`,
		Example: `  # Solve the baseline scenario
  factopt solve factory.yaml

  # Solve a scenario with per-connection totals and save the run
  factopt solve factory.yaml --scenario gas.cost=spot --flows --save

  # Solve the first day of a longer horizon
  factopt solve factory.yaml --t-end 23 --timeout 30s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().
				Str("path", args[0]).
				Str("scenario", scenario).
				Bool("save", flags.save).
				Msg("Solving scenario")

			tel, err := newTelemetry()
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)
			serveMetrics(ctx, tel)

			f, err := loadFactory(ctx, tel, args[0])
			if err != nil {
				printErrors(cmd.ErrOrStderr(), err)
				return fmt.Errorf("factory %s is invalid", args[0])
			}
			sc, err := engine.FindScenario(f, scenario)
			if err != nil {
				return err
			}

			r, closeStore, err := flags.newRunner(cmd, tel)
			if err != nil {
				return err
			}
			defer closeStore()

			out, err := r.RunOne(ctx, f, sc, flags.options())
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), struct {
					Run    *engine.Run   `json:"run"`
					Result *model.Result `json:"result,omitempty"`
				}{out.Run, out.Result}); err != nil {
					return err
				}
			} else {
				printOutcome(cmd.OutOrStdout(), f, out, showFlow)
			}
			return out.Err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&scenario, "scenario", engine.BaselineScenario, "scenario name")
	cmd.Flags().BoolVar(&showFlow, "flows", false, "print the total of every connection")

	return cmd
}

func newSweepCommand() *cobra.Command {
	var (
		flags       solveFlags
		scenarios   []string
		parallelism int
	)

	cmd := &cobra.Command{
		Use:   "sweep <file>",
		Short: "Solve every scenario of a factory in parallel",
		Long: `Expand the parameter variations of a factory into scenarios and solve them
in parallel. Each scenario changes one parameter from its baseline variation.
The table compares every objective with the baseline.

Every scenario is solved with the dense built-in backend; see "factopt solve
--help" for its practical horizon limit.`,
		Example: `  # Solve all scenarios, four at a time
  factopt sweep factory.yaml

  # Solve two scenarios and record them
  factopt sweep factory.yaml --scenario baseline --scenario grid.cost=flat --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().
				Str("path", args[0]).
				Strs("scenarios", scenarios).
				Int("parallelism", parallelism).
				Msg("Sweeping scenarios")

			tel, err := newTelemetry()
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)
			serveMetrics(ctx, tel)

			f, err := loadFactory(ctx, tel, args[0])
			if err != nil {
				printErrors(cmd.ErrOrStderr(), err)
				return fmt.Errorf("factory %s is invalid", args[0])
			}

			r, closeStore, err := flags.newRunner(cmd, tel)
			if err != nil {
				return err
			}
			defer closeStore()

			opts := flags.options()
			opts.Parallelism = parallelism
			opts.Scenarios = scenarios
			outcomes, err := r.Run(ctx, f, opts)
			if err != nil {
				return err
			}
			summary := runner.Summarize(outcomes)

			if jsonOutput {
				runs := make([]*engine.Run, 0, len(outcomes))
				for _, o := range outcomes {
					runs = append(runs, o.Run)
				}
				return printJSON(cmd.OutOrStdout(), struct {
					Runs    []*engine.Run  `json:"runs"`
					Summary runner.Summary `json:"summary"`
				}{runs, summary})
			}

			printSweep(cmd.OutOrStdout(), outcomes)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d scenarios", summary.Total)
			for _, status := range []engine.RunStatus{engine.RunStatusSucceeded, engine.RunStatusInfeasible, engine.RunStatusFailed, engine.RunStatusCancelled} {
				if n := summary.ByStatus[status]; n > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), ", %d %s", n, status)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout())
			if summary.Best != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Cheapest: %s (%.4f %s)\n", summary.Best, summary.Objective, f.Currency)
			}

			if summary.ByStatus[engine.RunStatusSucceeded] == 0 {
				return fmt.Errorf("no scenario succeeded")
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringSliceVar(&scenarios, "scenario", nil, "scenarios to solve (default all)")
	cmd.Flags().IntVarP(&parallelism, "parallelism", "p", runner.DefaultOptions().Parallelism, "scenarios solved at once")

	return cmd
}

func printOutcome(w io.Writer, f *engine.Factory, out *runner.Outcome, showFlow bool) {
	run := out.Run
	if run.Status != engine.RunStatusSucceeded {
		fmt.Fprintf(w, "✗ %s: %s\n", run.Scenario, run.Status)
		if run.Error != "" {
			fmt.Fprintf(w, "  %s\n", run.Error)
		}
		return
	}

	fmt.Fprintf(w, "✓ %s: optimal, objective %.4f %s\n", run.Scenario, run.Objective, f.Currency)
	fmt.Fprintf(w, "  run %s, %d rows, %d columns, %s\n", run.ID, run.Rows, run.Columns, run.Duration.Round(time.Millisecond))

	res := out.Result
	if res == nil {
		return
	}
	if res.SlackUsage > 0 {
		fmt.Fprintf(w, "⚠ slack used: %g\n", res.SlackUsage)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nCOMPONENT\tCONNECTION\tTERM\tVALUE")
	for _, c := range res.CostTerms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\n", c.Component, c.Connection, c.Label, c.Value)
	}
	_ = tw.Flush()

	if !showFlow {
		return
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nCONNECTION\tFROM\tTO\tTOTAL")
	for _, fr := range res.Flows {
		total := fmt.Sprintf("%g", fr.Total)
		if ft, ok := f.Flowtype(fr.Flowtype); ok {
			total = ft.Unit.Format(fr.Total, false)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", fr.Connection, fr.From, fr.To, total)
	}
	_ = tw.Flush()
}

func printSweep(w io.Writer, outcomes []*runner.Outcome) {
	var baseline *engine.Run
	for _, o := range outcomes {
		if o.Run.Scenario == engine.BaselineScenario && o.Run.Status == engine.RunStatusSucceeded {
			baseline = o.Run
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATUS\tOBJECTIVE\tDELTA\tDURATION")
	for _, o := range outcomes {
		run := o.Run
		objective, delta := "-", "-"
		if run.Status == engine.RunStatusSucceeded {
			objective = fmt.Sprintf("%.4f", run.Objective)
			if baseline != nil {
				delta = fmt.Sprintf("%+.4f", run.Objective-baseline.Objective)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", run.Scenario, run.Status, objective, delta, run.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
}
