package commands

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/model"
	"github.com/openfroyo/factopt/pkg/solver"
)

// buildReport is the --json output of build.
type buildReport struct {
	Factory   string           `json:"factory"`
	Scenario  string           `json:"scenario"`
	TStart    int              `json:"t_start"`
	TEnd      int              `json:"t_end"`
	Rows      int              `json:"rows"`
	Columns   int              `json:"columns"`
	Vectors   int              `json:"vectors"`
	CostTerms []model.CostTerm `json:"cost_terms"`
	Warnings  []model.Warning  `json:"warnings,omitempty"`
}

func newBuildCommand() *cobra.Command {
	var (
		scenario string
		tStart   int
		tEnd     int
		lpPath   string
		dotPath  string
	)

	cmd := &cobra.Command{
		Use:   "build <file>",
		Short: "Build the optimization model without solving it",
		Long: `Build the linear program of one scenario and report its size.

The model can be exported in CPLEX LP format for an external solver, and the
component graph in Graphviz DOT format. Use "-" to write either to stdout.`,
		Example: `  # Show model statistics
  factopt build factory.yaml

  # Export the LP of a scenario over the first six timesteps
  factopt build factory.yaml --scenario grid.cost=flat --t-end 5 --lp model.lp

  # Render the component graph
  factopt build factory.yaml --dot - | dot -Tsvg > factory.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().
				Str("path", args[0]).
				Str("scenario", scenario).
				Int("t_start", tStart).
				Int("t_end", tEnd).
				Msg("Building model")

			tel, err := newTelemetry()
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			f, err := loadFactory(ctx, tel, args[0])
			if err != nil {
				printErrors(cmd.ErrOrStderr(), err)
				return fmt.Errorf("factory %s is invalid", args[0])
			}
			sc, err := engine.FindScenario(f, scenario)
			if err != nil {
				return err
			}

			sim, err := model.NewBuilder(tel.Logger).
				WithMetrics(tel.Metrics).
				WithTracer(tel.Tracer).
				Build(ctx, f, model.Options{Scenario: sc, TStart: tStart, TEnd: tEnd})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if lpPath != "" {
				if err := writeTo(out, lpPath, func(w io.Writer) error {
					return solver.WriteLP(w, sim.Problem)
				}); err != nil {
					return fmt.Errorf("failed to write LP: %w", err)
				}
			}
			if dotPath != "" {
				topo, err := engine.NewTopology(f)
				if err != nil {
					return err
				}
				if err := writeTo(out, dotPath, func(w io.Writer) error {
					_, err := io.WriteString(w, topo.ToDOT())
					return err
				}); err != nil {
					return fmt.Errorf("failed to write DOT: %w", err)
				}
			}
			// Keep stdout clean for piped exports.
			if lpPath == "-" || dotPath == "-" {
				return nil
			}

			report := buildReport{
				Factory:   f.Name,
				Scenario:  sc.Name,
				TStart:    sim.TStart,
				TEnd:      sim.TEnd,
				Rows:      sim.Problem.NumRows(),
				Columns:   sim.Problem.NumColumns(),
				Vectors:   len(sim.Problem.Vectors()),
				CostTerms: sim.CostTerms(),
				Warnings:  sim.Warnings(),
			}
			if jsonOutput {
				return printJSON(out, report)
			}

			fmt.Fprintf(out, "✓ Built %s, scenario %s, timesteps %d..%d\n", report.Factory, report.Scenario, report.TStart, report.TEnd)
			fmt.Fprintf(out, "  rows:       %d\n", report.Rows)
			fmt.Fprintf(out, "  columns:    %d\n", report.Columns)
			fmt.Fprintf(out, "  vectors:    %d\n", report.Vectors)
			fmt.Fprintf(out, "  cost terms: %d\n", len(report.CostTerms))
			for _, w := range report.Warnings {
				fmt.Fprintf(out, "⚠ %s [%s]: %s\n", w.Component, w.Code, w.Message)
			}
			if lpPath != "" {
				fmt.Fprintf(out, "✓ Wrote LP: %s\n", lpPath)
			}
			if dotPath != "" {
				fmt.Fprintf(out, "✓ Wrote DOT: %s\n", dotPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scenario, "scenario", engine.BaselineScenario, "scenario name")
	cmd.Flags().IntVar(&tStart, "t-start", 0, "first timestep, 0-indexed")
	cmd.Flags().IntVar(&tEnd, "t-end", -1, "last timestep, inclusive; -1 is the end of the horizon")
	cmd.Flags().StringVar(&lpPath, "lp", "", "write the model in CPLEX LP format to this path")
	cmd.Flags().StringVar(&dotPath, "dot", "", "write the component graph in DOT format to this path")

	return cmd
}
