package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/model"
	"github.com/openfroyo/factopt/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
		Long: `Inspect runs recorded by "factopt solve --save" and "factopt sweep --save".`,
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())
	cmd.AddCommand(newRunsDeleteCommand())

	return cmd
}

func newRunsListCommand() *cobra.Command {
	var (
		factory  string
		scenario string
		status   string
		limit    int
		offset   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Example: `  # List the last 20 runs
  factopt runs list

  # List infeasible runs of one factory
  factopt runs list --factory chp-plant --status infeasible`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			filter := stores.RunFilter{
				Factory:  factory,
				Scenario: scenario,
				Limit:    limit,
				Offset:   offset,
			}
			if status != "" {
				filter.Status = engine.RunStatus(status)
				if err := filter.Status.Validate(); err != nil {
					return err
				}
			}

			log.Debug().Interface("filter", filter).Msg("Listing runs")

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, filter)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFACTORY\tSCENARIO\tSTATUS\tOBJECTIVE\tSTARTED")
			for _, run := range runs {
				objective := "-"
				if run.Status == engine.RunStatusSucceeded {
					objective = fmt.Sprintf("%.4f", run.Objective)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.Factory, run.Scenario, run.Status, objective,
					run.StartedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&factory, "factory", "", "filter by factory name")
	cmd.Flags().StringVar(&scenario, "scenario", "", "filter by scenario")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs, 0 for all")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}

func newRunsShowCommand() *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			result, err := store.GetResult(ctx, run.ID)
			if err != nil && !errors.Is(err, stores.ErrNotFound) {
				return err
			}
			var events []*engine.Event
			if showEvents {
				events, err = store.GetEvents(ctx, engine.EventFilter{RunID: run.ID}, 0)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, struct {
					Run    *engine.Run     `json:"run"`
					Result *model.Result   `json:"result,omitempty"`
					Events []*engine.Event `json:"events,omitempty"`
				}{run, result, events})
			}

			fmt.Fprintf(out, "Run:       %s\n", run.ID)
			fmt.Fprintf(out, "Factory:   %s\n", run.Factory)
			fmt.Fprintf(out, "Scenario:  %s\n", run.Scenario)
			fmt.Fprintf(out, "Window:    %d..%d\n", run.TStart, run.TEnd)
			fmt.Fprintf(out, "Status:    %s\n", run.Status)
			if run.Status == engine.RunStatusSucceeded {
				fmt.Fprintf(out, "Objective: %.4f\n", run.Objective)
			}
			fmt.Fprintf(out, "Backend:   %s (%d rows, %d columns)\n", run.Backend, run.Rows, run.Columns)
			fmt.Fprintf(out, "Duration:  %s\n", run.Duration.Round(time.Millisecond))
			if run.Error != "" {
				fmt.Fprintf(out, "Error:     %s\n", run.Error)
			}

			if result != nil {
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "\nCONNECTION\tFLOWTYPE\tTOTAL")
				for _, fr := range result.Flows {
					fmt.Fprintf(tw, "%s\t%s\t%g\n", fr.Connection, fr.Flowtype, fr.Total)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				for _, w := range result.Warnings {
					fmt.Fprintf(out, "⚠ %s [%s]: %s\n", w.Component, w.Code, w.Message)
				}
			}

			if len(events) > 0 {
				fmt.Fprintln(out, "\nEvents:")
				for _, e := range events {
					fmt.Fprintf(out, "  %s  %-8s %s\n", e.Timestamp.Local().Format(time.TimeOnly), e.Level, e.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "include the event timeline")

	return cmd
}

func newRunsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>...",
		Short: "Delete runs and their results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, id := range args {
				if err := store.DeleteRun(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted run %s\n", id)
			}
			return nil
		},
	}
}
