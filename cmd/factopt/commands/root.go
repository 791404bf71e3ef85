package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dbPath        string
	jsonOutput    bool
	verbose       bool
	metricsAddr   string
	traceExporter string
	otlpEndpoint  string
	scriptTimeout time.Duration

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "factopt",
		Short: "factopt - factory flow network optimizer",
		Long: `factopt compiles a factory, a directed network of energy and mass
converting components, into a time-indexed linear program and solves it for
the cost-optimal operation over a planning horizon.

Features:
  - Factory files in YAML, JSON or CUE
  - Starlark scripts for timeseries parameters
  - Parameter variations expanded into scenarios and solved in parallel
  - CPLEX LP export for external solvers
  - Rego design checks
  - Run history in SQLite`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "factopt.db", "run history database path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace", "none", "trace exporter: none, stdout or otlp")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector address")
	rootCmd.PersistentFlags().DurationVar(&scriptTimeout, "script-timeout", 5*time.Second, "Starlark parameter script timeout, 0 disables scripts")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newSolveCommand())
	rootCmd.AddCommand(newSweepCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
