package commands

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

//go:embed templates/factory.yaml
var factoryTemplate []byte

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a factopt workspace",
		Long: `Initialize a workspace with an example factory and a run history database.

The example is a combined heat and power plant with a grid connection, a gas
supply, a boiler and two demands. Its cost parameters carry variations, so
"factopt sweep" solves three scenarios out of the box.`,
		Example: `  # Initialize the current directory
  factopt init

  # Initialize a new directory, overwriting an existing factory.yaml
  factopt init ./plant --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			if !cmd.Flags().Changed("db") {
				dbPath = filepath.Join(dir, "factopt.db")
			}

			log.Info().
				Str("dir", dir).
				Str("db", dbPath).
				Bool("force", force).
				Msg("Initializing workspace")

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initializing factopt workspace in %s\n\n", dir)

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}

			factoryPath := filepath.Join(dir, "factory.yaml")
			if _, err := os.Stat(factoryPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", factoryPath)
			}
			if err := os.WriteFile(factoryPath, factoryTemplate, 0o644); err != nil {
				return fmt.Errorf("failed to write factory: %w", err)
			}
			fmt.Fprintf(out, "✓ Created example factory: %s\n", factoryPath)

			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Close(); err != nil {
				return fmt.Errorf("failed to close store: %w", err)
			}
			fmt.Fprintf(out, "✓ Initialized SQLite database: %s\n", dbPath)

			fmt.Fprintf(out, "\n✅ Workspace initialized successfully!\n\n")
			fmt.Fprintf(out, "Next steps:\n")
			fmt.Fprintf(out, "  1. Check the factory:\n")
			fmt.Fprintf(out, "     factopt validate %s\n\n", factoryPath)
			fmt.Fprintf(out, "  2. Solve every scenario:\n")
			fmt.Fprintf(out, "     factopt sweep %s --db %s --save\n\n", factoryPath, dbPath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing factory.yaml")

	return cmd
}
