// Package cli defines the policyimport command tree.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/policyimport/internal/config"
	"github.com/JonMunkholm/policyimport/internal/logging"
)

type rootOptions struct {
	envFile string
	cfg     *config.Config
}

// NewRootCmd builds the command tree. Running it without a subcommand
// starts the HTTP server.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "policyimport",
		Short: "Import insurance policy CSV files into SQLite or PostgreSQL",
		Long: `policyimport loads insurance policy spreadsheets exported as CSV.

Every import creates a timestamped table insurance_policies_<YYYYMMDDHHMMSS>
holding that file's rows, and appends the same rows to main_insurance_policies.

Configuration comes from the environment (and a .env file when present).
STORE_PATH selects the database: a file path for SQLite or a postgres:// URL.`,
		SilenceUsage:      true,
		PersistentPreRunE: opts.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before reading configuration")

	cmd.AddCommand(newServeCmd(opts), newImportCmd(opts))
	return cmd
}

// Execute runs the command tree, printing any error to stderr.
func Execute() error {
	return NewRootCmd().Execute()
}

// load reads the env file, overriding existing values, then loads and
// validates the configuration and installs the logger.
func (o *rootOptions) load(cmd *cobra.Command, args []string) error {
	if err := godotenv.Overload(o.envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
			return fmt.Errorf("load env file %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	o.cfg = cfg

	slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))
	slog.Debug("configuration loaded", "config", cfg.String())
	return nil
}
