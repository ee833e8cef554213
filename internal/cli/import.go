package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/policyimport/internal/core"
)

type importFlags struct {
	store    string
	encoding string
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	flags := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import one CSV file and print a summary",
		Long: `Import one CSV file without the HTTP server.

Rows that fail to insert are reported but do not stop the import. The command
exits non-zero only when the store, the schema or the source file fails.`,
		Example: `  policyimport import polizas.csv
  policyimport import polizas.csv --store postgres://app@localhost/policies
  policyimport import export.csv --encoding windows-1252`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *opts.cfg
			if flags.store != "" {
				cfg.Store.Path = flags.store
			}
			if flags.encoding != "" {
				cfg.Import.SourceEncoding = flags.encoding
			}

			importer, err := newImporter(&cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runImport(ctx, cmd.OutOrStdout(), importer, cfg.Store.Path, args[0])
		},
	}

	cmd.Flags().StringVar(&flags.store, "store", "", "SQLite path or postgres:// URL (default $STORE_PATH)")
	cmd.Flags().StringVar(&flags.encoding, "encoding", "", "Source charset: utf-8, windows-1252, iso-8859-1 (default $IMPORT_SOURCE_ENCODING)")
	return cmd
}

func runImport(ctx context.Context, out io.Writer, importer *core.Importer, storePath, sourcePath string) error {
	res, err := importer.Import(ctx, storePath, sourcePath)
	if err != nil {
		return err
	}
	printSummary(out, res)
	return nil
}

func printSummary(out io.Writer, res *core.Result) {
	fmt.Fprintln(out, res.Message())
	fmt.Fprintf(out, "rows read: %d\n", res.RowsRead)
	fmt.Fprintf(out, "inserted: %d into %s, %d into %s\n",
		res.ImportInserted, res.ImportTable, res.AggregateInserted, res.AggregateTable)
	if res.Failed == 0 {
		return
	}

	fmt.Fprintf(out, "failed rows: %d\n", res.Failed)
	for _, f := range res.Failures {
		fmt.Fprintf(out, "  line %d (%s): %s\n", f.Line, f.Table, f.Message())
	}
	if hidden := res.Failed - len(res.Failures); hidden > 0 {
		fmt.Fprintf(out, "  ... %d more\n", hidden)
	}
}
