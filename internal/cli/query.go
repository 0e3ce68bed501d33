package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newQueryCommand() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a read-only SQL query against the database",
		Long: `Run a SQL query directly against the local database.

Only single SELECT statements are accepted; everything else is
rejected before execution.`,
		Example: `  # Execute SQL directly
  fiscaudit query 'SELECT COUNT(*) FROM nfe_notas_fiscais'

  # Read SQL from a file
  fiscaudit query -i relatorio.sql

  # List the loaded tables
  fiscaudit query tables

  # Show the columns of a table
  fiscaudit query schema nfe_notas_fiscais`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cleanup, err := newCommandContext()
			if err != nil {
				return err
			}
			defer cleanup()

			var sqlQuery string
			switch {
			case len(args) > 0:
				sqlQuery = strings.Join(args, " ")
			case input != "":
				content, err := os.ReadFile(input)
				if err != nil {
					return fmt.Errorf("failed to read file: %w", err)
				}
				sqlQuery = string(content)
			case !isTerminal(os.Stdin):
				content, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				sqlQuery = string(content)
			default:
				// No input, TTY detected - enter REPL mode
				return runQueryREPL(cmd, ctx)
			}

			answer, err := ctx.queries().Execute(cmd.Context(), sqlQuery)
			if err != nil {
				return err
			}
			return renderRows(cmd.OutOrStdout(), answer.Columns, answer.Rows, ctx.cfg.Output)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Read SQL from file")

	cmd.AddCommand(newQueryTablesCommand())
	cmd.AddCommand(newQuerySchemaCommand())
	return cmd
}

func newQueryTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the loaded tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cleanup, err := newCommandContext()
			if err != nil {
				return err
			}
			defer cleanup()

			tables, err := ctx.store.UserTables(cmd.Context())
			if err != nil {
				return err
			}

			cols := []string{"table", "columns", "rows"}
			rows := make([]map[string]any, 0, len(tables))
			for _, t := range tables {
				rows = append(rows, map[string]any{
					"table":   t.Name,
					"columns": len(t.Columns),
					"rows":    t.RowCount,
				})
			}
			return renderRows(cmd.OutOrStdout(), cols, rows, ctx.cfg.Output)
		},
	}
}

func newQuerySchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cleanup, err := newCommandContext()
			if err != nil {
				return err
			}
			defer cleanup()

			columns, err := ctx.store.TableColumns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(columns) == 0 {
				return fmt.Errorf("table %q not found", args[0])
			}

			cols := []string{"column"}
			rows := make([]map[string]any, 0, len(columns))
			for _, c := range columns {
				rows = append(rows, map[string]any{"column": c})
			}
			return renderRows(cmd.OutOrStdout(), cols, rows, ctx.cfg.Output)
		},
	}
}
