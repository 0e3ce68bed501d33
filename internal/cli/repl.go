package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

// newTableCompleter creates a readline completer over the loaded table
// names plus the given dot-commands.
func newTableCompleter(ctx context.Context, c *commandContext, dotCommands ...string) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface

	tables, err := c.store.UserTables(ctx)
	if err == nil {
		for _, t := range tables {
			items = append(items, readline.PcItem(t.Name))
		}
	}
	for _, dc := range dotCommands {
		items = append(items, readline.PcItem(dc))
	}
	return readline.NewPrefixCompleter(items...)
}

func runQueryREPL(cmd *cobra.Command, ctx *commandContext) error {
	historyFile := filepath.Join(filepath.Dir(ctx.cfg.Database), ".fiscaudit_query_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fiscaudit> ",
		HistoryFile:     historyFile,
		AutoComplete:    newTableCompleter(cmd.Context(), ctx, ".help", ".tables", ".schema", ".quit", ".exit"),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Fiscaudit SQL REPL (database: %s)\n", ctx.cfg.Database)
	_, _ = fmt.Fprintln(out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(out)

	pipeline := ctx.queries()

	// Accumulate multi-line SQL until a semicolon.
	var buffer strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buffer.Reset()
			rl.SetPrompt("fiscaudit> ")
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") && buffer.Len() == 0 {
			if quit := handleQueryDotCommand(cmd, ctx, line); quit {
				break
			}
			continue
		}

		buffer.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buffer.WriteString(" ")
			rl.SetPrompt("      ...> ")
			continue
		}
		rl.SetPrompt("fiscaudit> ")

		sqlQuery := strings.TrimSuffix(buffer.String(), ";")
		buffer.Reset()

		answer, err := pipeline.Execute(cmd.Context(), sqlQuery)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}
		if err := renderRows(out, answer.Columns, answer.Rows, ctx.cfg.Output); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(out)
	}

	return nil
}

func handleQueryDotCommand(cmd *cobra.Command, ctx *commandContext, line string) (quit bool) {
	out := cmd.OutOrStdout()
	parts := strings.Fields(line)

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		_, _ = fmt.Fprintln(out, `
Commands:
  .help           Show this help message
  .tables         List the loaded tables
  .schema <name>  Show the columns of a table
  .quit / .exit   Exit the REPL

SQL statements must end with a semicolon (;). Only SELECT is allowed.`)

	case ".tables":
		tables, err := ctx.store.UserTables(cmd.Context())
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			return false
		}
		for _, t := range tables {
			_, _ = fmt.Fprintf(out, "  %s (%d rows)\n", t.Name, t.RowCount)
		}

	case ".schema":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .schema <table>")
			return false
		}
		columns, err := ctx.store.TableColumns(cmd.Context(), parts[1])
		if err != nil || len(columns) == 0 {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: table %q not found\n", parts[1])
			return false
		}
		for _, c := range columns {
			_, _ = fmt.Fprintf(out, "  %s\n", c)
		}

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", parts[0])
	}
	return false
}
