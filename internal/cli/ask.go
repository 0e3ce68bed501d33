package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func newAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a natural-language question about the data",
		Long: `Ask a question in natural language. The AI translates it into a
read-only SQL query, runs it against the database, and answers with
both the raw rows and a narrative summary.

When invoked without arguments on a terminal, enters interactive mode.`,
		Example: `  # One-shot question
  fiscaudit ask "qual o valor total das notas de maio?"

  # Interactive session
  fiscaudit ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cleanup, err := newCommandContext()
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 0 && isTerminal(os.Stdin) {
				return runAskREPL(cmd, ctx)
			}

			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("empty question")
			}

			answer, err := ctx.queries().Ask(cmd.Context(), question)
			if err != nil {
				return err
			}
			return renderAnswer(cmd.OutOrStdout(), answer, ctx.cfg.Output)
		},
	}
	return cmd
}

func runAskREPL(cmd *cobra.Command, ctx *commandContext) error {
	historyFile := filepath.Join(filepath.Dir(ctx.cfg.Database), ".fiscaudit_ask_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fiscaudit> ",
		HistoryFile:     historyFile,
		AutoComplete:    newTableCompleter(cmd.Context(), ctx, ".help", ".tables", ".quit", ".exit"),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize interactive mode: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Fiscaudit interactive mode (database: %s)\n", ctx.cfg.Database)
	_, _ = fmt.Fprintln(out, "Ask a question, or type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(out)

	pipeline := ctx.queries()
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if quit := handleAskDotCommand(cmd, ctx, line); quit {
				break
			}
			continue
		}

		answer, err := pipeline.Ask(cmd.Context(), line)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}
		if err := renderAnswer(out, answer, ctx.cfg.Output); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(out)
	}

	return nil
}

func handleAskDotCommand(cmd *cobra.Command, ctx *commandContext, line string) (quit bool) {
	out := cmd.OutOrStdout()

	switch strings.ToLower(strings.Fields(line)[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		_, _ = fmt.Fprintln(out, `
Commands:
  .help           Show this help message
  .tables         List the loaded tables
  .quit / .exit   Exit interactive mode

Anything else is treated as a question about the data.`)

	case ".tables":
		tables, err := ctx.store.UserTables(cmd.Context())
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			return false
		}
		for _, t := range tables {
			_, _ = fmt.Fprintf(out, "  %s (%d rows)\n", t.Name, t.RowCount)
		}

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", line)
	}
	return false
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
