package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show audit and query history",
	}
	cmd.AddCommand(newHistoryAuditsCommand())
	cmd.AddCommand(newHistoryQueriesCommand())
	return cmd
}

func newHistoryAuditsCommand() *cobra.Command {
	var limit int
	var key string

	cmd := &cobra.Command{
		Use:   "audits",
		Short: "Show recent audit runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cleanup, err := newCommandContext()
			if err != nil {
				return err
			}
			defer cleanup()

			var audits []core.AuditResult
			if key != "" {
				audits, err = ctx.store.AuditsByKey(cmd.Context(), key)
			} else {
				audits, err = ctx.store.RecentAudits(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			if ctx.cfg.Output == "json" {
				return renderJSON(cmd.OutOrStdout(), audits)
			}

			cols := []string{"when", "access_key", "analyzer", "status", "findings", "inconsistencies", "duration"}
			rows := make([]map[string]any, 0, len(audits))
			for _, a := range audits {
				rows = append(rows, map[string]any{
					"when":            a.PersistedAt.Format("2006-01-02 15:04:05"),
					"access_key":      a.AccessKey,
					"analyzer":        string(a.AnalyzerVersion),
					"status":          string(a.Status),
					"findings":        len(a.Findings),
					"inconsistencies": a.Inconsistencies,
					"duration":        fmt.Sprintf("%.3fs", a.Duration.Seconds()),
				})
			}
			return renderRows(cmd.OutOrStdout(), cols, rows, ctx.cfg.Output)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().StringVar(&key, "key", "", "Show every run for one access key")
	return cmd
}

func newHistoryQueriesCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show recent natural-language queries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cleanup, err := newCommandContext()
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := ctx.store.RecentQueries(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if ctx.cfg.Output == "json" {
				return renderJSON(cmd.OutOrStdout(), records)
			}

			cols := []string{"when", "status", "rows", "question", "answer"}
			rows := make([]map[string]any, 0, len(records))
			for _, r := range records {
				rows = append(rows, map[string]any{
					"when":     r.CreatedAt.Format("2006-01-02 15:04:05"),
					"status":   string(r.Status),
					"rows":     r.RowCount,
					"question": truncate(r.Question, 60),
					"answer":   truncate(r.Answer, 80),
				})
			}
			return renderRows(cmd.OutOrStdout(), cols, rows, ctx.cfg.Output)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of queries to show")
	return cmd
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
