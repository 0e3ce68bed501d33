package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

func newAuditCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "audit [access-key]",
		Short: "Audit fiscal documents",
		Long: `Audit one document by its access key, or every known document
with --all.

Deterministic validation rules run first. Documents with findings are
escalated to the AI analyst, whose observations are fact-checked
against the database before being accepted. Every run is appended to
the audit history.`,
		Example: `  # Audit a single document
  fiscaudit audit 35240512345678000190550010000000011000000011

  # Audit everything
  fiscaudit audit --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("provide an access key or --all")
			}

			ctx, cleanup, err := newCommandContext()
			if err != nil {
				return err
			}
			defer cleanup()

			auditor := ctx.auditor()
			out := cmd.OutOrStdout()

			if all {
				results, err := auditor.AuditAll(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.cfg.Output == "json" {
					return renderJSON(out, results)
				}
				for i, result := range results {
					if i > 0 {
						fmt.Fprintln(out)
					}
					if err := renderAuditResult(out, result, ctx.cfg.Output); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "\nAudited %d document(s)\n", len(results))
				return summarize(results)
			}

			result, err := auditor.AuditKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := renderAuditResult(out, result, ctx.cfg.Output); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Audit every known access key")
	return cmd
}

// summarize returns an error when any run ended in the error status, so
// the exit code reflects broken audits without hiding the rendered output.
func summarize(results []*core.AuditResult) error {
	failed := 0
	for _, r := range results {
		if r.Status == core.AuditStatusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d audit(s) failed", failed)
	}
	return nil
}
