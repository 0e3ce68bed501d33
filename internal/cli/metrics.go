package cli

import (
	"github.com/spf13/cobra"
)

func newMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show aggregate audit and query metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cleanup, err := newCommandContext()
			if err != nil {
				return err
			}
			defer cleanup()

			metrics, err := ctx.store.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			return renderMetrics(cmd.OutOrStdout(), metrics, ctx.cfg.Output)
		},
	}
}
