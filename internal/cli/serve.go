package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fiscalstack/fiscaudit/internal/api"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server exposing upload, audit, query, metrics
and history endpoints. Blocks until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := newCommandContext()
			if err != nil {
				return err
			}
			defer cleanup()

			if addr == "" {
				addr = cmdCtx.cfg.Server.Addr
			}

			srv := api.NewServer(api.Config{
				Store:   cmdCtx.store,
				Ingest:  cmdCtx.ingestor(),
				Auditor: cmdCtx.auditor(),
				Queries: cmdCtx.queries(),
				Addr:    addr,
				Logger:  cmdCtx.logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
