// Package cli provides the fiscaudit command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fiscalstack/fiscaudit/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fiscaudit",
		Short: "Fiscaudit - NF-e fiscal document audit engine",
		Long: `Fiscaudit ingests Brazilian electronic invoice data (CSV, XML, ZIP)
into a local SQLite database, validates it with deterministic fiscal
rules, escalates suspicious documents to an AI analyst, and answers
natural-language questions about the data.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			var err error
			cfg, err = config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			if cfg.Verbose {
				fmt.Fprintf(os.Stderr, "Using database: %s\n", cfg.Database)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
NF-e fiscal document audit engine
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./fiscaudit.yaml)")
	rootCmd.PersistentFlags().String("database", "", "Path to the SQLite database")
	rootCmd.PersistentFlags().String("model", "", "AI model to use")
	rootCmd.PersistentFlags().String("analyzer", "", "Audit analyzer version (v1|v2)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (table|json|csv|markdown)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "csv", "markdown"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("analyzer", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"v1", "v2"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newIngestCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newAskCommand())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newMetricsCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// currentConfig returns the loaded configuration, falling back to pure
// defaults when PersistentPreRunE has not run (tests).
func currentConfig() *config.Config {
	if cfg != nil {
		return cfg
	}
	loaded, err := config.Load("", nil)
	if err != nil {
		return &config.Config{Database: config.DefaultDatabase, Output: config.DefaultOutput}
	}
	return loaded
}

func currentLogger() *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.DiscardHandler)
}
