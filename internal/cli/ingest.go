package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

func newIngestCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Load CSV, XML or ZIP files into the database",
		Long: `Load fiscal documents into the local database.

CSV files become dynamically created tables named after the file. XML
files are parsed as NF-e documents into the invoice tables. ZIP
archives are expanded and their supported entries loaded. Files already
ingested (matched by content fingerprint) are skipped unless --force
is given.`,
		Example: `  # Load a monthly CSV export
  fiscaudit ingest 202505_NFe_NotaFiscal.csv

  # Load every supported file in a directory
  fiscaudit ingest ./notas/

  # Reload a file even if its fingerprint is cached
  fiscaudit ingest --force 202505_NFe_NotaFiscal.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cleanup, err := newCommandContext()
			if err != nil {
				return err
			}
			defer cleanup()

			files, err := expandPaths(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no supported files found in %s", strings.Join(args, ", "))
			}

			pipeline := ctx.ingestor()
			var reports []core.IngestionReport
			for _, path := range files {
				reports = append(reports, pipeline.IngestPath(cmd.Context(), path, force)...)
			}

			if err := renderReports(cmd.OutOrStdout(), reports, ctx.cfg.Output); err != nil {
				return err
			}

			failed := 0
			for _, r := range reports {
				if r.Status == core.IngestFailed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d file(s) failed to load", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reload files even when their fingerprint is cached")
	return cmd
}

// expandPaths resolves arguments to concrete files. Directories are
// walked for supported extensions; explicit files are passed through
// untouched so unsupported ones still produce a report.
func expandPaths(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".csv", ".xml", ".zip":
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
