// Package ingest loads fiscal source files into the store: CSV exports
// with encoding/separator probing, NF-e XML documents and batches, and
// ZIP archives of either. Every file is fingerprinted so re-ingesting
// the same content is a cheap no-op.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fiscalstack/fiscaudit/internal/store"
	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// Pipeline ingests source files into the store.
type Pipeline struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates an ingestion pipeline.
func New(st *store.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{store: st, logger: logger}
}

// IngestPath reads and ingests a file from disk.
func (p *Pipeline) IngestPath(ctx context.Context, path string, force bool) []core.IngestionReport {
	data, err := os.ReadFile(path)
	if err != nil {
		return []core.IngestionReport{{
			Filename: filepath.Base(path),
			Status:   core.IngestFailed,
			Error:    err.Error(),
		}}
	}
	return p.IngestFile(ctx, filepath.Base(path), data, force)
}

// IngestFile ingests one file by content. ZIP archives yield one report
// per entry; everything else yields exactly one. Parse and storage
// failures are captured in the report so one bad file never aborts a
// batch. force bypasses the fingerprint cache and reloads the data.
func (p *Pipeline) IngestFile(ctx context.Context, filename string, data []byte, force bool) []core.IngestionReport {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return []core.IngestionReport{p.ingestCSV(ctx, filename, data, force)}
	case ".xml":
		return []core.IngestionReport{p.ingestXML(ctx, filename, data, force)}
	case ".zip":
		return p.ingestZIP(ctx, filename, data, force)
	default:
		p.logger.Warn("skipping unsupported file", "filename", filename)
		return []core.IngestionReport{{
			Filename: filename,
			Status:   core.IngestSkippedUnsupported,
		}}
	}
}

func (p *Pipeline) ingestCSV(ctx context.Context, filename string, data []byte, force bool) core.IngestionReport {
	report := core.IngestionReport{Filename: filename, Fingerprint: store.Fingerprint(data)}

	if cached, done := p.checkFingerprint(ctx, &report, force); done {
		return cached
	}

	parsed, err := parseCSV(filename, data)
	if err != nil {
		return failed(report, err)
	}
	report.Encoding = parsed.Encoding
	report.Separator = parsed.Separator

	sourceName := strings.TrimSuffix(filename, filepath.Ext(filename))
	handle, err := p.store.ResolveTable(ctx, sourceName, parsed.Headers)
	if err != nil {
		return failed(report, err)
	}
	report.Table = handle.Name
	report.Warnings = append(report.Warnings, handle.Warnings...)

	rows := parsed.Rows
	if !handle.Created {
		if len(handle.Columns) == 0 {
			return failed(report, fmt.Errorf("no column of %s matches table %s", filename, handle.Name))
		}
		rows = projectColumns(parsed.Headers, handle.Columns, rows)
	}

	if force && !handle.Created {
		if err := p.store.TruncateTable(ctx, handle.Name); err != nil {
			return failed(report, err)
		}
	}

	if err := p.store.InsertRows(ctx, handle.Name, handle.Columns, rows); err != nil {
		return failed(report, err)
	}
	if err := p.store.RegisterFingerprint(ctx, report.Fingerprint, filename, handle.Name, len(parsed.Rows)); err != nil {
		return failed(report, err)
	}

	report.Status = core.IngestLoaded
	report.Rows = len(parsed.Rows)
	p.logger.Info("csv ingested",
		"filename", filename, "table", handle.Name, "rows", report.Rows,
		"encoding", parsed.Encoding, "separator", parsed.Separator)
	return report
}

func (p *Pipeline) ingestXML(ctx context.Context, filename string, data []byte, force bool) core.IngestionReport {
	report := core.IngestionReport{Filename: filename, Fingerprint: store.Fingerprint(data), Table: "nfe_notas_fiscais"}

	if cached, done := p.checkFingerprint(ctx, &report, force); done {
		return cached
	}

	invoices, err := parseXML(filename, data)
	if err != nil {
		return failed(report, err)
	}

	for _, inv := range invoices {
		_, isNew, err := p.store.InsertInvoice(ctx, inv.Header, inv.Items)
		if err != nil {
			return failed(report, err)
		}
		if !isNew {
			report.Warnings = append(report.Warnings,
				"access key "+inv.Header.AccessKey+" already loaded, skipped")
			continue
		}
		report.Rows++
		report.Items += len(inv.Items)
	}

	if err := p.store.RegisterFingerprint(ctx, report.Fingerprint, filename, report.Table, report.Rows); err != nil {
		return failed(report, err)
	}

	report.Status = core.IngestLoaded
	p.logger.Info("xml ingested",
		"filename", filename, "invoices", report.Rows, "items", report.Items,
		"skipped", len(report.Warnings))
	return report
}

// checkFingerprint short-circuits when the content hash is already
// registered and the caller did not force a reload.
func (p *Pipeline) checkFingerprint(ctx context.Context, report *core.IngestionReport, force bool) (core.IngestionReport, bool) {
	if force {
		return core.IngestionReport{}, false
	}
	known, err := p.store.HasFingerprint(ctx, report.Fingerprint)
	if err != nil {
		return failed(*report, err), true
	}
	if known {
		p.logger.Info("file already ingested, skipping", "filename", report.Filename)
		report.Status = core.IngestSkippedCached
		return *report, true
	}
	return core.IngestionReport{}, false
}

// projectColumns keeps only the row values whose header survived table
// resolution, preserving the alignment between columns and values.
func projectColumns(headers, kept []string, rows [][]string) [][]string {
	if len(kept) == len(headers) {
		return rows
	}
	declared := make(map[string]bool, len(kept))
	for _, col := range kept {
		declared[col] = true
	}
	keep := make([]int, 0, len(kept))
	for i, col := range store.SanitizeColumns(headers) {
		if declared[col] {
			keep = append(keep, i)
		}
	}

	out := make([][]string, len(rows))
	for r, row := range rows {
		projected := make([]string, len(keep))
		for j, i := range keep {
			if i < len(row) {
				projected[j] = row[i]
			}
		}
		out[r] = projected
	}
	return out
}

func failed(report core.IngestionReport, err error) core.IngestionReport {
	report.Status = core.IngestFailed
	report.Error = err.Error()
	return report
}
