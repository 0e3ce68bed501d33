package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// ingestZIP ingests every supported entry of a ZIP archive. Unsupported
// entries (including nested archives) are reported as skipped rather
// than failing the batch.
func (p *Pipeline) ingestZIP(ctx context.Context, filename string, data []byte, force bool) []core.IngestionReport {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return []core.IngestionReport{{
			Filename: filename,
			Status:   core.IngestFailed,
			Error:    "invalid zip archive: " + err.Error(),
		}}
	}

	var reports []core.IngestionReport
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(entry.Name)
		if strings.HasPrefix(name, ".") {
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".csv" && ext != ".xml" {
			reports = append(reports, core.IngestionReport{
				Filename: name,
				Status:   core.IngestSkippedUnsupported,
			})
			continue
		}

		content, err := readZipEntry(entry)
		if err != nil {
			reports = append(reports, core.IngestionReport{
				Filename: name,
				Status:   core.IngestFailed,
				Error:    err.Error(),
			})
			continue
		}
		reports = append(reports, p.IngestFile(ctx, name, content, force)...)
	}

	if len(reports) == 0 {
		reports = append(reports, core.IngestionReport{
			Filename: filename,
			Status:   core.IngestFailed,
			Error:    "archive contains no supported files",
		})
	}
	return reports
}

func readZipEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
