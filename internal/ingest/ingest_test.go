package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fiscalstack/fiscaudit/internal/store"
	"github.com/fiscalstack/fiscaudit/pkg/core"
)

func setupPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	st := store.New(nil)
	if err := st.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, nil), st
}

func TestPipeline_IngestCSV(t *testing.T) {
	p, st := setupPipeline(t)
	ctx := context.Background()
	data := []byte("CHAVE DE ACESSO;VALOR NOTA FISCAL\nkey-1;100,00\nkey-2;200,00\n")

	reports := p.IngestFile(ctx, "notas_maio.csv", data, false)
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.Status != core.IngestLoaded {
		t.Fatalf("expected loaded, got %q (%s)", r.Status, r.Error)
	}
	if r.Table != "notas_maio" || r.Rows != 2 {
		t.Errorf("unexpected report: %+v", r)
	}
	if r.Separator != ";" || r.Encoding != "utf-8" {
		t.Errorf("expected probe metadata in report: %+v", r)
	}

	_, rows, err := st.QueryRows(ctx, "SELECT chave_de_acesso FROM notas_maio ORDER BY chave_de_acesso")
	if err != nil {
		t.Fatalf("failed to read ingested rows: %v", err)
	}
	if len(rows) != 2 || rows[0]["chave_de_acesso"] != "key-1" {
		t.Errorf("unexpected stored rows: %v", rows)
	}
}

func TestPipeline_FingerprintCache(t *testing.T) {
	p, _ := setupPipeline(t)
	ctx := context.Background()
	data := []byte("chave;valor\nk1;10,00\n")

	first := p.IngestFile(ctx, "dados.csv", data, false)[0]
	if first.Status != core.IngestLoaded {
		t.Fatalf("expected loaded, got %q (%s)", first.Status, first.Error)
	}

	second := p.IngestFile(ctx, "dados.csv", data, false)[0]
	if second.Status != core.IngestSkippedCached {
		t.Fatalf("expected skipped_cached, got %q", second.Status)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Error("fingerprint should be stable across ingestions")
	}
}

func TestPipeline_ForceReloadTruncates(t *testing.T) {
	p, st := setupPipeline(t)
	ctx := context.Background()
	data := []byte("chave;valor\nk1;10,00\nk2;20,00\n")

	if r := p.IngestFile(ctx, "dados.csv", data, false)[0]; r.Status != core.IngestLoaded {
		t.Fatalf("expected loaded, got %q (%s)", r.Status, r.Error)
	}

	// Forced reload replaces rows instead of appending or skipping.
	r := p.IngestFile(ctx, "dados.csv", data, true)[0]
	if r.Status != core.IngestLoaded {
		t.Fatalf("expected loaded on force, got %q (%s)", r.Status, r.Error)
	}

	var count int
	if err := st.DB().QueryRow("SELECT COUNT(*) FROM dados").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows after forced reload, got %d", count)
	}
}

func TestPipeline_ReingestWithDivergingColumns(t *testing.T) {
	p, st := setupPipeline(t)
	ctx := context.Background()

	first := p.IngestFile(ctx, "dados.csv", []byte("chave;valor\nk1;10,00\n"), false)[0]
	if first.Status != core.IngestLoaded {
		t.Fatalf("expected loaded, got %q (%s)", first.Status, first.Error)
	}

	// Same table, one undeclared column: the extra values are dropped
	// with a warning and the file still loads.
	data := []byte("chave;valor;observacao\nk2;20,00;texto livre\n")
	second := p.IngestFile(ctx, "dados.csv", data, false)[0]
	if second.Status != core.IngestLoaded {
		t.Fatalf("expected loaded, got %q (%s)", second.Status, second.Error)
	}
	if len(second.Warnings) != 1 || !strings.Contains(second.Warnings[0], "observacao") {
		t.Errorf("expected a dropped-column warning, got %v", second.Warnings)
	}

	cols, err := st.TableColumns(ctx, "dados")
	if err != nil {
		t.Fatalf("failed to read columns: %v", err)
	}
	if len(cols) != 2 {
		t.Errorf("table layout must not grow on re-ingest, got %v", cols)
	}

	_, rows, err := st.QueryRows(ctx, "SELECT chave, valor FROM dados ORDER BY chave")
	if err != nil {
		t.Fatalf("failed to read rows: %v", err)
	}
	if len(rows) != 2 || rows[1]["chave"] != "k2" || rows[1]["valor"] != "20,00" {
		t.Errorf("expected shared columns to stay aligned, got %v", rows)
	}
}

func TestPipeline_UnsupportedExtension(t *testing.T) {
	p, _ := setupPipeline(t)

	r := p.IngestFile(context.Background(), "planilha.xlsx", []byte("x"), false)[0]
	if r.Status != core.IngestSkippedUnsupported {
		t.Fatalf("expected skipped_unsupported, got %q", r.Status)
	}
}

func TestPipeline_IngestXML_DuplicateKeySkipped(t *testing.T) {
	p, st := setupPipeline(t)
	ctx := context.Background()

	first := p.IngestFile(ctx, "nota.xml", []byte(sampleNFe), false)[0]
	if first.Status != core.IngestLoaded {
		t.Fatalf("expected loaded, got %q (%s)", first.Status, first.Error)
	}
	if first.Rows != 1 || first.Items != 2 {
		t.Errorf("expected 1 invoice with 2 items, got %+v", first)
	}

	// Same document under a different name: new fingerprint, same access
	// key. The invoice insert is skipped with a warning.
	renamed := append([]byte(sampleNFe), '\n')
	second := p.IngestFile(ctx, "nota_copia.xml", renamed, false)[0]
	if second.Status != core.IngestLoaded {
		t.Fatalf("expected loaded, got %q (%s)", second.Status, second.Error)
	}
	if second.Rows != 0 {
		t.Errorf("expected no new invoices, got %d", second.Rows)
	}
	if len(second.Warnings) != 1 {
		t.Errorf("expected a duplicate-key warning, got %v", second.Warnings)
	}

	var count int
	if err := st.DB().QueryRow("SELECT COUNT(*) FROM nfe_notas_fiscais").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected a single invoice row, got %d", count)
	}
}

func TestPipeline_IngestZIP(t *testing.T) {
	p, _ := setupPipeline(t)
	ctx := context.Background()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"notas.csv":   "chave;valor\nk1;10,00\n",
		"nota.xml":    sampleNFe,
		"leiame.txt":  "ignorar",
		"sub/img.png": "binário",
	} {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	reports := p.IngestFile(ctx, "remessa.zip", buf.Bytes(), false)
	if len(reports) != 4 {
		t.Fatalf("expected 4 reports, got %d: %+v", len(reports), reports)
	}

	byName := make(map[string]core.IngestionReport, len(reports))
	for _, r := range reports {
		byName[r.Filename] = r
	}
	if byName["notas.csv"].Status != core.IngestLoaded {
		t.Errorf("csv entry: %+v", byName["notas.csv"])
	}
	if byName["nota.xml"].Status != core.IngestLoaded {
		t.Errorf("xml entry: %+v", byName["nota.xml"])
	}
	if byName["leiame.txt"].Status != core.IngestSkippedUnsupported {
		t.Errorf("txt entry: %+v", byName["leiame.txt"])
	}
	if byName["img.png"].Status != core.IngestSkippedUnsupported {
		t.Errorf("png entry: %+v", byName["img.png"])
	}
}

func TestPipeline_InvalidZIP(t *testing.T) {
	p, _ := setupPipeline(t)

	reports := p.IngestFile(context.Background(), "ruim.zip", []byte("not a zip"), false)
	if len(reports) != 1 || reports[0].Status != core.IngestFailed {
		t.Fatalf("expected a single failed report, got %+v", reports)
	}
}
