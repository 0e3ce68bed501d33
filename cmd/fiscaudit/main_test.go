// Package main provides tests for the fiscaudit CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fiscalstack/fiscaudit/internal/cli"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := runCommand(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(output, "fiscaudit") {
		t.Errorf("version output should contain 'fiscaudit', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	output, err := runCommand(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	expectedCommands := []string{"ingest", "audit", "ask", "query", "metrics", "history", "serve"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, output)
		}
	}
}

func TestIngestAndQueryCommands(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	csvPath := filepath.Join(tmpDir, "notas.csv")

	csv := "Chave de Acesso;Valor Nota Fiscal\nkey-1;100,00\nkey-2;250,50\n"
	if err := os.WriteFile(csvPath, []byte(csv), 0600); err != nil {
		t.Fatal(err)
	}

	output, err := runCommand(t, "--database", dbPath, "ingest", csvPath)
	if err != nil {
		t.Fatalf("ingest command error = %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "loaded") {
		t.Errorf("ingest output should report the file as loaded, got: %s", output)
	}

	output, err = runCommand(t, "--database", dbPath, "query", "tables")
	if err != nil {
		t.Fatalf("query tables error = %v", err)
	}
	if !strings.Contains(output, "notas") {
		t.Errorf("query tables should list the ingested table, got: %s", output)
	}

	output, err = runCommand(t, "--database", dbPath, "query", `SELECT COUNT(*) AS n FROM notas`)
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	if !strings.Contains(output, "2") {
		t.Errorf("query should count 2 rows, got: %s", output)
	}
}

func TestQueryCommand_RejectsWrites(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	_, err := runCommand(t, "--database", dbPath, "query", "DROP TABLE nfe_notas_fiscais")
	if err == nil {
		t.Fatal("query command must reject non-SELECT statements")
	}
}

func TestAuditCommand_RequiresKeyOrAll(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	_, err := runCommand(t, "--database", dbPath, "audit")
	if err == nil {
		t.Fatal("audit without a key or --all should fail")
	}
}

func TestMetricsCommand(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	output, err := runCommand(t, "--database", dbPath, "metrics")
	if err != nil {
		t.Fatalf("metrics command error = %v", err)
	}
	if !strings.Contains(output, "total_audits") {
		t.Errorf("metrics output should contain 'total_audits', got: %s", output)
	}
}
