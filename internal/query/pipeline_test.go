package query

import (
	"context"
	"errors"
	"testing"

	"github.com/fiscalstack/fiscaudit/internal/llm"
	"github.com/fiscalstack/fiscaudit/internal/store"
	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// scriptedProvider returns queued SQL statements in order and counts
// narrative calls.
type scriptedProvider struct {
	statements     []string
	sqlCalls       int
	narrativeCalls int
	lastPrevious   *llm.Attempt
}

func (s *scriptedProvider) GenerateSQL(_ context.Context, _, _ string, previous *llm.Attempt) (string, error) {
	s.lastPrevious = previous
	if s.sqlCalls >= len(s.statements) {
		return "", &core.AIUnavailableError{Op: "sql generation", Err: errors.New("script exhausted")}
	}
	sql := s.statements[s.sqlCalls]
	s.sqlCalls++
	return sql, nil
}

func (s *scriptedProvider) FormatNarrative(_ context.Context, _, _ string, rows []map[string]any) (string, error) {
	s.narrativeCalls++
	return "resposta narrada", nil
}

func (s *scriptedProvider) AnalyzeFindings(context.Context, map[string]any, []core.Finding) (*llm.Analysis, error) {
	return nil, errors.New("not used in queries")
}

func setupQuery(t *testing.T, provider llm.Provider) (*Pipeline, *store.Store) {
	t.Helper()
	st := store.New(nil)
	if err := st.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	handle, err := st.ResolveTable(ctx, "notas", []string{"chave_de_acesso", "valor_nota_fiscal"})
	if err != nil {
		t.Fatalf("failed to resolve table: %v", err)
	}
	rows := [][]string{{"key-1", "100,00"}, {"key-2", "250,50"}}
	if err := st.InsertRows(ctx, handle.Name, handle.Columns, rows); err != nil {
		t.Fatalf("failed to seed rows: %v", err)
	}

	return New(Config{Store: st, Provider: provider}), st
}

func TestGuard(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		unsafe bool
	}{
		{"plain select", `SELECT * FROM notas`, false},
		{"cte", `WITH t AS (SELECT 1) SELECT * FROM t`, false},
		{"lowercase select", `select count(*) from notas`, false},
		{"column named updated_at passes", `SELECT "updated_at" FROM notas`, false},
		{"delete", `DELETE FROM notas`, true},
		{"drop", `DROP TABLE notas`, true},
		{"multiple statements", `SELECT 1; DELETE FROM notas`, true},
		{"nested write", `SELECT * FROM notas WHERE id IN (DELETE FROM notas)`, true},
		{"pragma", `PRAGMA journal_mode = DELETE`, true},
		{"empty", `   `, true},
		{"trailing semicolon ok", `SELECT 1;`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Guard(tt.sql)
			if tt.unsafe && err == nil {
				t.Fatalf("expected rejection of %q", tt.sql)
			}
			if !tt.unsafe && err != nil {
				t.Fatalf("expected %q to pass, got %v", tt.sql, err)
			}
			if tt.unsafe {
				var unsafeErr *core.UnsafeQueryError
				if !errors.As(err, &unsafeErr) {
					t.Fatalf("expected UnsafeQueryError, got %T", err)
				}
			}
		})
	}
}

func TestApplyLimit(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"listing gets limit", `SELECT * FROM notas`, `SELECT * FROM notas LIMIT 100`},
		{"existing limit kept", `SELECT * FROM notas LIMIT 5`, `SELECT * FROM notas LIMIT 5`},
		{"aggregate untouched", `SELECT COUNT(*) FROM notas`, `SELECT COUNT(*) FROM notas`},
		{"sum untouched", `SELECT SUM(CAST("valor" AS REAL)) FROM notas`, `SELECT SUM(CAST("valor" AS REAL)) FROM notas`},
		{"grouped aggregate capped", `SELECT uf, COUNT(*) FROM notas GROUP BY uf`, `SELECT uf, COUNT(*) FROM notas GROUP BY uf LIMIT 100`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplyLimit(tt.sql, 100); got != tt.want {
				t.Errorf("ApplyLimit(%q) = %q, want %q", tt.sql, got, tt.want)
			}
		})
	}
}

func TestAsk_Answered(t *testing.T) {
	provider := &scriptedProvider{statements: []string{`SELECT "chave_de_acesso" FROM notas`}}
	p, st := setupQuery(t, provider)

	answer, err := p.Ask(context.Background(), "quais as chaves?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Status != core.QueryStatusAnswered {
		t.Errorf("expected answered, got %q", answer.Status)
	}
	if len(answer.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(answer.Rows))
	}
	if answer.Narrative != "resposta narrada" {
		t.Errorf("unexpected narrative: %q", answer.Narrative)
	}

	records, err := st.RecentQueries(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(records) != 1 || records[0].Status != core.QueryStatusAnswered || records[0].RowCount != 2 {
		t.Errorf("unexpected history: %+v", records)
	}
}

func TestAsk_EmptyResultSkipsNarrativeCall(t *testing.T) {
	provider := &scriptedProvider{statements: []string{`SELECT * FROM notas WHERE "chave_de_acesso" = 'nada'`}}
	p, st := setupQuery(t, provider)

	answer, err := p.Ask(context.Background(), "existe a chave nada?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Status != core.QueryStatusEmpty {
		t.Errorf("expected empty status, got %q", answer.Status)
	}
	if answer.Narrative != EmptyResultNarrative {
		t.Errorf("expected fixed narrative, got %q", answer.Narrative)
	}
	if provider.narrativeCalls != 0 {
		t.Errorf("empty results must not spend a narrative call, got %d", provider.narrativeCalls)
	}

	records, err := st.RecentQueries(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(records) != 1 || records[0].Status != core.QueryStatusEmpty {
		t.Errorf("unexpected history: %+v", records)
	}
}

func TestAsk_UnsafeNeverExecuted(t *testing.T) {
	provider := &scriptedProvider{statements: []string{`DELETE FROM notas`}}
	p, st := setupQuery(t, provider)

	_, err := p.Ask(context.Background(), "apague tudo")
	var unsafeErr *core.UnsafeQueryError
	if !errors.As(err, &unsafeErr) {
		t.Fatalf("expected UnsafeQueryError, got %v", err)
	}

	// The data is untouched.
	var count int
	if err := st.DB().QueryRow("SELECT COUNT(*) FROM notas").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("unsafe statement must never execute, %d rows remain", count)
	}

	records, err := st.RecentQueries(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(records) != 1 || records[0].Status != core.QueryStatusFailed {
		t.Errorf("failed attempt must be recorded: %+v", records)
	}
}

func TestAsk_RetryWithErrorContext(t *testing.T) {
	provider := &scriptedProvider{statements: []string{
		`SELECT "nao_existe" FROM notas`,
		`SELECT "chave_de_acesso" FROM notas`,
	}}
	p, _ := setupQuery(t, provider)

	answer, err := p.Ask(context.Background(), "quais as chaves?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Status != core.QueryStatusAnswered {
		t.Errorf("expected answered after retry, got %q", answer.Status)
	}
	if provider.sqlCalls != 2 {
		t.Errorf("expected 2 generation calls, got %d", provider.sqlCalls)
	}
	if provider.lastPrevious == nil || provider.lastPrevious.Err == "" {
		t.Error("retry must carry the previous SQL error")
	}
}

func TestAsk_RetryBudgetExhausted(t *testing.T) {
	provider := &scriptedProvider{statements: []string{
		`SELECT "nao_existe" FROM notas`,
		`SELECT "tambem_nao" FROM notas`,
	}}
	p, st := setupQuery(t, provider)

	_, err := p.Ask(context.Background(), "pergunta impossível")
	var genFailed *core.QueryGenerationFailedError
	if !errors.As(err, &genFailed) {
		t.Fatalf("expected QueryGenerationFailedError, got %v", err)
	}
	if genFailed.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", genFailed.Attempts)
	}

	records, err := st.RecentQueries(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(records) != 1 || records[0].Status != core.QueryStatusFailed {
		t.Fatalf("exhausted run must be recorded as failed: %+v", records)
	}
	if records[0].SQL != `SELECT "tambem_nao" FROM notas LIMIT 100` {
		t.Errorf("history must carry the last attempted SQL, got %q", records[0].SQL)
	}
}

func TestExecute_RawGuarded(t *testing.T) {
	p, _ := setupQuery(t, &scriptedProvider{})
	ctx := context.Background()

	answer, err := p.Execute(ctx, `SELECT COUNT(*) AS n FROM notas`)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if answer.Status != core.QueryStatusAnswered || len(answer.Rows) != 1 {
		t.Errorf("unexpected answer: %+v", answer)
	}

	if _, err := p.Execute(ctx, `DROP TABLE notas`); err == nil {
		t.Fatal("raw surface must reject writes")
	}
}
