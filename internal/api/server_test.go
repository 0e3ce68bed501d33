package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalstack/fiscaudit/internal/audit"
	"github.com/fiscalstack/fiscaudit/internal/ingest"
	"github.com/fiscalstack/fiscaudit/internal/llm"
	"github.com/fiscalstack/fiscaudit/internal/query"
	"github.com/fiscalstack/fiscaudit/internal/rules"
	"github.com/fiscalstack/fiscaudit/internal/store"
	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// stubProvider answers with canned SQL and narratives.
type stubProvider struct {
	sql string
}

func (p *stubProvider) GenerateSQL(context.Context, string, string, *llm.Attempt) (string, error) {
	if p.sql == "" {
		return "", &core.AIUnavailableError{Op: "sql generation", Err: errors.New("no script")}
	}
	return p.sql, nil
}

func (p *stubProvider) FormatNarrative(context.Context, string, string, []map[string]any) (string, error) {
	return "resposta narrada", nil
}

func (p *stubProvider) AnalyzeFindings(context.Context, map[string]any, []core.Finding) (*llm.Analysis, error) {
	return &llm.Analysis{Narrative: "análise concluída"}, nil
}

func setupServer(t *testing.T, provider llm.Provider) (*Server, *store.Store) {
	t.Helper()

	st := store.New(nil)
	require.NoError(t, st.Open(":memory:"))
	t.Cleanup(func() { st.Close() })

	engine := rules.NewEngine(st, rules.DefaultThresholds(), nil)
	auditor := audit.New(audit.Config{Store: st, Engine: engine, Provider: provider})
	queries := query.New(query.Config{Store: st, Provider: provider})
	pipeline := ingest.New(st, nil)

	srv := NewServer(Config{
		Store:   st,
		Ingest:  pipeline,
		Auditor: auditor,
		Queries: queries,
		Addr:    ":0",
	})
	return srv, st
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	srv, st := setupServer(t, &stubProvider{})
	router := srv.Routes()

	csv := "Chave de Acesso;Valor Nota Fiscal\nkey-1;100,00\nkey-2;250,50\n"
	body, contentType := multipartBody(t, "notas.csv", csv)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reports []core.IngestionReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, core.IngestLoaded, reports[0].Status)
	assert.Equal(t, 2, reports[0].Rows)

	tables, err := st.UserTables(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(tables))
	for _, tbl := range tables {
		names = append(names, tbl.Name)
	}
	assert.Contains(t, names, "notas")
}

func TestHandleUpload_SecondUploadHitsCache(t *testing.T) {
	srv, _ := setupServer(t, &stubProvider{})
	router := srv.Routes()

	csv := "Chave de Acesso;Valor\nkey-1;10,00\n"
	for i, want := range []core.IngestStatus{core.IngestLoaded, core.IngestSkippedCached} {
		body, contentType := multipartBody(t, "notas.csv", csv)
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var reports []core.IngestionReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reports))
		require.Len(t, reports, 1, "upload %d", i)
		assert.Equal(t, want, reports[0].Status, "upload %d", i)
	}
}

func TestHandleUpload_NoFiles(t *testing.T) {
	srv, _ := setupServer(t, &stubProvider{})
	router := srv.Routes()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAuditKey(t *testing.T) {
	srv, st := setupServer(t, &stubProvider{})
	router := srv.Routes()

	ctx := context.Background()
	handle, err := st.ResolveTable(ctx, "notas", []string{"chave_de_acesso", "cpf_cnpj_emitente", "cnpj_destinatario", "valor_nota_fiscal"})
	require.NoError(t, err)
	require.NoError(t, st.InsertRows(ctx, handle.Name, handle.Columns,
		[][]string{{"key-1", "11111111000191", "22222222000191", "100,00"}}))

	req := httptest.NewRequest(http.MethodPost, "/api/audits/key-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result core.AuditResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "key-1", result.AccessKey)
	assert.Equal(t, core.AuditStatusClean, result.Status)

	// The result is persisted and shows up in history.
	histReq := httptest.NewRequest(http.MethodGet, "/api/history/audits", nil)
	histRec := httptest.NewRecorder()
	router.ServeHTTP(histRec, histReq)
	require.Equal(t, http.StatusOK, histRec.Code)

	var audits []core.AuditResult
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &audits))
	require.Len(t, audits, 1)
	assert.Equal(t, "key-1", audits[0].AccessKey)
}

func TestHandleAsk(t *testing.T) {
	srv, st := setupServer(t, &stubProvider{sql: `SELECT "chave_de_acesso" FROM notas`})
	router := srv.Routes()

	ctx := context.Background()
	handle, err := st.ResolveTable(ctx, "notas", []string{"chave_de_acesso"})
	require.NoError(t, err)
	require.NoError(t, st.InsertRows(ctx, handle.Name, handle.Columns, [][]string{{"key-1"}}))

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question": "quais as chaves?"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var answer core.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, core.QueryStatusAnswered, answer.Status)
	assert.Equal(t, "resposta narrada", answer.Narrative)
}

func TestHandleAsk_MissingQuestion(t *testing.T) {
	srv, _ := setupServer(t, &stubProvider{})
	router := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQuery_UnsafeRejected(t *testing.T) {
	srv, _ := setupServer(t, &stubProvider{})
	router := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/api/query",
		strings.NewReader(`{"sql": "DROP TABLE notas"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "DROP TABLE notas")
}

func TestHandleMetrics(t *testing.T) {
	srv, _ := setupServer(t, &stubProvider{})
	router := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var metrics core.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, int64(0), metrics.TotalAudits)
}

func TestHandleQueryHistory_Limit(t *testing.T) {
	srv, st := setupServer(t, &stubProvider{})
	router := srv.Routes()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, st.AppendQueryRecord(ctx, &core.QueryRecord{
			Question: "pergunta",
			SQL:      "SELECT 1",
			Status:   core.QueryStatusAnswered,
		}))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history/queries?limit=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var records []core.QueryRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}
