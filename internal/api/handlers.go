package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// maxUploadBytes caps multipart uploads at 64 MiB.
const maxUploadBytes = 64 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps the typed error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		unsafeErr     *core.UnsafeQueryError
		malformed     *core.MalformedDocumentError
		unreadable    *core.UnreadableFileError
		conflict      *core.SchemaConflictError
		genFailed     *core.QueryGenerationFailedError
		aiUnavailable *core.AIUnavailableError
	)
	switch {
	case errors.As(err, &unsafeErr):
		status = http.StatusBadRequest
	case errors.As(err, &malformed), errors.As(err, &unreadable):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &genFailed):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &aiUnavailable):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// handleUpload ingests one or more uploaded files. Accepts multipart
// form data with any number of "file" parts. ?force=true bypasses the
// fingerprint cache.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart request: " + err.Error()})
		return
	}

	var reports []core.IngestionReport
	for _, headers := range r.MultipartForm.File {
		for _, header := range headers {
			part, err := header.Open()
			if err != nil {
				s.writeError(w, err)
				return
			}
			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				s.writeError(w, err)
				return
			}
			reports = append(reports, s.ingest.IngestFile(r.Context(), header.Filename, data, force)...)
		}
	}

	if len(reports) == 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no files in request"})
		return
	}
	s.writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleAuditKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	result, err := s.auditor.AuditKey(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAuditAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.auditor.AuditAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be {\"question\": \"...\"}"})
		return
	}

	answer, err := s.queries.Ask(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

type queryRequest struct {
	SQL string `json:"sql"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SQL == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be {\"sql\": \"...\"}"})
		return
	}

	answer, err := s.queries.Execute(r.Context(), req.SQL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.store.UserTables(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.store.Statistics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, metrics)
}

// historyLimit parses the ?limit query parameter, defaulting to 20.
func historyLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 20
}

type historyResponse struct {
	Audits  []core.AuditResult `json:"audits"`
	Queries []core.QueryRecord `json:"queries"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := historyLimit(r)
	audits, err := s.store.RecentAudits(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	queries, err := s.store.RecentQueries(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, historyResponse{Audits: audits, Queries: queries})
}

func (s *Server) handleAuditHistory(w http.ResponseWriter, r *http.Request) {
	audits, err := s.store.RecentAudits(r.Context(), historyLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, audits)
}

func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	queries, err := s.store.RecentQueries(r.Context(), historyLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, queries)
}
