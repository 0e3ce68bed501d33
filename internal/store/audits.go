package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// AppendAuditResult persists one audit outcome. The table is append-only:
// repeated audits of the same access key add rows, never update them.
// A missing ID is filled in and PersistedAt is set before the write.
func (s *Store) AppendAuditResult(ctx context.Context, result *core.AuditResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	result.PersistedAt = time.Now().UTC()

	findings, err := json.Marshal(result.Findings)
	if err != nil {
		return fmt.Errorf("failed to encode findings: %w", err)
	}
	if result.Findings == nil {
		findings = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_results (
			id, access_key, analyzer_version, status, document_count,
			total_value, inconsistencies, findings, narrative, ai_failure,
			duration_seconds, started_at, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		result.ID, result.AccessKey, string(result.AnalyzerVersion), string(result.Status),
		result.DocumentCount, result.TotalValue, result.Inconsistencies,
		string(findings), result.Narrative, result.AIFailure,
		result.Duration.Seconds(),
		result.StartedAt.UTC().Format(time.RFC3339Nano),
		result.PersistedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append audit result: %w", err)
	}
	return nil
}

// RecentAudits returns the newest audit rows, most recent first.
func (s *Store) RecentAudits(ctx context.Context, limit int) ([]core.AuditResult, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.selectAudits(ctx, `
		SELECT id, access_key, analyzer_version, status, document_count,
		       total_value, inconsistencies, findings, narrative, ai_failure,
		       duration_seconds, started_at, created_at
		FROM audit_results ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// AuditsByKey returns every audit of one access key, most recent first.
func (s *Store) AuditsByKey(ctx context.Context, accessKey string) ([]core.AuditResult, error) {
	return s.selectAudits(ctx, `
		SELECT id, access_key, analyzer_version, status, document_count,
		       total_value, inconsistencies, findings, narrative, ai_failure,
		       duration_seconds, started_at, created_at
		FROM audit_results WHERE access_key = ? ORDER BY created_at DESC, id DESC`, accessKey)
}

func (s *Store) selectAudits(ctx context.Context, query string, args ...any) ([]core.AuditResult, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit results: %w", err)
	}
	defer rows.Close()

	var results []core.AuditResult
	for rows.Next() {
		var (
			r                    core.AuditResult
			version, status      string
			findings             string
			narrative, aiFailure sql.NullString
			durationSecs         float64
			startedAt, createdAt string
		)
		if err := rows.Scan(&r.ID, &r.AccessKey, &version, &status, &r.DocumentCount,
			&r.TotalValue, &r.Inconsistencies, &findings, &narrative, &aiFailure,
			&durationSecs, &startedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit result: %w", err)
		}
		r.AnalyzerVersion = core.AnalyzerVersion(version)
		r.Status = core.AuditStatus(status)
		r.Narrative = narrative.String
		r.AIFailure = aiFailure.String
		r.Duration = time.Duration(durationSecs * float64(time.Second))
		if t, err := parseStoredTime(startedAt); err == nil {
			r.StartedAt = t
		}
		if t, err := parseStoredTime(createdAt); err == nil {
			r.PersistedAt = t
		}
		if err := json.Unmarshal([]byte(findings), &r.Findings); err != nil {
			return nil, fmt.Errorf("failed to decode findings for audit %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// parseStoredTime accepts both our RFC 3339 writes and SQLite's
// CURRENT_TIMESTAMP format.
func parseStoredTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// Statistics aggregates audit history, query history, and document counts
// into the dashboard metrics.
func (s *Store) Statistics(ctx context.Context) (*core.Metrics, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	m := &core.Metrics{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(document_count), 0),
		       COALESCE(SUM(total_value), 0),
		       COALESCE(SUM(inconsistencies), 0),
		       COALESCE(SUM(duration_seconds), 0)
		FROM audit_results`).Scan(
		&m.TotalAudits, &m.TotalDocuments, &m.TotalValue,
		&m.TotalInconsistencies, &m.TotalProcessingSecs)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit results: %w", err)
	}
	if m.TotalAudits > 0 {
		m.AvgProcessingSecs = m.TotalProcessingSecs / float64(m.TotalAudits)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM query_history").Scan(&m.TotalQueries); err != nil {
		return nil, fmt.Errorf("failed to count query history: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nfe_notas_fiscais").Scan(&m.Invoices); err != nil {
		return nil, fmt.Errorf("failed to count invoices: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nfe_itens_nota").Scan(&m.InvoiceItems); err != nil {
		return nil, fmt.Errorf("failed to count invoice items: %w", err)
	}
	return m, nil
}
