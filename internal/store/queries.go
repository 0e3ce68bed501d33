package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// AppendQueryRecord persists one natural-language query run. Like audit
// results, query history is append-only.
func (s *Store) AppendQueryRecord(ctx context.Context, record *core.QueryRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history (id, question, sql_text, row_count, answer, status, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		record.ID, record.Question, record.SQL, record.RowCount,
		record.Answer, string(record.Status),
		record.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append query record: %w", err)
	}
	return nil
}

// RecentQueries returns the newest query-history rows, most recent first.
func (s *Store) RecentQueries(ctx context.Context, limit int) ([]core.QueryRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, sql_text, row_count, answer, status, created_at
		FROM query_history ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []core.QueryRecord
	for rows.Next() {
		var (
			r             core.QueryRecord
			sqlText       sql.NullString
			answer        sql.NullString
			status, stamp string
		)
		if err := rows.Scan(&r.ID, &r.Question, &sqlText, &r.RowCount, &answer, &status, &stamp); err != nil {
			return nil, fmt.Errorf("failed to scan query record: %w", err)
		}
		r.SQL = sqlText.String
		r.Answer = answer.String
		r.Status = core.QueryStatus(status)
		if t, err := parseStoredTime(stamp); err == nil {
			r.CreatedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
