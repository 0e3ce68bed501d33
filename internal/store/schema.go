package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// reservedTables are system tables that dynamic ingestion may never target.
var reservedTables = map[string]bool{
	"audit_results":    true,
	"query_history":    true,
	"ingested_files":   true,
	"goose_db_version": true,
	"sqlite_sequence":  true,
}

// TableHandle describes a resolved ingestion target.
type TableHandle struct {
	Name    string
	Columns []string
	Created bool
	// Warnings reports non-fatal column mismatches against an already
	// existing table definition.
	Warnings []string
}

// asciiFold strips diacritics so "razão social" sanitizes to
// "razao_social" rather than keeping accented identifiers.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeColumnName normalizes a source column name for SQLite:
// lower-case, diacritics folded, non-alphanumerics replaced with
// underscores, runs collapsed, and a leading digit prefixed.
func SanitizeColumnName(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}
	lower := strings.ToLower(folded)

	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	sanitized := b.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		return "col"
	}
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "_" + sanitized
	}
	return sanitized
}

// SanitizeTableName normalizes a source file name (without extension)
// into a table name. Names not starting with a letter get a "t_" prefix.
func SanitizeTableName(source string) string {
	name := SanitizeColumnName(source)
	if name == "" || !(name[0] >= 'a' && name[0] <= 'z') {
		name = strings.TrimPrefix(name, "_")
		name = "t_" + name
	}
	return name
}

// SanitizeColumns sanitizes a full column set, disambiguating names that
// collide after sanitization with an ordinal suffix.
func SanitizeColumns(columns []string) []string {
	counts := make(map[string]int, len(columns))
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		name := SanitizeColumnName(col)
		counts[name]++
		if n := counts[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		out = append(out, name)
	}
	return out
}

// Fingerprint computes the content hash used to detect already-ingested
// files.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// quoteIdent escapes a SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ResolveTable maps a source name and column set to a concrete table,
// creating it when absent. Dynamic columns are always TEXT; the fixed
// NF-e tables keep their declared types. Resolution fails with a
// SchemaConflictError when the name collides with a system table.
func (s *Store) ResolveTable(ctx context.Context, sourceName string, columns []string) (*TableHandle, error) {
	name := SanitizeTableName(sourceName)
	if reservedTables[name] || strings.HasPrefix(name, "sqlite_") {
		return nil, &core.SchemaConflictError{Table: name, Reason: "collides with a reserved system table"}
	}

	sanitized := SanitizeColumns(columns)
	handle := &TableHandle{Name: name, Columns: sanitized}

	existing, err := s.TableColumns(ctx, name)
	if err != nil {
		return nil, err
	}

	if len(existing) > 0 {
		// Idempotent resolution: undeclared incoming columns are dropped
		// from the handle and reported as non-fatal warnings, so a reload
		// with a diverging layout still inserts the columns both sides
		// share.
		declared := make(map[string]bool, len(existing))
		for _, col := range existing {
			declared[col] = true
		}
		kept := make([]string, 0, len(sanitized))
		for _, col := range sanitized {
			if !declared[col] {
				handle.Warnings = append(handle.Warnings,
					fmt.Sprintf("column %q not declared on existing table %q, values dropped", col, name))
				continue
			}
			kept = append(kept, col)
		}
		handle.Columns = kept
		return handle, nil
	}

	defs := make([]string, 0, len(sanitized))
	for _, col := range sanitized {
		defs = append(defs, quoteIdent(col)+" TEXT")
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", name, err)
	}
	handle.Created = true
	s.logger.Debug("created dynamic table", "table", name, "columns", len(sanitized))
	return handle, nil
}

// TableColumns returns the declared column names of a table, or nil when
// the table does not exist.
func (s *Store) TableColumns(ctx context.Context, table string) ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read table info for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &primaryKey); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// TruncateTable removes all rows from a table without dropping it. Used
// by forced reloads so an existing table definition survives.
func (s *Store) TruncateTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+quoteIdent(table)); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", table, err)
	}
	return nil
}

// InsertRows inserts row values into the named columns of a table inside
// a single transaction.
func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return fmt.Errorf("prepare insert for %s: %w", table, err)
		}
		defer stmt.Close()
		for _, row := range rows {
			args := make([]any, len(columns))
			for i := range columns {
				if i < len(row) {
					args[i] = row[i]
				} else {
					args[i] = nil
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert into %s: %w", table, err)
			}
		}
		return nil
	})
}

// HasFingerprint reports whether a file content hash is already registered.
func (s *Store) HasFingerprint(ctx context.Context, hash string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("database not opened")
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM ingested_files WHERE fingerprint = ?", hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	return true, nil
}

// RegisterFingerprint records a content hash with the table it produced.
// Re-registering an existing hash updates the row count and filename.
func (s *Store) RegisterFingerprint(ctx context.Context, hash, filename, table string, rowCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingested_files (fingerprint, filename, table_name, row_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			filename = excluded.filename,
			row_count = excluded.row_count`,
		hash, filename, table, rowCount)
	if err != nil {
		return fmt.Errorf("failed to register fingerprint: %w", err)
	}
	return nil
}

// TableInfo describes one user-visible table for schema rendering.
type TableInfo struct {
	Name     string
	Columns  []string
	RowCount int64
}

// UserTables lists all tables except system/bookkeeping ones, with their
// columns and row counts, ordered by name.
func (s *Store) UserTables(ctx context.Context) ([]TableInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		if name == "goose_db_version" || name == "ingested_files" {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	sort.Strings(names)

	infos := make([]TableInfo, 0, len(names))
	for _, name := range names {
		cols, err := s.TableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		var count int64
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		infos = append(infos, TableInfo{Name: name, Columns: cols, RowCount: count})
	}
	return infos, nil
}

// SchemaDescription renders the current schema as text for the SQL
// generation prompt.
func (s *Store) SchemaDescription(ctx context.Context) (string, error) {
	infos, err := s.UserTables(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Database schema:\n")
	for _, info := range infos {
		fmt.Fprintf(&b, "\nTable: %s (%d rows)\nColumns: %s\n",
			info.Name, info.RowCount, strings.Join(info.Columns, ", "))
	}
	return b.String(), nil
}
