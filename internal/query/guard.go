package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// forbiddenKeywords are statement types and pragmas that mutate state or
// escape the database. Matched on word boundaries so column names like
// "updated_at" pass.
var forbiddenKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|replace|truncate|attach|detach|pragma|vacuum|reindex)\b`)

// Guard verifies that generated SQL is a single pure read. Anything else
// is rejected before it ever reaches the database.
func Guard(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &core.UnsafeQueryError{SQL: sql, Reason: "empty statement"}
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return &core.UnsafeQueryError{SQL: sql, Reason: "only SELECT statements are allowed"}
	}

	if strings.Contains(strings.TrimSuffix(trimmed, ";"), ";") {
		return &core.UnsafeQueryError{SQL: sql, Reason: "multiple statements are not allowed"}
	}

	if m := forbiddenKeywords.FindString(trimmed); m != "" {
		return &core.UnsafeQueryError{SQL: sql, Reason: "forbidden keyword " + strings.ToUpper(m)}
	}
	return nil
}

var (
	limitClause  = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	aggregateFns = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max|total)\s*\(`)
	groupBy      = regexp.MustCompile(`(?i)\bgroup\s+by\b`)
)

// ApplyLimit appends a LIMIT to listing queries that lack one. Pure
// aggregations return a single row and are left alone; grouped
// aggregations can still explode and get capped.
func ApplyLimit(sql string, maxRows int) string {
	if maxRows <= 0 || limitClause.MatchString(sql) {
		return sql
	}
	if aggregateFns.MatchString(sql) && !groupBy.MatchString(sql) {
		return sql
	}
	return strings.TrimSuffix(strings.TrimSpace(sql), ";") + " LIMIT " + strconv.Itoa(maxRows)
}
