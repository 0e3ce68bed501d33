// Package llm wraps the chat-completion provider used for SQL
// generation, narrative formatting, and escalated fiscal analysis. All
// deterministic work stays outside this package; callers treat provider
// failures as degraded service, not fatal errors.
package llm

import (
	"context"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// Attempt carries a failed SQL generation so the retry prompt can show
// the model what went wrong.
type Attempt struct {
	SQL string
	Err string
}

// Analysis is the structured outcome of an escalated AI review.
type Analysis struct {
	Findings  []core.Finding
	Narrative string
}

// Provider is the AI surface of the audit and query pipelines.
type Provider interface {
	// GenerateSQL produces a single SQLite SELECT statement answering the
	// question against the schema. previous, when set, describes the last
	// failed attempt for the bounded retry.
	GenerateSQL(ctx context.Context, question, schema string, previous *Attempt) (string, error)

	// FormatNarrative renders query results as a short natural-language
	// answer in Portuguese.
	FormatNarrative(ctx context.Context, question, sql string, rows []map[string]any) (string, error)

	// AnalyzeFindings reviews a document with its deterministic findings
	// and returns the AI's own findings plus a narrative.
	AnalyzeFindings(ctx context.Context, record map[string]any, findings []core.Finding) (*Analysis, error)
}
