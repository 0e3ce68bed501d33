package core

import "time"

// AuditStatus is the terminal status of an audit run.
type AuditStatus string

// Audit statuses.
const (
	// AuditStatusClean means the rule engine found nothing and the AI stage
	// was never invoked.
	AuditStatusClean AuditStatus = "clean"
	// AuditStatusIssuesFound means deterministic findings exist; the AI stage
	// either was skipped, failed, or added nothing.
	AuditStatusIssuesFound AuditStatus = "issues_found"
	// AuditStatusAIEscalated means the AI stage contributed findings on top
	// of the deterministic ones.
	AuditStatusAIEscalated AuditStatus = "ai_escalated"
	// AuditStatusError means the run itself failed before producing findings.
	AuditStatusError AuditStatus = "error"
)

// AnalyzerVersion selects the audit strategy.
type AnalyzerVersion string

// Analyzer versions.
const (
	// AnalyzerDirectAI sends the record straight to the AI stage (v1).
	AnalyzerDirectAI AnalyzerVersion = "v1"
	// AnalyzerRuleFirst runs the deterministic rule engine first and
	// escalates to AI only when findings exist (v2).
	AnalyzerRuleFirst AnalyzerVersion = "v2"
)

// AuditResult is one append-only audit outcome row.
type AuditResult struct {
	ID              string          `json:"id"`
	AccessKey       string          `json:"access_key"`
	AnalyzerVersion AnalyzerVersion `json:"analyzer_version"`
	Status          AuditStatus     `json:"status"`
	DocumentCount   int             `json:"document_count"`
	TotalValue      float64         `json:"total_value"`
	Inconsistencies int             `json:"inconsistencies"`
	Findings        []Finding       `json:"findings"`
	Narrative       string          `json:"narrative,omitempty"`
	// AIFailure records a failed or timed-out AI call. The run still
	// persists with deterministic findings; this is metadata, not an error.
	AIFailure  string        `json:"ai_failure,omitempty"`
	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	PersistedAt time.Time    `json:"persisted_at"`
}
