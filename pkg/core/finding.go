package core

import "sort"

// Finding sources.
const (
	// SourceRule marks findings produced by the deterministic rule engine.
	SourceRule = "rule"
	// SourceAI marks findings produced by the AI analysis stage.
	SourceAI = "ai"
)

// AnnotationUnverified marks an AI finding that could not be re-derived
// by a deterministic check during fact-checking.
const AnnotationUnverified = "unverified"

// Finding is a single structured validation observation.
type Finding struct {
	RuleID      string         `json:"rule_id"`
	Severity    Severity       `json:"severity"`
	Subject     string         `json:"subject"`
	Message     string         `json:"message"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	Source      string         `json:"source"`
	Annotations []string       `json:"annotations,omitempty"`
}

// Annotate returns a copy of the finding with the annotation appended.
func (f Finding) Annotate(note string) Finding {
	annotated := f
	annotated.Annotations = append(append([]string(nil), f.Annotations...), note)
	return annotated
}

// SortFindings orders findings by subject key ascending. Callers group by
// rule before sorting so the fixed rule order is preserved.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Subject < findings[j].Subject
	})
}

// CountBySeverity returns the number of findings at the given severity.
func CountBySeverity(findings []Finding, severity Severity) int {
	n := 0
	for _, f := range findings {
		if f.Severity == severity {
			n++
		}
	}
	return n
}
