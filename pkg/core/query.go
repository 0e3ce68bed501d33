package core

import "time"

// QueryStatus is the terminal state of a natural-language query run.
type QueryStatus string

// Query statuses.
const (
	// QueryStatusAnswered means SQL executed and a narrative was produced.
	QueryStatusAnswered QueryStatus = "answered"
	// QueryStatusEmpty means the SQL ran but returned zero rows; the fixed
	// empty-result narrative was used without a second model call.
	QueryStatusEmpty QueryStatus = "empty"
	// QueryStatusFailed means SQL generation exhausted its retry budget.
	QueryStatusFailed QueryStatus = "failed"
)

// QueryRecord is one append-only query-history row.
type QueryRecord struct {
	ID        string      `json:"id"`
	Question  string      `json:"question"`
	SQL       string      `json:"sql"`
	RowCount  int         `json:"row_count"`
	Answer    string      `json:"answer"`
	Status    QueryStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// Answer is the caller-facing result of the query pipeline.
type Answer struct {
	Question  string           `json:"question"`
	SQL       string           `json:"sql"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Narrative string           `json:"narrative"`
	Status    QueryStatus      `json:"status"`
}
