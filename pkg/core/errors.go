package core

import "fmt"

// UnreadableFileError means a CSV file could not be parsed with any
// candidate encoding/separator combination.
type UnreadableFileError struct {
	Filename string
	Reason   string
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("unreadable file %s: %s", e.Filename, e.Reason)
}

// MalformedDocumentError means an XML document is missing required
// structural elements.
type MalformedDocumentError struct {
	Filename string
	Reason   string
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document %s: %s", e.Filename, e.Reason)
}

// SchemaConflictError means a resolved table name collides with a
// reserved or system table. Ingestion for the source is rejected,
// not silently renamed.
type SchemaConflictError struct {
	Table  string
	Reason string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict on table %q: %s", e.Table, e.Reason)
}

// UnsafeQueryError means generated SQL is not a pure read. The statement
// is never sent to the database.
type UnsafeQueryError struct {
	SQL    string
	Reason string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("unsafe query rejected: %s", e.Reason)
}

// QueryGenerationFailedError means the SQL generation retry budget was
// exhausted. It carries the last attempted SQL and error for diagnostics.
type QueryGenerationFailedError struct {
	Question string
	LastSQL  string
	LastErr  string
	Attempts int
}

func (e *QueryGenerationFailedError) Error() string {
	return fmt.Sprintf("query generation failed after %d attempts: %s (last sql: %s)",
		e.Attempts, e.LastErr, e.LastSQL)
}

// AIUnavailableError means a provider call failed or timed out. Non-fatal
// for audits, fatal for the query pipeline once the retry budget is spent.
type AIUnavailableError struct {
	Op  string
	Err error
}

func (e *AIUnavailableError) Error() string {
	return fmt.Sprintf("ai provider unavailable during %s: %v", e.Op, e.Err)
}

func (e *AIUnavailableError) Unwrap() error { return e.Err }
