package core

// IngestStatus describes the outcome of ingesting one source file.
type IngestStatus string

// Ingestion statuses.
const (
	// IngestLoaded means rows were parsed and persisted.
	IngestLoaded IngestStatus = "loaded"
	// IngestSkippedCached means the file's fingerprint was already
	// registered and storage was not touched.
	IngestSkippedCached IngestStatus = "skipped_cached"
	// IngestSkippedUnsupported means a ZIP entry had an unrecognized
	// extension and was skipped, not errored.
	IngestSkippedUnsupported IngestStatus = "skipped_unsupported"
	// IngestFailed means the file could not be parsed; the error is
	// captured in the report so one bad file never aborts a batch.
	IngestFailed IngestStatus = "failed"
)

// IngestionReport summarizes one ingested source file.
type IngestionReport struct {
	Filename    string       `json:"filename"`
	Table       string       `json:"table,omitempty"`
	Status      IngestStatus `json:"status"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	// Rows is the number of header/data rows inserted.
	Rows int `json:"rows"`
	// Items is the number of NF-e line items inserted (XML only).
	Items    int      `json:"items"`
	Encoding string   `json:"encoding,omitempty"`
	Separator string  `json:"separator,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}
