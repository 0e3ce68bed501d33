package core

// Metrics holds dashboard aggregates over audit and query history.
type Metrics struct {
	TotalAudits          int64   `json:"total_audits"`
	TotalDocuments       int64   `json:"total_documents"`
	TotalValue           float64 `json:"total_value"`
	TotalInconsistencies int64   `json:"total_inconsistencies"`
	TotalProcessingSecs  float64 `json:"total_processing_seconds"`
	AvgProcessingSecs    float64 `json:"average_processing_seconds"`
	TotalQueries         int64   `json:"total_queries"`
	Invoices             int64   `json:"invoices"`
	InvoiceItems         int64   `json:"invoice_items"`
}
