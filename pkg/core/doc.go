// Package core defines the shared value types of the fiscal-audit engine:
// findings, audit results, ingestion reports, query history records, and
// the typed error taxonomy. It has no dependencies on the storage or
// pipeline packages so every layer can exchange these types freely.
package core
