package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// renderRows renders a result set in the configured output format.
func renderRows(w io.Writer, cols []string, rows []map[string]any, format string) error {
	switch format {
	case "json":
		return renderJSON(w, rows)
	case "csv":
		return renderCSV(w, cols, rows)
	case "md", "markdown":
		return renderMarkdown(w, cols, rows)
	default:
		return renderTable(w, cols, rows)
	}
}

func renderTable(w io.Writer, cols []string, rows []map[string]any) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(cols))
	for i, col := range cols {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, result := range rows {
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[i] = formatValue(result[col])
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return nil
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderCSV(w io.Writer, cols []string, rows []map[string]any) error {
	_, _ = fmt.Fprintln(w, strings.Join(cols, ","))
	for _, result := range rows {
		values := make([]string, len(cols))
		for i, col := range cols {
			values[i] = escapeCSV(formatValue(result[col]))
		}
		_, _ = fmt.Fprintln(w, strings.Join(values, ","))
	}
	return nil
}

func renderMarkdown(w io.Writer, cols []string, rows []map[string]any) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(cols, " | "))
	seps := make([]string, len(cols))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	for _, result := range rows {
		values := make([]string, len(cols))
		for i, col := range cols {
			values[i] = formatValue(result[col])
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(values, " | "))
	}
	return nil
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// renderReports renders ingestion reports.
func renderReports(w io.Writer, reports []core.IngestionReport, format string) error {
	if format == "json" {
		return renderJSON(w, reports)
	}

	cols := []string{"file", "status", "table", "rows", "items", "warnings"}
	rows := make([]map[string]any, 0, len(reports))
	for _, r := range reports {
		detail := strings.Join(r.Warnings, "; ")
		if r.Error != "" {
			detail = r.Error
		}
		rows = append(rows, map[string]any{
			"file":     r.Filename,
			"status":   string(r.Status),
			"table":    r.Table,
			"rows":     r.Rows,
			"items":    r.Items,
			"warnings": detail,
		})
	}
	return renderRows(w, cols, rows, format)
}

// renderAuditResult renders a single audit outcome: a summary line, the
// findings, and the AI narrative when present.
func renderAuditResult(w io.Writer, result *core.AuditResult, format string) error {
	if format == "json" {
		return renderJSON(w, result)
	}

	_, _ = fmt.Fprintf(w, "Audit %s: %s (%d finding(s), %.3fs)\n",
		result.AccessKey, result.Status, len(result.Findings), result.Duration.Seconds())

	if len(result.Findings) > 0 {
		cols := []string{"rule", "severity", "source", "message"}
		rows := make([]map[string]any, 0, len(result.Findings))
		for _, f := range result.Findings {
			message := f.Message
			if len(f.Annotations) > 0 {
				message = fmt.Sprintf("%s [%s]", message, strings.Join(f.Annotations, ", "))
			}
			rows = append(rows, map[string]any{
				"rule":     f.RuleID,
				"severity": f.Severity.String(),
				"source":   f.Source,
				"message":  message,
			})
		}
		if err := renderRows(w, cols, rows, format); err != nil {
			return err
		}
	}

	if result.Narrative != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", result.Narrative)
	}
	if result.AIFailure != "" {
		_, _ = fmt.Fprintf(w, "\nAI stage unavailable: %s\n", result.AIFailure)
	}
	return nil
}

// renderAnswer renders a natural-language query answer.
func renderAnswer(w io.Writer, answer *core.Answer, format string) error {
	if format == "json" {
		return renderJSON(w, answer)
	}

	if len(answer.Rows) > 0 {
		if err := renderRows(w, answer.Columns, answer.Rows, format); err != nil {
			return err
		}
	}
	if answer.Narrative != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", answer.Narrative)
	}
	return nil
}

// renderMetrics renders aggregate processing metrics.
func renderMetrics(w io.Writer, m *core.Metrics, format string) error {
	if format == "json" {
		return renderJSON(w, m)
	}

	cols := []string{"metric", "value"}
	rows := []map[string]any{
		{"metric": "total_audits", "value": m.TotalAudits},
		{"metric": "total_documents", "value": m.TotalDocuments},
		{"metric": "total_value", "value": fmt.Sprintf("%.2f", m.TotalValue)},
		{"metric": "total_inconsistencies", "value": m.TotalInconsistencies},
		{"metric": "avg_processing_secs", "value": fmt.Sprintf("%.3f", m.AvgProcessingSecs)},
		{"metric": "total_queries", "value": m.TotalQueries},
		{"metric": "invoices", "value": m.Invoices},
		{"metric": "invoice_items", "value": m.InvoiceItems},
	}
	return renderRows(w, cols, rows, format)
}
