package ingest

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// Candidate separators, tried in order.
var separatorCandidates = []rune{';', ',', '\t', '|'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVData is a decoded CSV source: original header names plus data rows.
type CSVData struct {
	Headers   []string
	Rows      [][]string
	Encoding  string
	Separator string
}

// decodeText returns the file content as UTF-8. Valid UTF-8 passes
// through; anything else is treated as Windows-1252, which covers the
// Latin-1 exports SEFAZ tooling produces.
func decodeText(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", err
	}
	return string(decoded), "windows-1252", nil
}

// sniffSeparator picks the separator that yields at least two columns
// consistently across the first lines. ok is false when no candidate
// qualifies.
func sniffSeparator(text string) (rune, bool) {
	lines := sampleLines(text, 5)
	if len(lines) == 0 {
		return 0, false
	}
	for _, sep := range separatorCandidates {
		cols := -1
		consistent := true
		for _, line := range lines {
			n := fieldCount(line, sep)
			if n < 2 {
				consistent = false
				break
			}
			if cols == -1 {
				cols = n
			} else if n != cols {
				consistent = false
				break
			}
		}
		if consistent && cols >= 2 {
			return sep, true
		}
	}
	return 0, false
}

func sampleLines(text string, max int) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == max {
			break
		}
	}
	return lines
}

// fieldCount counts separator-delimited fields respecting double quotes.
func fieldCount(line string, sep rune) int {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = sep
	r.LazyQuotes = true
	record, err := r.Read()
	if err != nil {
		return 0
	}
	return len(record)
}

// parseCSV decodes and parses a CSV file, probing encoding and separator.
// Rows shorter than the header are padded; fields are whitespace-trimmed.
func parseCSV(filename string, data []byte) (*CSVData, error) {
	text, encoding, err := decodeText(data)
	if err != nil {
		return nil, &core.UnreadableFileError{Filename: filename, Reason: err.Error()}
	}

	sep, ok := sniffSeparator(text)
	if !ok {
		return nil, &core.UnreadableFileError{
			Filename: filename,
			Reason:   "no candidate separator yields a consistent column layout",
		}
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sep
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, &core.UnreadableFileError{Filename: filename, Reason: err.Error()}
	}
	if len(records) == 0 {
		return nil, &core.UnreadableFileError{Filename: filename, Reason: "file has no rows"}
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([][]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make([]string, len(headers))
		empty := true
		for i := range headers {
			if i < len(record) {
				row[i] = strings.TrimSpace(record[i])
			}
			if row[i] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}

	return &CSVData{
		Headers:   headers,
		Rows:      rows,
		Encoding:  encoding,
		Separator: string(sep),
	}, nil
}
