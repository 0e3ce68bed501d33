package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

func init() {
	Register(DuplicateRecords)
}

// DuplicateRecords flags access keys that appear more than once inside
// any document-level table. Line-item tables never participate, so an
// invoice with many items is not a duplicate.
var DuplicateRecords = RuleDef{
	ID:          "FA-001",
	Name:        "documents.duplicate_records",
	Description: "Access key appears more than once in a document table.",
	Severity:    core.SeverityError,
	Check:       checkDuplicateRecords,
}

func checkDuplicateRecords(ctx context.Context, ds DataSource, accessKey string, _ Thresholds) ([]core.Finding, error) {
	counts, err := ds.KeyOccurrences(ctx, accessKey)
	if err != nil {
		return nil, err
	}

	var duplicated []string
	total := 0
	evidence := make(map[string]any)
	for table, n := range counts {
		if n > 1 {
			duplicated = append(duplicated, table)
			evidence[table] = n
			total += n
		}
	}
	if len(duplicated) == 0 {
		return nil, nil
	}
	sort.Strings(duplicated)

	// One finding per key regardless of how many tables duplicate it.
	// Literal rule ID: naming the RuleDef here would cycle through Check.
	return []core.Finding{{
		RuleID:   "FA-001",
		Severity: core.SeverityError,
		Subject:  accessKey,
		Message: fmt.Sprintf("access key %s appears %d times in %s",
			accessKey, total, strings.Join(duplicated, ", ")),
		Evidence: evidence,
		Source:   core.SourceRule,
	}}, nil
}
