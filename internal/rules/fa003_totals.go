package rules

import (
	"context"
	"fmt"
	"math"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

func init() {
	Register(TotalsConsistency)
}

// TotalsConsistency compares a document's declared total against the sum
// of its line items. The rule only fires when both sides exist: CSV-only
// documents without line items produce nothing here.
var TotalsConsistency = RuleDef{
	ID:          "FA-003",
	Name:        "documents.totals_consistency",
	Description: "Declared invoice total must match the line-item sum within tolerance.",
	Severity:    core.SeverityWarning,
	Check:       checkTotalsConsistency,
}

func checkTotalsConsistency(ctx context.Context, ds DataSource, accessKey string, th Thresholds) ([]core.Finding, error) {
	declared, hasDeclared, err := ds.DeclaredTotal(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	if !hasDeclared {
		return nil, nil
	}
	items, hasItems, err := ds.ItemsTotal(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	if !hasItems {
		return nil, nil
	}

	diff := math.Abs(declared - items)
	if diff <= th.Tolerance {
		return nil, nil
	}

	return []core.Finding{{
		RuleID:   "FA-003",
		Severity: core.SeverityWarning,
		Subject:  accessKey,
		Message: fmt.Sprintf("declared total %.2f differs from item sum %.2f by %.2f",
			declared, items, diff),
		Evidence: map[string]any{
			"declared_total": declared,
			"items_total":    items,
			"difference":     diff,
			"tolerance":      th.Tolerance,
		},
		Source: core.SourceRule,
	}}, nil
}
