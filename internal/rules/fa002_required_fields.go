package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

func init() {
	Register(RequiredFields)
}

// RequiredFields flags documents with empty mandatory fields. Column
// aliases cover the naming differences between the fixed invoice table
// and dynamically ingested CSV layouts; only aliases that actually exist
// on the record's table are checked.
var RequiredFields = RuleDef{
	ID:          "FA-002",
	Name:        "documents.required_fields",
	Description: "Mandatory document fields must be filled.",
	Severity:    core.SeverityError,
	Check:       checkRequiredFields,
}

// requiredFieldAliases maps each canonical required field to the column
// names that may carry it.
var requiredFieldAliases = map[string][]string{
	"chave_de_acesso":   {"chave_de_acesso", "chave"},
	"cpf_cnpj_emitente": {"cpf_cnpj_emitente", "cnpj_emitente", "cpf_emitente"},
	"cnpj_destinatario": {"cnpj_destinatario", "dest_cpf", "cpf_destinatario"},
	"valor_nota_fiscal": {"valor_nota_fiscal"},
}

func checkRequiredFields(ctx context.Context, ds DataSource, accessKey string, th Thresholds) ([]core.Finding, error) {
	record, table, err := ds.LookupRecord(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	// One finding per missing field so each gap counts as its own
	// inconsistency.
	var findings []core.Finding
	for _, field := range th.RequiredFields {
		aliases := requiredFieldAliases[field]
		if len(aliases) == 0 {
			aliases = []string{field}
		}
		present := false
		filled := false
		for _, alias := range aliases {
			value, ok := record[alias]
			if !ok {
				continue
			}
			present = true
			if !isEmptyValue(value) {
				filled = true
				break
			}
		}
		if present && !filled {
			findings = append(findings, core.Finding{
				RuleID:   "FA-002",
				Severity: core.SeverityError,
				Subject:  accessKey,
				Message:  fmt.Sprintf("required field %s is empty", field),
				Evidence: map[string]any{"table": table, "field": field},
				Source:   core.SourceRule,
			})
		}
	}
	return findings, nil
}

func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(s) == ""
}
