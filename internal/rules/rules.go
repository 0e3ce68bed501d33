// Package rules provides the deterministic validation rules applied to
// ingested fiscal records. Rules are data-driven definitions registered
// from init() functions, executed in fixed ID order so repeated audits
// of the same data produce identical findings.
package rules

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// DataSource is the read surface rules check against. Implemented by
// the store.
type DataSource interface {
	// AllAccessKeys lists every distinct access key across document-level
	// tables, sorted.
	AllAccessKeys(ctx context.Context) ([]string, error)
	// KeyOccurrences counts rows per document-level table for a key.
	KeyOccurrences(ctx context.Context, accessKey string) (map[string]int, error)
	// LookupRecord returns the first document row for a key as a column
	// map plus the table it came from.
	LookupRecord(ctx context.Context, accessKey string) (map[string]any, string, error)
	// DeclaredTotal returns the parsed declared invoice total for a key.
	DeclaredTotal(ctx context.Context, accessKey string) (float64, bool, error)
	// ItemsTotal sums the parsed line-item totals for a key.
	ItemsTotal(ctx context.Context, accessKey string) (float64, bool, error)
}

// Thresholds tunes rule behavior.
type Thresholds struct {
	// Tolerance is the maximum accepted absolute difference, in currency
	// units, between a declared total and the line-item sum.
	Tolerance float64
	// RequiredFields are the canonical column names every document must
	// fill. Only fields whose columns exist on the record's table are
	// checked, so partial CSV layouts don't drown in noise.
	RequiredFields []string
}

// DefaultThresholds returns the standard rule configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Tolerance: 1.00,
		RequiredFields: []string{
			"chave_de_acesso",
			"cpf_cnpj_emitente",
			"cnpj_destinatario",
			"valor_nota_fiscal",
		},
	}
}

// CheckFunc validates one access key and returns its findings.
type CheckFunc func(ctx context.Context, ds DataSource, accessKey string, th Thresholds) ([]core.Finding, error)

// RuleDef is a data-driven rule definition. Rules are stateless; all
// context comes via the check parameters.
type RuleDef struct {
	ID          string
	Name        string
	Description string
	Severity    core.Severity
	Check       CheckFunc
}

var globalRegistry = struct {
	mu    sync.RWMutex
	rules map[string]RuleDef
}{rules: make(map[string]RuleDef)}

// Register adds a rule to the global registry. Call from init().
func Register(rule RuleDef) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.rules[rule.ID] = rule
}

// All returns every registered rule ordered by ID. The order is the
// execution order.
func All() []RuleDef {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	rules := make([]RuleDef, 0, len(globalRegistry.rules))
	for _, rule := range globalRegistry.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// GetByID returns a rule by its ID.
func GetByID(id string) (RuleDef, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	rule, ok := globalRegistry.rules[id]
	return rule, ok
}

// Engine runs registered rules against a data source.
type Engine struct {
	ds         DataSource
	thresholds Thresholds
	logger     *slog.Logger
}

// NewEngine creates a rule engine.
func NewEngine(ds DataSource, thresholds Thresholds, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{ds: ds, thresholds: thresholds, logger: logger}
}

// ValidateKey runs every rule against one access key. Findings are
// grouped by rule in ID order and sorted by subject within each rule.
func (e *Engine) ValidateKey(ctx context.Context, accessKey string) ([]core.Finding, error) {
	return e.run(ctx, []string{accessKey})
}

// ValidateAll runs every rule against every known access key.
func (e *Engine) ValidateAll(ctx context.Context) ([]core.Finding, error) {
	keys, err := e.ds.AllAccessKeys(ctx)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, keys)
}

func (e *Engine) run(ctx context.Context, keys []string) ([]core.Finding, error) {
	var all []core.Finding
	for _, rule := range All() {
		var ruleFindings []core.Finding
		for _, key := range keys {
			findings, err := rule.Check(ctx, e.ds, key, e.thresholds)
			if err != nil {
				return nil, err
			}
			ruleFindings = append(ruleFindings, findings...)
		}
		core.SortFindings(ruleFindings)
		all = append(all, ruleFindings...)
	}
	e.logger.Debug("validation complete", "keys", len(keys), "findings", len(all))
	return all, nil
}

// Recheck re-derives one finding: it reruns the finding's rule against
// its subject and reports whether the rule still produces a finding for
// that subject. Findings from unknown rules cannot be re-derived.
func (e *Engine) Recheck(ctx context.Context, finding core.Finding) (confirmed bool, derivable bool, err error) {
	rule, ok := GetByID(finding.RuleID)
	if !ok {
		return false, false, nil
	}
	findings, err := rule.Check(ctx, e.ds, finding.Subject, e.thresholds)
	if err != nil {
		return false, true, err
	}
	for _, f := range findings {
		if f.Subject == finding.Subject {
			return true, true, nil
		}
	}
	return false, true, nil
}
