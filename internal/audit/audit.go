// Package audit orchestrates document audits: deterministic validation
// first, AI escalation only when findings exist, fact-checking of AI
// output, and append-only persistence of every run.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fiscalstack/fiscaudit/internal/llm"
	"github.com/fiscalstack/fiscaudit/internal/rules"
	"github.com/fiscalstack/fiscaudit/internal/store"
	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// Config assembles an orchestrator.
type Config struct {
	Store    *store.Store
	Engine   *rules.Engine
	Provider llm.Provider
	// Version selects the strategy: AnalyzerDirectAI always consults the
	// AI, AnalyzerRuleFirst escalates only on deterministic findings.
	Version core.AnalyzerVersion
	Logger  *slog.Logger
}

// Orchestrator runs audits and persists their results.
type Orchestrator struct {
	store    *store.Store
	engine   *rules.Engine
	provider llm.Provider
	version  core.AnalyzerVersion
	logger   *slog.Logger
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	version := cfg.Version
	if version == "" {
		version = core.AnalyzerRuleFirst
	}
	return &Orchestrator{
		store:    cfg.Store,
		engine:   cfg.Engine,
		provider: cfg.Provider,
		version:  version,
		logger:   logger,
	}
}

// AuditKey audits one access key and appends the outcome to history.
// AI failures degrade the run, they never abort it: deterministic
// findings are persisted with the failure recorded as metadata.
func (o *Orchestrator) AuditKey(ctx context.Context, accessKey string) (*core.AuditResult, error) {
	started := time.Now()
	result := &core.AuditResult{
		AccessKey:       accessKey,
		AnalyzerVersion: o.version,
		StartedAt:       started.UTC(),
	}

	if err := o.analyze(ctx, accessKey, result); err != nil {
		result.Status = core.AuditStatusError
		result.AIFailure = err.Error()
	}
	result.Inconsistencies = countInconsistencies(result.Findings)
	result.Duration = time.Since(started)

	if err := o.store.AppendAuditResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to persist audit result: %w", err)
	}
	o.markInvoice(ctx, accessKey, result)

	o.logger.Info("audit complete",
		"access_key", accessKey, "status", result.Status,
		"findings", len(result.Findings), "duration", result.Duration)
	return result, nil
}

// AuditAll audits every known access key. Per-key failures are captured
// in their results; the batch keeps going.
func (o *Orchestrator) AuditAll(ctx context.Context) ([]*core.AuditResult, error) {
	keys, err := o.store.AllAccessKeys(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*core.AuditResult, 0, len(keys))
	for _, key := range keys {
		result, err := o.AuditKey(ctx, key)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (o *Orchestrator) analyze(ctx context.Context, accessKey string, result *core.AuditResult) error {
	counts, err := o.store.KeyOccurrences(ctx, accessKey)
	if err != nil {
		return err
	}
	for _, n := range counts {
		result.DocumentCount += n
	}
	if declared, ok, err := o.store.DeclaredTotal(ctx, accessKey); err != nil {
		return err
	} else if ok {
		result.TotalValue = declared
	}

	ruleFindings, err := o.engine.ValidateKey(ctx, accessKey)
	if err != nil {
		return err
	}
	result.Findings = ruleFindings

	switch o.version {
	case core.AnalyzerDirectAI:
		o.escalate(ctx, accessKey, result)
	case core.AnalyzerRuleFirst:
		if len(ruleFindings) == 0 {
			result.Status = core.AuditStatusClean
			return nil
		}
		result.Status = core.AuditStatusIssuesFound
		o.escalate(ctx, accessKey, result)
	default:
		return fmt.Errorf("unknown analyzer version %q", o.version)
	}
	return nil
}

// escalate consults the AI and merges its fact-checked findings into the
// result. Provider failures leave the deterministic outcome standing.
func (o *Orchestrator) escalate(ctx context.Context, accessKey string, result *core.AuditResult) {
	record, _, err := o.store.LookupRecord(ctx, accessKey)
	if err != nil {
		o.degrade(result, err)
		return
	}

	analysis, err := o.provider.AnalyzeFindings(ctx, record, result.Findings)
	if err != nil {
		o.degrade(result, err)
		return
	}
	result.Narrative = analysis.Narrative

	added := 0
	for _, finding := range analysis.Findings {
		checked, err := o.factCheck(ctx, finding)
		if err != nil {
			o.degrade(result, err)
			return
		}
		result.Findings = append(result.Findings, checked)
		added++
	}

	switch {
	case added > 0:
		result.Status = core.AuditStatusAIEscalated
	case len(result.Findings) > 0:
		result.Status = core.AuditStatusIssuesFound
	default:
		result.Status = core.AuditStatusClean
	}
}

// factCheck re-derives an AI finding through the rule engine. Findings
// the rules can check but not confirm are downgraded to info and marked
// unverified; findings outside the rules' reach pass through as-is.
func (o *Orchestrator) factCheck(ctx context.Context, finding core.Finding) (core.Finding, error) {
	confirmed, derivable, err := o.engine.Recheck(ctx, finding)
	if err != nil {
		return finding, err
	}
	if !derivable || confirmed {
		return finding, nil
	}
	unverified := finding.Annotate(core.AnnotationUnverified)
	unverified.Severity = core.SeverityInfo
	return unverified, nil
}

// degrade records an AI failure without discarding deterministic work.
func (o *Orchestrator) degrade(result *core.AuditResult, err error) {
	result.AIFailure = err.Error()
	if len(result.Findings) > 0 {
		result.Status = core.AuditStatusIssuesFound
	} else if o.version == core.AnalyzerDirectAI {
		result.Status = core.AuditStatusError
	} else {
		result.Status = core.AuditStatusClean
	}
	o.logger.Warn("ai escalation failed, keeping deterministic findings", "error", err)
}

// markInvoice mirrors the verdict onto the fixed invoice table when the
// key lives there. Dynamic tables have no status columns; skipping them
// is fine.
func (o *Orchestrator) markInvoice(ctx context.Context, accessKey string, result *core.AuditResult) {
	var messages []string
	for _, f := range result.Findings {
		if f.Severity == core.SeverityInfo {
			continue
		}
		messages = append(messages, f.Message)
	}
	status := "valida"
	if len(messages) > 0 {
		status = "invalida"
	}
	if err := o.store.UpdateValidation(ctx, accessKey, status, strings.Join(messages, "; ")); err != nil {
		o.logger.Warn("failed to update invoice validation status", "access_key", accessKey, "error", err)
	}
}

// countInconsistencies counts findings that demand attention. Info-level
// findings (including downgraded unverified AI output) don't count.
func countInconsistencies(findings []core.Finding) int {
	return core.CountBySeverity(findings, core.SeverityError) +
		core.CountBySeverity(findings, core.SeverityWarning)
}
