package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fiscalstack/fiscaudit/internal/audit"
	"github.com/fiscalstack/fiscaudit/internal/config"
	"github.com/fiscalstack/fiscaudit/internal/ingest"
	"github.com/fiscalstack/fiscaudit/internal/llm"
	"github.com/fiscalstack/fiscaudit/internal/query"
	"github.com/fiscalstack/fiscaudit/internal/rules"
	"github.com/fiscalstack/fiscaudit/internal/store"
	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// commandContext holds common dependencies for CLI commands.
type commandContext struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
}

// newCommandContext opens the database and returns the shared command
// dependencies plus a cleanup function that must be called (typically
// via defer).
func newCommandContext() (*commandContext, func(), error) {
	c := currentConfig()
	log := currentLogger()

	st := store.New(log)
	if err := st.Open(c.Database); err != nil {
		return nil, nil, fmt.Errorf("failed to open database %s: %w", c.Database, err)
	}

	cleanup := func() { _ = st.Close() }
	return &commandContext{cfg: c, logger: log, store: st}, cleanup, nil
}

func (c *commandContext) provider() llm.Provider {
	return llm.NewClient(llm.Config{
		APIKey:  c.cfg.LLM.APIKey,
		Model:   c.cfg.LLM.Model,
		BaseURL: c.cfg.LLM.BaseURL,
		Timeout: time.Duration(c.cfg.LLM.TimeoutSeconds) * time.Second,
		Logger:  c.logger,
	})
}

func (c *commandContext) ruleEngine() *rules.Engine {
	thresholds := rules.DefaultThresholds()
	if c.cfg.Audit.Tolerance > 0 {
		thresholds.Tolerance = c.cfg.Audit.Tolerance
	}
	if len(c.cfg.Audit.RequiredFields) > 0 {
		thresholds.RequiredFields = c.cfg.Audit.RequiredFields
	}
	return rules.NewEngine(c.store, thresholds, c.logger)
}

func (c *commandContext) auditor() *audit.Orchestrator {
	return audit.New(audit.Config{
		Store:    c.store,
		Engine:   c.ruleEngine(),
		Provider: c.provider(),
		Version:  core.AnalyzerVersion(c.cfg.Audit.AnalyzerVersion),
		Logger:   c.logger,
	})
}

func (c *commandContext) queries() *query.Pipeline {
	return query.New(query.Config{
		Store:    c.store,
		Provider: c.provider(),
		MaxRows:  c.cfg.Query.MaxRows,
		Logger:   c.logger,
	})
}

func (c *commandContext) ingestor() *ingest.Pipeline {
	return ingest.New(c.store, c.logger)
}
