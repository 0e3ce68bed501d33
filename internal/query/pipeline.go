// Package query turns natural-language questions into guarded SQLite
// reads with AI-generated narratives, keeping an append-only history of
// every attempt.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fiscalstack/fiscaudit/internal/llm"
	"github.com/fiscalstack/fiscaudit/internal/store"
	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// EmptyResultNarrative is the fixed answer for queries that return no
// rows. No model call is spent on it.
const EmptyResultNarrative = "A consulta não retornou resultados para essa pergunta."

// sqlAttempts bounds generation: one initial attempt plus one retry
// carrying the SQLite error back to the model.
const sqlAttempts = 2

// Config assembles a query pipeline.
type Config struct {
	Store    *store.Store
	Provider llm.Provider
	// MaxRows caps listing queries via an injected LIMIT. Zero means the
	// default of 100.
	MaxRows int
	Logger  *slog.Logger
}

// Pipeline answers natural-language questions over the ingested data.
type Pipeline struct {
	store    *store.Store
	provider llm.Provider
	maxRows  int
	logger   *slog.Logger
}

// New creates a query pipeline.
func New(cfg Config) *Pipeline {
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		store:    cfg.Store,
		provider: cfg.Provider,
		maxRows:  maxRows,
		logger:   logger,
	}
}

// Ask answers one question. Every outcome, including failures, is
// appended to the query history.
func (p *Pipeline) Ask(ctx context.Context, question string) (*core.Answer, error) {
	answer, err := p.ask(ctx, question)
	record := &core.QueryRecord{Question: question}
	if answer != nil {
		record.SQL = answer.SQL
		record.RowCount = len(answer.Rows)
		record.Answer = answer.Narrative
		record.Status = answer.Status
	} else {
		record.Status = core.QueryStatusFailed
		var genFailed *core.QueryGenerationFailedError
		if errors.As(err, &genFailed) {
			record.SQL = genFailed.LastSQL
			record.Answer = genFailed.LastErr
		} else if err != nil {
			record.Answer = err.Error()
		}
	}
	if histErr := p.store.AppendQueryRecord(ctx, record); histErr != nil {
		p.logger.Error("failed to append query history", "error", histErr)
		if err == nil {
			err = histErr
		}
	}
	return answer, err
}

func (p *Pipeline) ask(ctx context.Context, question string) (*core.Answer, error) {
	schema, err := p.store.SchemaDescription(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe schema: %w", err)
	}

	var (
		previous *llm.Attempt
		lastSQL  string
		lastErr  error
	)
	for attempt := 1; attempt <= sqlAttempts; attempt++ {
		sql, err := p.provider.GenerateSQL(ctx, question, schema, previous)
		if err != nil {
			// Provider outage: retrying immediately won't help.
			return nil, err
		}
		if err := Guard(sql); err != nil {
			// Never executed. An unsafe statement is a contract violation,
			// not a recoverable SQL mistake.
			return nil, err
		}

		sql = ApplyLimit(sql, p.maxRows)
		lastSQL = sql
		columns, rows, err := p.store.QueryRows(ctx, sql)
		if err != nil {
			p.logger.Warn("generated sql failed", "attempt", attempt, "sql", sql, "error", err)
			lastErr = err
			previous = &llm.Attempt{SQL: sql, Err: err.Error()}
			continue
		}

		return p.respond(ctx, question, sql, columns, rows)
	}

	return nil, &core.QueryGenerationFailedError{
		Question: question,
		LastSQL:  lastSQL,
		LastErr:  lastErr.Error(),
		Attempts: sqlAttempts,
	}
}

func (p *Pipeline) respond(ctx context.Context, question, sql string, columns []string, rows []map[string]any) (*core.Answer, error) {
	answer := &core.Answer{
		Question: question,
		SQL:      sql,
		Columns:  columns,
		Rows:     rows,
	}

	if len(rows) == 0 {
		answer.Status = core.QueryStatusEmpty
		answer.Narrative = EmptyResultNarrative
		return answer, nil
	}

	narrative, err := p.provider.FormatNarrative(ctx, question, sql, rows)
	if err != nil {
		// The data is already in hand; degrade to a generic narrative
		// instead of discarding the result.
		p.logger.Warn("narrative formatting failed", "error", err)
		narrative = fmt.Sprintf("A consulta retornou %d resultado(s).", len(rows))
	}
	answer.Status = core.QueryStatusAnswered
	answer.Narrative = narrative
	return answer, nil
}

// Execute runs a caller-written statement through the same guard, for
// the raw query surface. No model calls and no history entry.
func (p *Pipeline) Execute(ctx context.Context, sql string) (*core.Answer, error) {
	if err := Guard(sql); err != nil {
		return nil, err
	}
	columns, rows, err := p.store.QueryRows(ctx, sql)
	if err != nil {
		return nil, err
	}
	status := core.QueryStatusAnswered
	if len(rows) == 0 {
		status = core.QueryStatusEmpty
	}
	return &core.Answer{SQL: sql, Columns: columns, Rows: rows, Status: status}, nil
}
