package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// Config holds provider connection settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client is the OpenAI-compatible chat provider. A custom BaseURL points
// it at any compatible endpoint.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		client:  openai.NewClientWithConfig(apiCfg),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

// chat sends one system+user exchange and returns the raw completion.
func (c *Client) chat(ctx context.Context, op, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", &core.AIUnavailableError{Op: op, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &core.AIUnavailableError{Op: op, Err: fmt.Errorf("empty completion")}
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateSQL implements Provider.
func (c *Client) GenerateSQL(ctx context.Context, question, schema string, previous *Attempt) (string, error) {
	user := buildSQLPrompt(question, schema, previous)
	raw, err := c.chat(ctx, "sql generation", sqlSystemPrompt, user)
	if err != nil {
		return "", err
	}
	sql := CleanSQL(raw)
	c.logger.Debug("sql generated", "question", question, "sql", sql)
	return sql, nil
}

// FormatNarrative implements Provider.
func (c *Client) FormatNarrative(ctx context.Context, question, sql string, rows []map[string]any) (string, error) {
	user, err := buildNarrativePrompt(question, sql, rows)
	if err != nil {
		return "", err
	}
	answer, err := c.chat(ctx, "narrative formatting", narrativeSystemPrompt, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// AnalyzeFindings implements Provider.
func (c *Client) AnalyzeFindings(ctx context.Context, record map[string]any, findings []core.Finding) (*Analysis, error) {
	user, err := buildAnalysisPrompt(record, findings)
	if err != nil {
		return nil, err
	}
	raw, err := c.chat(ctx, "fiscal analysis", analysisSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	return parseAnalysis(raw)
}

// CleanSQL strips markdown fences and collapses the completion to the
// bare statement.
func CleanSQL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, ";")
}

// analysisPayload is the JSON contract the analysis prompt demands.
type analysisPayload struct {
	Narrative string `json:"narrative"`
	Findings  []struct {
		RuleID   string `json:"rule_id"`
		Severity string `json:"severity"`
		Subject  string `json:"subject"`
		Message  string `json:"message"`
	} `json:"findings"`
}

// parseAnalysis decodes the model's JSON reply, tolerating code fences.
func parseAnalysis(raw string) (*Analysis, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var payload analysisPayload
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, &core.AIUnavailableError{
			Op:  "fiscal analysis",
			Err: fmt.Errorf("unparseable analysis reply: %w", err),
		}
	}

	analysis := &Analysis{Narrative: strings.TrimSpace(payload.Narrative)}
	for _, f := range payload.Findings {
		severity, ok := core.ParseSeverity(f.Severity)
		if !ok {
			severity = core.SeverityInfo
		}
		analysis.Findings = append(analysis.Findings, core.Finding{
			RuleID:   f.RuleID,
			Severity: severity,
			Subject:  f.Subject,
			Message:  strings.TrimSpace(f.Message),
			Source:   core.SourceAI,
		})
	}
	return analysis, nil
}
