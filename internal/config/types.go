// Package config provides the application configuration: database
// location, AI provider settings, audit thresholds, and server options.
// Values layer as defaults < config file < environment < flags.
package config

// LLMConfig holds AI provider connection settings.
type LLMConfig struct {
	// APIKey authenticates against the provider. Usually set via the
	// FISCAUDIT_LLM_API_KEY environment variable.
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`
	// BaseURL points at any OpenAI-compatible endpoint.
	BaseURL string `koanf:"base_url"`
	// TimeoutSeconds bounds each provider call.
	TimeoutSeconds int `koanf:"timeout_seconds"`
}

// AuditConfig tunes the validation rules and audit strategy.
type AuditConfig struct {
	// Tolerance is the accepted declared-vs-items difference in currency
	// units.
	Tolerance float64 `koanf:"tolerance"`
	// RequiredFields overrides the default mandatory document fields.
	RequiredFields []string `koanf:"required_fields"`
	// AnalyzerVersion selects the audit strategy: "v1" (direct AI) or
	// "v2" (rule-first).
	AnalyzerVersion string `koanf:"analyzer_version"`
}

// QueryConfig tunes the natural-language query pipeline.
type QueryConfig struct {
	// MaxRows caps listing queries via an injected LIMIT.
	MaxRows int `koanf:"max_rows"`
}

// ServerConfig holds HTTP server options.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// Config is the root configuration.
type Config struct {
	// Database is the SQLite file path, or ":memory:".
	Database string `koanf:"database"`
	Verbose  bool   `koanf:"verbose"`
	// Output selects the CLI render format: table, json, csv or markdown.
	Output string `koanf:"output"`

	LLM    LLMConfig    `koanf:"llm"`
	Audit  AuditConfig  `koanf:"audit"`
	Query  QueryConfig  `koanf:"query"`
	Server ServerConfig `koanf:"server"`
}
