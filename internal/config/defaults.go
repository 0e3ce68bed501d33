package config

// Default configuration values.
const (
	DefaultDatabase       = "fiscaudit.db"
	DefaultOutput         = "table"
	DefaultModel          = "gpt-4o-mini"
	DefaultTimeoutSeconds = 60
	DefaultTolerance      = 1.00
	DefaultAnalyzer       = "v2"
	DefaultMaxRows        = 100
	DefaultServerAddr     = ":8080"
)

// ConfigFileName is the primary config file name.
const ConfigFileName = "fiscaudit.yaml"

// ConfigFileNameAlt is the alternate config file name.
const ConfigFileNameAlt = "fiscaudit.yml"

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "FISCAUDIT_"
