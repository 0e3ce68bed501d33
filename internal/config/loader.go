package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envSections are nested config sections recognized in environment
// variable names, e.g. FISCAUDIT_LLM_API_KEY -> llm.api_key.
var envSections = []string{"llm", "audit", "query", "server"}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"database": "database",
	"verbose":  "verbose",
	"output":   "output",
	"model":    "llm.model",
	"analyzer": "audit.analyzer_version",
}

// findConfigFile returns the config file to use. An explicit path wins;
// otherwise fiscaudit.yaml/.yml in the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load builds the configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults.
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"database":               DefaultDatabase,
		"verbose":                false,
		"output":                 DefaultOutput,
		"llm.model":              DefaultModel,
		"llm.timeout_seconds":    DefaultTimeoutSeconds,
		"audit.tolerance":        DefaultTolerance,
		"audit.analyzer_version": DefaultAnalyzer,
		"query.max_rows":         DefaultMaxRows,
		"server.addr":            DefaultServerAddr,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file.
	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. Environment variables (FISCAUDIT_ prefix).
	// FISCAUDIT_DATABASE -> database, FISCAUDIT_LLM_API_KEY -> llm.api_key.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		for _, section := range envSections {
			if strings.HasPrefix(key, section+"_") {
				return section + "." + strings.TrimPrefix(key, section+"_")
			}
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set.
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
