package config

import (
	"time"

	"repoctx/internal/engine/parser"
)

// DefaultFile is the config file looked up in the project root.
const DefaultFile = "repoctx.toml"

type Config struct {
	Version       int                 `toml:"version"`
	Extraction    Extraction          `toml:"extraction"`
	Languages     map[string]Language `toml:"languages"`
	Batch         Batch               `toml:"batch"`
	Watch         Watch               `toml:"watch"`
	Store         Store               `toml:"store"`
	Output        Output              `toml:"output"`
	Logging       Logging             `toml:"logging"`
	Observability Observability       `toml:"observability"`
}

type Extraction struct {
	TypePolicy   string `toml:"type_policy"`
	CallGraph    string `toml:"call_graph"`
	MaxFileBytes int64  `toml:"max_file_bytes"`
}

type Language struct {
	Enabled    *bool    `toml:"enabled"`
	Extensions []string `toml:"extensions"`
	Filenames  []string `toml:"filenames"`
}

type Batch struct {
	Workers          int      `toml:"workers"`
	Exclude          []string `toml:"exclude"`
	RespectGitignore *bool    `toml:"respect_gitignore"`
	CacheEntries     int      `toml:"cache_entries"`
}

type Watch struct {
	Debounce      time.Duration `toml:"debounce"`
	RatePerSecond float64       `toml:"rate_per_second"`
	Burst         int           `toml:"burst"`
}

type Store struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type Output struct {
	Format string `toml:"format"`
}

type Logging struct {
	Level string `toml:"level"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Address       string `toml:"address"`
	EnableTracing bool   `toml:"enable_tracing"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	ServiceName   string `toml:"service_name"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LanguageOverrides converts the [languages] tables into registry overrides.
func (c *Config) LanguageOverrides() map[string]parser.LanguageOverride {
	if len(c.Languages) == 0 {
		return nil
	}
	out := make(map[string]parser.LanguageOverride, len(c.Languages))
	for id, lang := range c.Languages {
		out[id] = parser.LanguageOverride{
			Enabled:    lang.Enabled,
			Extensions: append([]string(nil), lang.Extensions...),
			Filenames:  append([]string(nil), lang.Filenames...),
		}
	}
	return out
}

// GitignoreEnabled reports whether batch discovery honours .gitignore files.
func (b Batch) GitignoreEnabled() bool {
	return b.RespectGitignore == nil || *b.RespectGitignore
}
