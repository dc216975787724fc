package config

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	normalizeExtraction(&cfg)
	normalizeLanguages(&cfg)
	normalizeBatch(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateExtraction(&cfg); err != nil {
		return nil, err
	}
	if err := validateLanguages(&cfg); err != nil {
		return nil, err
	}
	if err := validateBatch(&cfg); err != nil {
		return nil, err
	}
	if err := validateWatch(&cfg); err != nil {
		return nil, err
	}
	if err := validateStore(&cfg); err != nil {
		return nil, err
	}
	if err := validateOutput(&cfg); err != nil {
		return nil, err
	}
	if err := validateLogging(&cfg); err != nil {
		return nil, err
	}
	if err := validateObservability(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does not
// exist and optional is set. Environment overrides are applied either way.
func LoadOrDefault(path string, optional bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if !optional || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}
	ApplyEnvOverrides(cfg)
	if errs := Validate(cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Extraction.TypePolicy) == "" {
		cfg.Extraction.TypePolicy = "native"
	}
	if strings.TrimSpace(cfg.Extraction.CallGraph) == "" {
		cfg.Extraction.CallGraph = "bidirectional"
	}
	if cfg.Extraction.MaxFileBytes == 0 {
		cfg.Extraction.MaxFileBytes = 4 << 20
	}

	if cfg.Batch.Workers <= 0 {
		cfg.Batch.Workers = runtime.NumCPU()
	}
	if cfg.Batch.CacheEntries == 0 {
		cfg.Batch.CacheEntries = 1024
	}
	if cfg.Batch.Exclude == nil {
		cfg.Batch.Exclude = []string{"**/.git/**", "**/node_modules/**", "**/vendor/**", "**/target/**"}
	}

	// Default debounce if not set.
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
	if cfg.Watch.RatePerSecond == 0 {
		cfg.Watch.RatePerSecond = 50
	}
	if cfg.Watch.Burst == 0 {
		cfg.Watch.Burst = 100
	}

	if strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = ".repoctx/records.db"
	}
	if cfg.Store.BusyTimeout <= 0 {
		cfg.Store.BusyTimeout = 5 * time.Second
	}

	if strings.TrimSpace(cfg.Output.Format) == "" {
		cfg.Output.Format = "json"
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}
	if strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "repoctx"
	}
}

func normalizeExtraction(cfg *Config) {
	cfg.Extraction.TypePolicy = strings.ToLower(strings.TrimSpace(cfg.Extraction.TypePolicy))
	cfg.Extraction.CallGraph = strings.ToLower(strings.TrimSpace(cfg.Extraction.CallGraph))
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
}

func normalizeLanguages(cfg *Config) {
	if len(cfg.Languages) == 0 {
		return
	}
	normalized := make(map[string]Language, len(cfg.Languages))
	for id, lang := range cfg.Languages {
		normalized[strings.ToLower(strings.TrimSpace(id))] = lang
	}
	cfg.Languages = normalized
}

func normalizeBatch(cfg *Config) {
	patterns := make([]string, 0, len(cfg.Batch.Exclude))
	for _, p := range cfg.Batch.Exclude {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	cfg.Batch.Exclude = patterns
}
