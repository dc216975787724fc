package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"repoctx/internal/engine/callgraph"
	"repoctx/internal/engine/parser"
	"repoctx/internal/engine/typenorm"

	"github.com/gobwas/glob"
)

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateExtraction(cfg *Config) error {
	if _, err := typenorm.ParsePolicy(cfg.Extraction.TypePolicy); err != nil {
		return fmt.Errorf("extraction.type_policy: %w", err)
	}
	if _, err := callgraph.ParseMode(cfg.Extraction.CallGraph); err != nil {
		return fmt.Errorf("extraction.call_graph: %w", err)
	}
	if cfg.Extraction.MaxFileBytes < 0 {
		return fmt.Errorf("extraction.max_file_bytes must be >= 0, got %d", cfg.Extraction.MaxFileBytes)
	}
	return nil
}

func validateLanguages(cfg *Config) error {
	for language, settings := range cfg.Languages {
		if strings.TrimSpace(language) == "" {
			return fmt.Errorf("languages key must not be empty")
		}
		for _, ext := range settings.Extensions {
			if strings.TrimSpace(ext) == "" {
				return fmt.Errorf("languages.%s.extensions must not include empty values", language)
			}
		}
		for _, name := range settings.Filenames {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("languages.%s.filenames must not include empty values", language)
			}
		}
	}
	if _, err := parser.BuildLanguageRegistry(cfg.LanguageOverrides()); err != nil {
		return fmt.Errorf("languages: %w", err)
	}
	return nil
}

func validateBatch(cfg *Config) error {
	if cfg.Batch.Workers < 1 || cfg.Batch.Workers > 256 {
		return fmt.Errorf("batch.workers must be between 1 and 256, got %d", cfg.Batch.Workers)
	}
	if cfg.Batch.CacheEntries < 0 {
		return fmt.Errorf("batch.cache_entries must be >= 0, got %d", cfg.Batch.CacheEntries)
	}
	for i, pattern := range cfg.Batch.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("batch.exclude[%d] %q is not a valid glob: %w", i, pattern, err)
		}
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if cfg.Watch.RatePerSecond < 0 {
		return fmt.Errorf("watch.rate_per_second must not be negative")
	}
	if cfg.Watch.Burst < 1 {
		return fmt.Errorf("watch.burst must be >= 1, got %d", cfg.Watch.Burst)
	}
	return nil
}

func validateStore(cfg *Config) error {
	if cfg.Store.Enabled && strings.TrimSpace(cfg.Store.Path) == "" {
		return fmt.Errorf("store.path must not be empty when store.enabled=true")
	}
	return nil
}

func validateOutput(cfg *Config) error {
	switch cfg.Output.Format {
	case "json", "yaml":
		return nil
	}
	return fmt.Errorf("output.format must be one of: json, yaml")
}

func validateLogging(cfg *Config) error {
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Observability.Address); err != nil {
			return fmt.Errorf("observability.address %q: %w", cfg.Observability.Address, err)
		}
	}
	if cfg.Observability.EnableTracing && strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		return fmt.Errorf("observability.otlp_endpoint is required when enable_tracing=true")
	}
	return nil
}

// ParseLevel maps a config level name onto slog.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown level %q", value)
}

// Validate runs every check and returns all failures.
func Validate(cfg *Config) []error {
	var errs []error

	checks := []func(*Config) error{
		validateVersion,
		validateExtraction,
		validateLanguages,
		validateBatch,
		validateWatch,
		validateStore,
		validateOutput,
		validateLogging,
		validateObservability,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
