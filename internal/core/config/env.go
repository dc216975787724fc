package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: REPOCTX_[SECTION]_[KEY] (e.g., REPOCTX_BATCH_WORKERS).
func ApplyEnvOverrides(cfg *Config) {
	// Extraction
	setEnvString(&cfg.Extraction.TypePolicy, "REPOCTX_EXTRACTION_TYPE_POLICY")
	setEnvString(&cfg.Extraction.CallGraph, "REPOCTX_EXTRACTION_CALL_GRAPH")
	setEnvInt64(&cfg.Extraction.MaxFileBytes, "REPOCTX_EXTRACTION_MAX_FILE_BYTES")

	// Batch
	setEnvInt(&cfg.Batch.Workers, "REPOCTX_BATCH_WORKERS")
	setEnvInt(&cfg.Batch.CacheEntries, "REPOCTX_BATCH_CACHE_ENTRIES")
	setEnvList(&cfg.Batch.Exclude, "REPOCTX_BATCH_EXCLUDE")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "REPOCTX_WATCH_DEBOUNCE")
	setEnvFloat64(&cfg.Watch.RatePerSecond, "REPOCTX_WATCH_RATE_PER_SECOND")
	setEnvInt(&cfg.Watch.Burst, "REPOCTX_WATCH_BURST")

	// Store
	setEnvBool(&cfg.Store.Enabled, "REPOCTX_STORE_ENABLED")
	setEnvString(&cfg.Store.Path, "REPOCTX_STORE_PATH")
	setEnvDuration(&cfg.Store.BusyTimeout, "REPOCTX_STORE_BUSY_TIMEOUT")

	setEnvString(&cfg.Output.Format, "REPOCTX_OUTPUT_FORMAT")
	setEnvString(&cfg.Logging.Level, "REPOCTX_LOGGING_LEVEL")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "REPOCTX_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "REPOCTX_OBSERVABILITY_ADDRESS")
	setEnvBool(&cfg.Observability.EnableTracing, "REPOCTX_OBSERVABILITY_ENABLE_TRACING")
	setEnvString(&cfg.Observability.OTLPEndpoint, "REPOCTX_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvString(&cfg.Observability.ServiceName, "REPOCTX_OBSERVABILITY_SERVICE_NAME")

	normalizeExtraction(cfg)
	normalizeBatch(cfg)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = strings.Split(val, ",")
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvInt64(target *int64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
