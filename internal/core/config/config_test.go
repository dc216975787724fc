package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[extraction]
type_policy = "Schema"
call_graph = "legacy"
max_file_bytes = 1024

[languages.rust]
enabled = false

[languages.python]
extensions = [".py", ".pyw"]

[batch]
workers = 3
exclude = ["**/gen/**", "  "]
respect_gitignore = false

[watch]
debounce = "1s"

[store]
enabled = true
path = "records.db"

[output]
format = "yaml"

[logging]
level = "DEBUG"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Extraction.TypePolicy != "schema" {
		t.Errorf("expected normalized type policy, got %q", cfg.Extraction.TypePolicy)
	}
	if cfg.Extraction.CallGraph != "legacy" {
		t.Errorf("expected legacy call graph, got %q", cfg.Extraction.CallGraph)
	}
	if cfg.Extraction.MaxFileBytes != 1024 {
		t.Errorf("expected max_file_bytes 1024, got %d", cfg.Extraction.MaxFileBytes)
	}
	if cfg.Batch.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Batch.Workers)
	}
	if len(cfg.Batch.Exclude) != 1 || cfg.Batch.Exclude[0] != "**/gen/**" {
		t.Errorf("expected blank exclude entries dropped, got %v", cfg.Batch.Exclude)
	}
	if cfg.Batch.GitignoreEnabled() {
		t.Error("expected gitignore handling disabled")
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("expected debounce 1s, got %v", cfg.Watch.Debounce)
	}
	if !cfg.Store.Enabled || cfg.Store.Path != "records.db" {
		t.Errorf("unexpected store settings: %+v", cfg.Store)
	}
	if cfg.Output.Format != "yaml" || cfg.Logging.Level != "debug" {
		t.Errorf("unexpected output/logging: %q %q", cfg.Output.Format, cfg.Logging.Level)
	}

	overrides := cfg.LanguageOverrides()
	if overrides["rust"].Enabled == nil || *overrides["rust"].Enabled {
		t.Errorf("expected rust disabled, got %+v", overrides["rust"])
	}
	if got := overrides["python"].Extensions; len(got) != 2 || got[1] != ".pyw" {
		t.Errorf("unexpected python extensions: %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("expected version 1, got %d", cfg.Version)
	}
	if cfg.Extraction.TypePolicy != "native" || cfg.Extraction.CallGraph != "bidirectional" {
		t.Errorf("unexpected extraction defaults: %+v", cfg.Extraction)
	}
	if cfg.Batch.Workers < 1 {
		t.Errorf("expected positive worker default, got %d", cfg.Batch.Workers)
	}
	if !cfg.Batch.GitignoreEnabled() {
		t.Error("expected gitignore handling on by default")
	}
	if cfg.Watch.Debounce != 300*time.Millisecond {
		t.Errorf("expected default debounce 300ms, got %v", cfg.Watch.Debounce)
	}
	if cfg.Store.BusyTimeout != 5*time.Second {
		t.Errorf("expected default busy timeout, got %v", cfg.Store.BusyTimeout)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("expected json output, got %q", cfg.Output.Format)
	}
}

func TestLoadError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "[extraction\n")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"policy", "[extraction]\ntype_policy = \"strict\"", "extraction.type_policy"},
		{"mode", "[extraction]\ncall_graph = \"fancy\"", "extraction.call_graph"},
		{"language", "[languages.cobol]\nenabled = true", "unknown language override"},
		{"empty extension", "[languages.go]\nextensions = [\"\"]", "languages.go.extensions"},
		{"workers", "[batch]\nworkers = 1000", "batch.workers"},
		{"glob", "[batch]\nexclude = [\"[\"]", "not a valid glob"},
		{"format", "[output]\nformat = \"xml\"", "output.format"},
		{"level", "[logging]\nlevel = \"loud\"", "logging.level"},
		{"address", "[observability]\nenabled = true\naddress = \"nope\"", "observability.address"},
		{"version", "version = 7", "unsupported config version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	missing := filepath.Join(t.TempDir(), DefaultFile)

	cfg, err := LoadOrDefault(missing, true)
	if err != nil {
		t.Fatalf("expected defaults for optional missing file, got %v", err)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("expected default output, got %q", cfg.Output.Format)
	}

	if _, err := LoadOrDefault(missing, false); err == nil {
		t.Fatal("expected error for explicit missing file")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("REPOCTX_EXTRACTION_TYPE_POLICY", "SCHEMA")
	t.Setenv("REPOCTX_BATCH_WORKERS", "7")
	t.Setenv("REPOCTX_BATCH_EXCLUDE", "a/**, ,b/**")
	t.Setenv("REPOCTX_WATCH_DEBOUNCE", "2s")
	t.Setenv("REPOCTX_STORE_ENABLED", "true")
	t.Setenv("REPOCTX_OBSERVABILITY_ADDRESS", "0.0.0.0:9000")
	t.Setenv("REPOCTX_BATCH_CACHE_ENTRIES", "not-a-number")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Extraction.TypePolicy != "schema" {
		t.Errorf("expected schema, got %q", cfg.Extraction.TypePolicy)
	}
	if cfg.Batch.Workers != 7 {
		t.Errorf("expected 7 workers, got %d", cfg.Batch.Workers)
	}
	if len(cfg.Batch.Exclude) != 2 || cfg.Batch.Exclude[1] != "b/**" {
		t.Errorf("unexpected exclude list: %v", cfg.Batch.Exclude)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("expected 2s debounce, got %v", cfg.Watch.Debounce)
	}
	if !cfg.Store.Enabled {
		t.Error("expected store enabled")
	}
	if cfg.Observability.Address != "0.0.0.0:9000" {
		t.Errorf("unexpected address %q", cfg.Observability.Address)
	}
	if cfg.Batch.CacheEntries != 1024 {
		t.Errorf("invalid override should be ignored, got %d", cfg.Batch.CacheEntries)
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Output.Format = "xml"
	cfg.Batch.Workers = 0
	cfg.Watch.Burst = 0

	errs := Validate(cfg)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}
