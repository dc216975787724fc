package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	coreapp "repoctx/internal/core/app"
	"repoctx/internal/core/config"
	"repoctx/internal/core/errors"
	"repoctx/internal/engine/record"

	"gopkg.in/yaml.v3"
)

// writeTestConfig points the record store into a temp dir so tests never
// touch the working tree.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "repoctx.toml")
	content := "version = 1\n\n[store]\npath = \"" + filepath.ToSlash(filepath.Join(dir, "records.db")) + "\"\n\n[logging]\nlevel = \"error\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", writeTestConfig(t)}, args...)
	code := run(context.Background(), full, &stdout, &stderr, defaultAppFactory{})
	return code, stdout.String(), stderr.String()
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeRecord(t *testing.T, out string) record.FileRecord {
	t.Helper()
	var rec record.FileRecord
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("stdout is not a record: %v\n%s", err, out)
	}
	return rec
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	code := run(context.Background(), []string{"version"}, &stdout, io.Discard, defaultAppFactory{})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if strings.TrimSpace(stdout.String()) != "repoctx v"+versionString {
		t.Fatalf("unexpected version output %q", stdout.String())
	}
}

func TestExtract_Success(t *testing.T) {
	path := writeSource(t, "mod.py", "def a():\n    b()\n\ndef b():\n    pass\n")

	code, out, _ := runCLI(t, "extract", path)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	rec := decodeRecord(t, out)
	if rec.Language != "python" || len(rec.Functions) != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !strings.Contains(out, "\n  \"functions\": [") {
		t.Fatalf("expected 2-space indented JSON, got:\n%s", out)
	}
}

func TestExtract_ParseErrorExitsZero(t *testing.T) {
	path := writeSource(t, "bad.py", "def broken(:\n")

	code, out, _ := runCLI(t, "extract", path)
	if code != 0 {
		t.Fatalf("parse errors must exit 0, got %d", code)
	}
	rec := decodeRecord(t, out)
	if len(rec.Errors) != 1 || !strings.HasPrefix(rec.Errors[0], "Parse error: invalid syntax at line 1") {
		t.Fatalf("unexpected errors %v", rec.Errors)
	}
	if len(rec.Functions) != 0 || rec.Functions == nil {
		t.Fatalf("expected empty non-nil functions, got %v", rec.Functions)
	}
}

func TestExtract_MissingFileExitsOne(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.py")

	code, out, _ := runCLI(t, "extract", missing)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	rec := decodeRecord(t, out)
	if len(rec.Errors) != 1 || rec.Errors[0] != "File not found: "+missing {
		t.Fatalf("unexpected errors %v", rec.Errors)
	}
}

func TestExtract_UnsupportedFileExitsOne(t *testing.T) {
	path := writeSource(t, "notes.txt", "hello\n")

	code, out, _ := runCLI(t, "extract", path)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	rec := decodeRecord(t, out)
	if len(rec.Errors) != 1 || !strings.HasPrefix(rec.Errors[0], "Fatal error: unsupported language for ") {
		t.Fatalf("unexpected errors %v", rec.Errors)
	}
}

func TestExtract_StdinWithoutLanguageIsUsageError(t *testing.T) {
	code, out, _ := runCLI(t, "extract")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	rec := decodeRecord(t, out)
	if rec.Path != stdinPath || len(rec.Errors) != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestExtract_UnknownLanguageFlagIsUsageError(t *testing.T) {
	path := writeSource(t, "mod.py", "x = 1\n")
	code, _, _ := runCLI(t, "extract", "--language", "cobol", path)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestExtract_YAML(t *testing.T) {
	path := writeSource(t, "mod.py", "PUBLIC_X = 1\n")

	code, out, _ := runCLI(t, "extract", "--format", "yaml", path)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	var rec record.FileRecord
	if err := yaml.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("invalid yaml: %v", err)
	}
	if len(rec.Constants) != 1 || rec.Constants[0].Name != "PUBLIC_X" {
		t.Fatalf("unexpected constants %+v", rec.Constants)
	}
}

func TestExtract_UsageErrors(t *testing.T) {
	path := writeSource(t, "mod.py", "x = 1\n")
	cases := [][]string{
		{"extract", "--format", "xml", path},
		{"extract", path, path},
		{"extract", "--no-such-flag"},
	}
	for _, args := range cases {
		if code, _, _ := runCLI(t, args...); code != 2 {
			t.Errorf("%v: expected exit 2, got %d", args, code)
		}
	}
}

func TestExtract_MissingExplicitConfig(t *testing.T) {
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "nope.toml"), "languages"}, io.Discard, &stderr, defaultAppFactory{})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "load config") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestBatchAndCallers(t *testing.T) {
	cfgPath := writeTestConfig(t)
	root := t.TempDir()
	files := map[string]string{
		"pkg/service.py": "def a():\n    b()\n\ndef b():\n    pass\n",
		"pkg/bad.py":     "def broken(:\n",
		"main.go":        "package main\n\nfunc main() {}\n",
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	summaryPath := filepath.Join(t.TempDir(), "out", "summary.json")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", cfgPath, "batch", "--store", "--no-progress", "--summary-file", summaryPath, root}, &stdout, &stderr, defaultAppFactory{})
	if code != 0 {
		t.Fatalf("batch should exit 0 with per-file errors, got %d: %s", code, stderr.String())
	}

	var paths []string
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		paths = append(paths, decodeRecord(t, sc.Text()).Path)
	}
	want := []string{"main.go", "pkg/bad.py", "pkg/service.py"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, paths)
	}
	if !strings.Contains(stderr.String(), "failed") {
		t.Fatalf("expected summary on stderr, got %q", stderr.String())
	}
	var summary coreapp.BatchSummary
	data, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Files != 3 || summary.Failed != 1 || summary.Stored != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	stdout.Reset()
	code = run(context.Background(), []string{"--config", cfgPath, "callers", "pkg/service.py", "b"}, &stdout, io.Discard, defaultAppFactory{})
	if code != 0 {
		t.Fatalf("callers exit %d", code)
	}
	var callers []record.CallerRef
	if err := json.Unmarshal(stdout.Bytes(), &callers); err != nil {
		t.Fatal(err)
	}
	if len(callers) != 1 || callers[0].FunctionName != "a" {
		t.Fatalf("unexpected callers %+v", callers)
	}
}

func TestBatch_MissingDirectory(t *testing.T) {
	code, _, stderr := runCLI(t, "batch", "--no-progress", filepath.Join(t.TempDir(), "absent"))
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "absent") {
		t.Fatalf("expected the directory in the error, got %q", stderr)
	}
}

func TestLanguages(t *testing.T) {
	code, out, _ := runCLI(t, "languages")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	for _, want := range []string{"LANGUAGE", "python", ".py,.pyi", "rust"} {
		if !strings.Contains(out, want) {
			t.Errorf("languages output missing %q:\n%s", want, out)
		}
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(nil, io.Discard); got != 0 {
		t.Fatalf("nil error: %d", got)
	}
	if got := exitCode(&exitError{code: 2}, io.Discard); got != 2 {
		t.Fatalf("exitError: %d", got)
	}
	if got := exitCode(errors.New(errors.CodeInternal, "boom"), io.Discard); got != 1 {
		t.Fatalf("plain error: %d", got)
	}
}

func TestExtractExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New(errors.CodeParse, "invalid syntax"), 0},
		{errors.New(errors.CodeNotFound, "x.py"), 1},
		{errors.New(errors.CodeFatal, "boom"), 1},
		{errors.New(errors.CodeNotSupported, "unsupported"), 1},
	}
	for _, tc := range cases {
		if got := extractExitCode(tc.err); got != tc.want {
			t.Errorf("extractExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestObservabilityServer(t *testing.T) {
	a, err := coreapp.New(config.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := NewObservabilityServer("127.0.0.1:0", coreapp.NewHealthService(a))
	if err := srv.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		_ = srv.Stop(stopCtx)
	}()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
	var status coreapp.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Components["parser"] != "ok" {
		t.Fatalf("unexpected components %v", status.Components)
	}

	metrics, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer metrics.Body.Close()
	body, _ := io.ReadAll(metrics.Body)
	if !strings.Contains(string(body), "repoctx_") {
		t.Fatal("expected repoctx metrics in /metrics output")
	}
}
