package parser

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"repoctx/internal/core/errors"
	"repoctx/internal/engine/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

func newTestParser(t *testing.T, opts Options) *Parser {
	t.Helper()
	loader, err := NewGrammarLoader()
	require.NoError(t, err)
	p := NewParser(loader, opts)
	require.NoError(t, p.RegisterDefaultExtractors())
	return p
}

func extractSource(t *testing.T, p *Parser, path, src string) *record.FileRecord {
	t.Helper()
	res := p.Extract(context.Background(), path, "", []byte(src))
	require.NotNil(t, res)
	require.NoErrorf(t, res.Err, "record errors: %v", res.Record.Errors)
	return res.Record
}

func findFunction(rec *record.FileRecord, qualified string) *record.Function {
	for _, fn := range rec.AllFunctions() {
		if fn.QualifiedName() == qualified {
			return fn
		}
	}
	return nil
}

func mustFunction(t *testing.T, rec *record.FileRecord, qualified string) *record.Function {
	t.Helper()
	fn := findFunction(rec, qualified)
	if fn == nil {
		names := []string{}
		for _, f := range rec.AllFunctions() {
			names = append(names, f.QualifiedName())
		}
		t.Fatalf("function %s not found; have %v", qualified, names)
	}
	return fn
}

func mustType(t *testing.T, rec *record.FileRecord, name string) *record.Type {
	t.Helper()
	typ := rec.FindType(name)
	if typ == nil {
		t.Fatalf("type %s not found", name)
	}
	return typ
}

func callNames(fn *record.Function) []string {
	out := []string{}
	for _, c := range fn.Calls {
		out = append(out, c.Name)
	}
	return out
}

func callerNames(fn *record.Function) []string {
	out := []string{}
	for _, ref := range fn.CalledBy {
		out = append(out, ref.FunctionName)
	}
	return out
}

func TestParser_LanguagesAndDetection(t *testing.T) {
	p := newTestParser(t, Options{})

	assert.Equal(t, []string{"go", "java", "javascript", "python", "rust", "tsx", "typescript"}, p.Languages())
	assert.Equal(t, "python", p.DetectLanguage("pkg/mod.py"))
	assert.Equal(t, "python", p.DetectLanguage("stubs/MOD.PYI"))
	assert.Equal(t, "tsx", p.DetectLanguage("ui/App.tsx"))
	assert.Equal(t, "", p.DetectLanguage("README.md"))
	assert.False(t, p.IsSupportedPath("main.kt"))
}

func TestParser_DisabledLanguageIsUnsupported(t *testing.T) {
	disabled := false
	registry, err := BuildLanguageRegistry(map[string]LanguageOverride{"rust": {Enabled: &disabled}})
	require.NoError(t, err)
	loader, err := NewGrammarLoaderWithRegistry(registry)
	require.NoError(t, err)
	p := NewParser(loader, Options{})
	require.NoError(t, p.RegisterDefaultExtractors())

	assert.NotContains(t, p.Languages(), "rust")
	res := p.Extract(context.Background(), "lib.rs", "", []byte("fn main() {}"))
	require.Error(t, res.Err)
	assert.Equal(t, []string{"Fatal error: unsupported language for lib.rs"}, res.Record.Errors)
}

func TestParser_ParseErrorRecord(t *testing.T) {
	p := newTestParser(t, Options{})

	res := p.Extract(context.Background(), "broken.py", "", []byte("def broken(:\n    pass\n"))
	require.True(t, errors.IsCode(res.Err, errors.CodeParse))

	rec := res.Record
	require.Len(t, rec.Errors, 1)
	assert.True(t, strings.HasPrefix(rec.Errors[0], "Parse error: invalid syntax at line 1, column "), rec.Errors[0])
	assert.Empty(t, rec.Functions)
	assert.Empty(t, rec.Types)
	assert.Empty(t, rec.Variables)
	assert.Empty(t, rec.Constants)
	assert.Empty(t, rec.Imports)
	assert.Empty(t, rec.Exports)
}

func TestParser_MissingFile(t *testing.T) {
	p := newTestParser(t, Options{})
	missing := filepath.Join(t.TempDir(), "missing.py")

	res := p.ExtractFile(context.Background(), missing, "")
	require.True(t, errors.IsCode(res.Err, errors.CodeNotFound))
	assert.Equal(t, []string{"File not found: " + missing}, res.Record.Errors)
	assert.Equal(t, "python", res.Record.Language)
}

func TestParser_ExtractFileReadsDisk(t *testing.T) {
	p := newTestParser(t, Options{})
	path := filepath.Join(t.TempDir(), "mod.py")
	require.NoError(t, os.WriteFile(path, []byte("def run():\n    pass\n"), 0o644))

	res := p.ExtractFile(context.Background(), path, "")
	require.NoError(t, res.Err)
	assert.Equal(t, path, res.Record.Path)
	assert.NotNil(t, findFunction(res.Record, "run"))
}

func TestParser_FileTooLarge(t *testing.T) {
	p := newTestParser(t, Options{MaxFileBytes: 8})

	res := p.Extract(context.Background(), "big.py", "", []byte("def run():\n    pass\n"))
	require.Error(t, res.Err)
	require.Len(t, res.Record.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Record.Errors[0], "Fatal error: file too large"))
}

type panickingExtractor struct {
	PythonExtractor
}

func (*panickingExtractor) Extract(*ExtractionContext, *sitter.Node) {
	panic("extractor exploded")
}

func TestParser_PanicBecomesFatalRecord(t *testing.T) {
	p := newTestParser(t, Options{})
	p.RegisterExtractor("python", &panickingExtractor{})

	res := p.Extract(context.Background(), "boom.py", "", []byte("x = 1\n"))
	require.True(t, errors.IsCode(res.Err, errors.CodeFatal))
	require.Len(t, res.Record.Errors, 1)

	msg := res.Record.Errors[0]
	assert.True(t, strings.HasPrefix(msg, "Fatal error: extractor exploded\n"), msg)
	assert.LessOrEqual(t, len(strings.Split(msg, "\n")), maxStackLines+1)
	assert.Empty(t, res.Record.Variables)
}

func TestParser_RecordJSONFieldNames(t *testing.T) {
	p := newTestParser(t, Options{})
	rec := extractSource(t, p, "m.py", "class Base:\n    pass\n\nclass C(Base):\n    pass\n")

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Contains(t, raw, "types")
	assert.NotContains(t, raw, "classes")
	types := raw["types"].([]any)
	require.Len(t, types, 2)
	assert.Equal(t, []any{"Base"}, types[1].(map[string]any)["embedded"])
}

func TestParser_ConcurrentExtract(t *testing.T) {
	p := newTestParser(t, Options{})
	src := []byte("def a():\n    b()\n\ndef b():\n    pass\n")

	done := make(chan *Result, 8)
	for i := 0; i < cap(done); i++ {
		go func() {
			done <- p.Extract(context.Background(), "c.py", "", src)
		}()
	}
	for i := 0; i < cap(done); i++ {
		res := <-done
		require.NoError(t, res.Err)
		assert.Equal(t, []string{"a"}, callerNames(mustFunction(t, res.Record, "b")))
	}
}

func TestFailureMessage_TruncatesStack(t *testing.T) {
	lines := make([]string, 50)
	for i := range lines {
		lines[i] = "frame"
	}
	err := errors.AddContext(errors.New(errors.CodeFatal, "bad"), errors.CtxStack, strings.Join(lines, "\n"))

	msg := FailureMessage(err)
	assert.True(t, strings.HasPrefix(msg, "Fatal error: bad\nframe"))
	assert.Len(t, strings.Split(msg, "\n"), maxStackLines+1)
}
