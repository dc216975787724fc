package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"repoctx/internal/core/errors"
	"repoctx/internal/engine/callgraph"
	"repoctx/internal/engine/record"
	"repoctx/internal/engine/typenorm"
	"repoctx/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	TypePolicy typenorm.Policy
	CallGraph  callgraph.Mode
	// MaxFileBytes rejects larger sources with a fatal record. Zero disables
	// the limit.
	MaxFileBytes int64
}

// Parser turns source files into FileRecords. Register extractors before the
// first Extract; after that a Parser is safe for concurrent use.
type Parser struct {
	loader     *GrammarLoader
	opts       Options
	extractors map[string]Extractor
	pools      map[string]*ParserPool
	extensions map[string]string
	filenames  map[string]string
}

func NewParser(loader *GrammarLoader, opts Options) *Parser {
	if opts.TypePolicy == "" {
		opts.TypePolicy = typenorm.PolicyNative
	}
	if opts.CallGraph == "" {
		opts.CallGraph = callgraph.ModeBidirectional
	}
	p := &Parser{
		loader:     loader,
		opts:       opts,
		extractors: make(map[string]Extractor),
		pools:      make(map[string]*ParserPool),
		extensions: make(map[string]string),
		filenames:  make(map[string]string),
	}
	for lang, spec := range loader.LanguageRegistry() {
		if !spec.Enabled {
			continue
		}
		for _, ext := range spec.Extensions {
			p.extensions[strings.ToLower(ext)] = lang
		}
		for _, name := range spec.Filenames {
			p.filenames[strings.ToLower(path.Base(name))] = lang
		}
		if grammar := loader.Language(lang); grammar != nil {
			p.pools[lang] = NewParserPool(lang, grammar)
		}
	}
	return p
}

func (p *Parser) Options() Options {
	return p.opts
}

func (p *Parser) RegisterExtractor(lang string, e Extractor) {
	p.extractors[lang] = e
}

// DefaultExtractorForLanguage returns the built-in extractor for a registry id.
func DefaultExtractorForLanguage(lang string) (Extractor, bool) {
	switch lang {
	case "python":
		return &PythonExtractor{}, true
	case "go":
		return &GoExtractor{}, true
	case "javascript", "typescript", "tsx":
		return NewJavaScriptExtractor(lang), true
	case "java":
		return &JavaExtractor{}, true
	case "rust":
		return &RustExtractor{}, true
	}
	return nil, false
}

func (p *Parser) RegisterDefaultExtractors() error {
	for _, lang := range p.loader.EnabledLanguages() {
		extractor, ok := DefaultExtractorForLanguage(lang)
		if !ok {
			return errors.Newf(errors.CodeNotSupported, "no default extractor for enabled language: %s", lang)
		}
		p.RegisterExtractor(lang, extractor)
	}
	return nil
}

// DetectLanguage maps a path to a registry id by exact filename first, then
// by extension. It returns "" for unsupported paths.
func (p *Parser) DetectLanguage(filePath string) string {
	base := strings.ToLower(filepath.Base(filePath))
	if lang, ok := p.filenames[base]; ok {
		return lang
	}
	if lang, ok := p.extensions[strings.ToLower(filepath.Ext(filePath))]; ok {
		return lang
	}
	return ""
}

func (p *Parser) IsSupportedPath(filePath string) bool {
	return p.DetectLanguage(filePath) != ""
}

// Languages lists the languages that have both a grammar and an extractor.
func (p *Parser) Languages() []string {
	out := make([]string, 0, len(p.extractors))
	for lang := range p.extractors {
		if p.pools[lang] != nil {
			out = append(out, lang)
		}
	}
	sort.Strings(out)
	return out
}

func (p *Parser) SupportedExtensions() []string {
	return p.loader.SupportedExtensions()
}

// ExtractFile reads filePath (stdin when empty) and extracts it. lang may be
// empty to detect it from the path.
func (p *Parser) ExtractFile(ctx context.Context, filePath, lang string) *Result {
	if lang == "" {
		lang = p.DetectLanguage(filePath)
	}
	content, err := ReadSource(filePath)
	if err != nil {
		return failure(filePath, lang, err)
	}
	return p.Extract(ctx, filePath, lang, content)
}

// Extract builds the record for one source file. It never panics and never
// returns nil: every failure becomes a record with a single error entry.
func (p *Parser) Extract(ctx context.Context, filePath, lang string, content []byte) (res *Result) {
	if lang == "" {
		lang = p.DetectLanguage(filePath)
	}
	_, span := observability.Tracer.Start(ctx, "parser.Extract", trace.WithAttributes(
		attribute.String("file", filePath),
		attribute.String("language", lang),
		attribute.Int("bytes", len(content)),
	))
	start := time.Now()

	defer func() {
		label := lang
		if label == "" {
			label = "unknown"
		}
		observability.ExtractionDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		observability.FilesExtractedTotal.WithLabelValues(label).Inc()
		if res.Err != nil {
			observability.ExtractionErrorsTotal.WithLabelValues(label, string(errors.CodeOf(res.Err))).Inc()
			span.RecordError(res.Err)
			span.SetStatus(otelcodes.Error, errors.MessageOf(res.Err))
		} else if res.Graph != nil {
			edges := len(res.Graph.Edges())
			observability.CallEdgesTotal.WithLabelValues(label).Add(float64(edges))
			span.SetAttributes(attribute.Int("call_edges", edges))
		}
		span.End()
	}()

	defer func() {
		if r := recover(); r != nil {
			err := errors.New(errors.CodeFatal, fmt.Sprint(r))
			err = errors.AddContext(err, errors.CtxStack, string(debug.Stack()))
			res = failure(filePath, lang, err)
		}
	}()

	rec, graph, err := p.extract(filePath, lang, content)
	if err != nil {
		return failure(filePath, lang, err)
	}
	slog.Debug("extracted file",
		"path", filePath,
		"language", lang,
		"functions", len(rec.Functions),
		"types", len(rec.Types),
	)
	return &Result{Record: rec, Graph: graph}
}

func (p *Parser) extract(filePath, lang string, content []byte) (*record.FileRecord, *callgraph.Index, error) {
	extractor := p.extractors[lang]
	pool := p.pools[lang]
	if lang == "" || extractor == nil || pool == nil {
		return nil, nil, errors.Newf(errors.CodeNotSupported, "unsupported language for %s", displayPath(filePath))
	}
	if p.opts.MaxFileBytes > 0 && int64(len(content)) > p.opts.MaxFileBytes {
		return nil, nil, errors.Newf(errors.CodeValidationError, "file too large: %d bytes exceeds limit of %d", len(content), p.opts.MaxFileBytes)
	}

	sp := pool.Get()
	defer pool.Put(sp)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, nil, errors.New(errors.CodeParse, "parser returned no syntax tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if bad := firstErrorNode(root); bad != nil {
		pos := bad.StartPosition()
		err := errors.Newf(errors.CodeParse, "invalid syntax at line %d, column %d", pos.Row+1, pos.Column+1)
		err = errors.AddContext(err, errors.CtxLine, int(pos.Row)+1)
		err = errors.AddContext(err, errors.CtxColumn, int(pos.Column)+1)
		return nil, nil, err
	}

	profile := extractor.Profile()
	rec := record.New(filePath, lang)
	ctx := NewExtractionContext(content, rec, typenorm.New(profile.Dialect, p.opts.TypePolicy), profile)
	extractor.Extract(ctx, root)

	graph, err := assemble(ctx, p.opts.CallGraph)
	if err != nil {
		return nil, nil, err
	}
	return rec, graph, nil
}

func failure(filePath, lang string, err error) *Result {
	err = errors.AddContext(err, errors.CtxPath, filePath)
	if lang != "" {
		err = errors.AddContext(err, errors.CtxLanguage, lang)
	}
	return &Result{
		Record: record.Failed(filePath, lang, FailureMessage(err)),
		Err:    err,
	}
}

// ReadSource reads a whole source file, or stdin when filePath is empty.
func ReadSource(filePath string) ([]byte, error) {
	if filePath == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeFatal, "read stdin")
		}
		return data, nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeNotFound, filePath)
		}
		return nil, errors.Wrap(err, errors.CodeFatal, "open "+filePath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err == nil && info.IsDir() {
		return nil, errors.Newf(errors.CodeFatal, "%s is a directory", filePath)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFatal, "read "+filePath)
	}
	return data, nil
}

func displayPath(filePath string) string {
	if filePath == "" {
		return "<stdin>"
	}
	return filePath
}
