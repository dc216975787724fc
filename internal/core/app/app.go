package app

import (
	"fmt"

	"repoctx/internal/core/config"
	"repoctx/internal/core/ports"
	"repoctx/internal/engine/callgraph"
	"repoctx/internal/engine/parser"
	"repoctx/internal/engine/typenorm"
)

// App wires the parser, record cache and optional store for one run.
type App struct {
	Config    *config.Config
	Parser    ports.SourceParser
	Store     ports.RecordStore
	Extractor *Extractor
}

// New builds the parser stack described by cfg. The store is attached
// separately with WithStore because single-file extraction never opens it.
func New(cfg *config.Config) (*App, error) {
	p, err := NewParser(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithParser(cfg, p)
}

// NewParser builds a Parser with every enabled language registered.
func NewParser(cfg *config.Config) (*parser.Parser, error) {
	policy, err := typenorm.ParsePolicy(cfg.Extraction.TypePolicy)
	if err != nil {
		return nil, err
	}
	mode, err := callgraph.ParseMode(cfg.Extraction.CallGraph)
	if err != nil {
		return nil, err
	}
	registry, err := parser.BuildLanguageRegistry(cfg.LanguageOverrides())
	if err != nil {
		return nil, err
	}
	loader, err := parser.NewGrammarLoaderWithRegistry(registry)
	if err != nil {
		return nil, fmt.Errorf("load grammars: %w", err)
	}

	p := parser.NewParser(loader, parser.Options{
		TypePolicy:   policy,
		CallGraph:    mode,
		MaxFileBytes: cfg.Extraction.MaxFileBytes,
	})
	if err := p.RegisterDefaultExtractors(); err != nil {
		return nil, err
	}
	return p, nil
}

func NewWithParser(cfg *config.Config, p ports.SourceParser) (*App, error) {
	extractor, err := NewExtractor(p, cfg.Batch.CacheEntries)
	if err != nil {
		return nil, err
	}
	return &App{
		Config:    cfg,
		Parser:    p,
		Extractor: extractor,
	}, nil
}

// WithStore attaches a record store used by batch and watch runs.
func (a *App) WithStore(s ports.RecordStore) *App {
	a.Store = s
	return a
}

func (a *App) Close() {
	if a.Extractor != nil {
		a.Extractor.Close()
	}
}
