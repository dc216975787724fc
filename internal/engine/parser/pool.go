package parser

import (
	"sync"
	"sync/atomic"

	"repoctx/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ParserPool recycles tree-sitter parsers for one grammar. Safe for
// concurrent use; each lease belongs to exactly one goroutine until Put.
//
//	sp := pool.Get()
//	defer pool.Put(sp)
//	tree := sp.Parse(source, nil)
type ParserPool struct {
	language string
	grammar  *sitter.Language
	pool     sync.Pool
	active   atomic.Int64
}

func NewParserPool(language string, grammar *sitter.Language) *ParserPool {
	p := &ParserPool{language: language, grammar: grammar}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			sp.SetLanguage(grammar)
			return sp
		},
	}
	return p
}

func (p *ParserPool) Get() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	// Reset() may have dropped the language on a recycled parser.
	sp.SetLanguage(p.grammar)
	p.active.Add(1)
	observability.ParserLeases.WithLabelValues(p.language).Inc()
	return sp
}

// Put resets sp and returns it to the pool. sp must not be used afterwards.
func (p *ParserPool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	p.active.Add(-1)
	observability.ParserLeases.WithLabelValues(p.language).Dec()
	sp.Reset()
	p.pool.Put(sp)
}

// Active reports the parsers currently leased.
func (p *ParserPool) Active() int {
	return int(p.active.Load())
}
