package parser

import (
	"repoctx/internal/engine/callgraph"
	"repoctx/internal/engine/record"
	"repoctx/internal/engine/typenorm"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Extractor fills a FileRecord from one language's syntax tree.
type Extractor interface {
	Profile() Profile
	Extract(ctx *ExtractionContext, root *sitter.Node)
}

// Profile describes the language conventions shared by extraction, type
// normalization and call graph resolution.
type Profile struct {
	Language string
	Dialect  typenorm.Dialect
	// Binding is the current-object identifier inside method bodies. Go has
	// none by default; each method binds its own receiver name.
	Binding       string
	Separators    []string
	SelfReceivers []string
	// ImpliedTypeKind is used for types created to hold orphan methods.
	ImpliedTypeKind string
	// IsExported decides visibility for implied types.
	IsExported func(name string) bool
}

func (p Profile) graphOptions(mode callgraph.Mode) callgraph.Options {
	return callgraph.Options{
		Mode:          mode,
		Separators:    p.Separators,
		SelfReceivers: p.SelfReceivers,
	}
}

// Result is the outcome of extracting one file. Record is always set; Err
// carries the DomainError behind a failed record, and Graph is nil for
// failures.
type Result struct {
	Record *record.FileRecord
	Graph  *callgraph.Index
	Err    error
}

func (r *Result) OK() bool {
	return r != nil && r.Err == nil
}
