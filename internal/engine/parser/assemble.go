package parser

import (
	"strings"

	"repoctx/internal/core/errors"
	"repoctx/internal/engine/callgraph"
	"repoctx/internal/engine/record"
)

const maxStackLines = 32

// assemble finishes a walked record: deferred methods join their types, the
// call graph is linked, exports are derived and the record is validated.
func assemble(ctx *ExtractionContext, mode callgraph.Mode) (*callgraph.Index, error) {
	rec := ctx.Record
	attachDeferredMethods(ctx)
	graph := callgraph.Build(rec, ctx.Profile.graphOptions(mode))
	rec.Exports = deriveExports(rec)
	rec.EnsureCollections()
	if err := rec.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeFatal, "record validation failed")
	}
	return graph, nil
}

// attachDeferredMethods appends each deferred method to the type it names,
// creating an implied type for owners not declared in the file.
func attachDeferredMethods(ctx *ExtractionContext) {
	for _, d := range ctx.deferred {
		t := ctx.Record.FindType(d.owner)
		if t == nil {
			t = &record.Type{
				Name:      d.owner,
				Kind:      ctx.Profile.ImpliedTypeKind,
				StartLine: d.fn.StartLine,
				EndLine:   d.fn.EndLine,
				Embedded:  []string{},
			}
			if ctx.Profile.IsExported != nil {
				t.IsExported = ctx.Profile.IsExported(d.owner)
			}
			ctx.AddType(t)
		}
		t.Methods = append(t.Methods, d.fn)
	}
	ctx.deferred = nil
}

// deriveExports lists exported entities: top-level functions, then types,
// then variables, then constants.
func deriveExports(rec *record.FileRecord) []record.Export {
	exports := []record.Export{}
	for _, fn := range rec.Functions {
		if fn.IsExported {
			exports = append(exports, record.Export{Name: fn.Name, Type: record.ExportFunction, Line: fn.StartLine})
		}
	}
	for _, t := range rec.Types {
		if t.IsExported {
			exports = append(exports, record.Export{Name: t.Name, Type: record.ExportClass, Line: t.StartLine})
		}
	}
	for _, v := range rec.Variables {
		if v.IsExported {
			exports = append(exports, record.Export{Name: v.Name, Type: record.ExportVariable, Line: v.Line})
		}
	}
	for _, c := range rec.Constants {
		if c.IsExported {
			exports = append(exports, record.Export{Name: c.Name, Type: record.ExportConstant, Line: c.Line})
		}
	}
	return exports
}

// FailureMessage renders err as the single entry of a failed record.
func FailureMessage(err error) string {
	msg := errors.MessageOf(err)
	switch errors.CodeOf(err) {
	case errors.CodeParse:
		return "Parse error: " + msg
	case errors.CodeNotFound:
		return "File not found: " + msg
	}
	var de *errors.DomainError
	if errors.As(err, &de) {
		if stack, ok := de.Context[errors.CtxStack].(string); ok && stack != "" {
			return "Fatal error: " + msg + "\n" + truncateLines(stack, maxStackLines)
		}
	}
	return "Fatal error: " + msg
}

func truncateLines(text string, limit int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return strings.Join(lines, "\n")
}
