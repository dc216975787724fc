package parser

import (
	"strings"

	"repoctx/internal/engine/record"
	"repoctx/internal/engine/typenorm"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

type PythonExtractor struct{}

func (e *PythonExtractor) Profile() Profile {
	return Profile{
		Language:        "python",
		Dialect:         typenorm.Python,
		Binding:         "self",
		Separators:      []string{"."},
		ImpliedTypeKind: "class",
		IsExported:      isPublicName,
	}
}

func (e *PythonExtractor) Extract(ctx *ExtractionContext, root *sitter.Node) {
	engine := NewExtractorEngine(map[string]NodeHandler{
		"import_statement":        e.extractImport,
		"import_from_statement":   e.extractFromImport,
		"future_import_statement": e.extractFromImport,
		"function_definition":     e.extractFunction,
		"class_definition":        e.extractClass,
		"assignment":              e.extractAssignment,
		"call":                    e.extractCall,
	})
	engine.Walk(ctx, root)
}

func (e *PythonExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	for _, child := range namedChildren(node) {
		switch child.Kind() {
		case "dotted_name":
			ctx.Record.Imports = append(ctx.Record.Imports, record.Import{
				Path: ctx.CompactText(child),
				Line: ctx.Line(node),
			})
		case "aliased_import":
			ctx.Record.Imports = append(ctx.Record.Imports, record.Import{
				Path:  ctx.CompactText(child.ChildByFieldName("name")),
				Alias: ctx.FieldText(child, "alias"),
				Line:  ctx.Line(node),
			})
		}
	}
	return true
}

// extractFromImport emits one record per imported name, or a single star
// record. Relative paths keep their leading dots.
func (e *PythonExtractor) extractFromImport(ctx *ExtractionContext, node *sitter.Node) bool {
	module := "__future__"
	if m := node.ChildByFieldName("module_name"); m != nil {
		module = strings.ReplaceAll(ctx.CompactText(m), " ", "")
	}

	afterImport := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "import" {
			afterImport = true
			continue
		}
		if !afterImport {
			continue
		}
		imp := record.Import{Path: module, Line: ctx.Line(node)}
		switch child.Kind() {
		case "wildcard_import":
			imp.IsStarImport = true
		case "dotted_name":
			imp.Items = []string{ctx.CompactText(child)}
		case "aliased_import":
			imp.Items = []string{ctx.CompactText(child.ChildByFieldName("name"))}
			imp.Alias = ctx.FieldText(child, "alias")
		default:
			continue
		}
		ctx.Record.Imports = append(ctx.Record.Imports, imp)
	}
	return true
}

func (e *PythonExtractor) extractFunction(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	body := node.ChildByFieldName("body")
	inType := ctx.InTypeBody()

	fn := newFunction(ctx, node, name)
	fn.Signature = ctx.Signature(node, body)
	fn.IsAsync = hasChildKind(node, "async")
	fn.Decorators = pythonDecorators(ctx, node)
	fn.Docstring = pythonDocstring(ctx, body)
	fn.IsExported = isPublicName(name)
	fn.Parameters = e.parameters(ctx, node.ChildByFieldName("parameters"), inType)
	if rt := node.ChildByFieldName("return_type"); rt != nil {
		fn.Returns = []record.Return{{Name: ctx.Norm.Normalize(ctx.Text(rt)), Kind: record.ReturnBuiltin}}
	} else {
		fn.Returns = []record.Return{{Name: ctx.Norm.None(), Kind: record.ReturnBuiltin}}
	}
	ctx.AddFunction(fn)

	// Header calls (defaults, annotations) belong to the enclosing function.
	ctx.Walk(node.ChildByFieldName("parameters"))
	ctx.Walk(node.ChildByFieldName("return_type"))

	defer ctx.EnterFunction(fn, "")()
	ctx.WalkChildren(body)
	return true
}

// parameters keeps declaration order. A leading self is dropped for
// functions defined directly in a class body.
func (e *PythonExtractor) parameters(ctx *ExtractionContext, list *sitter.Node, stripSelf bool) []record.Parameter {
	params := []record.Parameter{}
	for _, child := range namedChildren(list) {
		var p record.Parameter
		switch child.Kind() {
		case "identifier":
			p = record.Parameter{Name: ctx.Text(child), Type: ctx.Norm.Unknown()}
		case "typed_parameter":
			p = e.splatOrName(ctx, child.NamedChild(0))
			if t := child.ChildByFieldName("type"); t != nil {
				p.Type = ctx.Norm.Normalize(ctx.Text(t))
			}
		case "default_parameter":
			p = record.Parameter{Name: ctx.FieldText(child, "name"), Type: ctx.Norm.Unknown()}
			p.Default = pythonDefault(ctx, child.ChildByFieldName("value"))
		case "typed_default_parameter":
			p = record.Parameter{Name: ctx.FieldText(child, "name"), Type: ctx.Norm.Unknown()}
			if t := child.ChildByFieldName("type"); t != nil {
				p.Type = ctx.Norm.Normalize(ctx.Text(t))
			}
			p.Default = pythonDefault(ctx, child.ChildByFieldName("value"))
		case "list_splat_pattern", "dictionary_splat_pattern":
			p = e.splatOrName(ctx, child)
		default:
			// keyword_separator, positional_separator
			continue
		}
		if stripSelf {
			stripSelf = false
			if p.Name == "self" {
				continue
			}
		}
		params = append(params, p)
	}
	return params
}

func (e *PythonExtractor) splatOrName(ctx *ExtractionContext, node *sitter.Node) record.Parameter {
	if node == nil {
		return record.Parameter{Type: ctx.Norm.Unknown()}
	}
	switch node.Kind() {
	case "list_splat_pattern":
		return record.Parameter{Name: "*" + ctx.Text(node.NamedChild(0)), Type: ctx.Norm.Normalize("tuple")}
	case "dictionary_splat_pattern":
		return record.Parameter{Name: "**" + ctx.Text(node.NamedChild(0)), Type: ctx.Norm.Normalize("dict")}
	}
	return record.Parameter{Name: ctx.Text(node), Type: ctx.Norm.Unknown()}
}

func pythonDefault(ctx *ExtractionContext, value *sitter.Node) string {
	if value == nil || value.Kind() == "ERROR" {
		return ctx.Norm.Dialect().NoneToken
	}
	return ctx.CompactText(value)
}

func (e *PythonExtractor) extractClass(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	body := node.ChildByFieldName("body")

	t := &record.Type{
		Name:       name,
		Kind:       "class",
		StartLine:  ctx.Line(node),
		EndLine:    ctx.EndLine(node),
		Decorators: pythonDecorators(ctx, node),
		Docstring:  pythonDocstring(ctx, body),
		IsExported: isPublicName(name),
		Embedded:   []string{},
	}
	for _, base := range namedChildren(node.ChildByFieldName("superclasses")) {
		switch base.Kind() {
		case "keyword_argument", "list_splat", "dictionary_splat":
			continue
		}
		t.Embedded = append(t.Embedded, ctx.CompactText(base))
	}

	ctx.Walk(node.ChildByFieldName("superclasses"))

	defer ctx.EnterType(t)()
	ctx.WalkChildren(body)
	return true
}

// extractAssignment records module-level variables and annotated class-body
// fields. A chained assignment is visited once per link, each link naming
// only its own target.
func (e *PythonExtractor) extractAssignment(ctx *ExtractionContext, node *sitter.Node) bool {
	if !ctx.AtModuleScope() && !ctx.InTypeBody() {
		return false
	}
	left := node.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return false
	}
	name := ctx.Text(left)
	annotation := node.ChildByFieldName("type")

	if ctx.InTypeBody() {
		if annotation != nil {
			t := ctx.CurrentType()
			t.Fields = append(t.Fields, record.Field{
				Name: name,
				Type: ctx.Norm.Normalize(ctx.Text(annotation)),
				Line: ctx.Line(node),
			})
		}
		return false
	}

	value := node.ChildByFieldName("right")
	for value != nil && value.Kind() == "assignment" {
		value = value.ChildByFieldName("right")
	}
	var typ string
	if annotation != nil {
		typ = ctx.Norm.Normalize(ctx.Text(annotation))
	} else {
		typ = ctx.Norm.Normalize(pythonInferType(ctx, value))
	}

	v := record.Variable{
		Name:       name,
		Type:       typ,
		Line:       ctx.Line(node),
		IsExported: isPublicName(name),
	}
	if record.IsConstantName(name) {
		ctx.Record.Constants = append(ctx.Record.Constants, v)
	} else {
		ctx.Record.Variables = append(ctx.Record.Variables, v)
	}
	return false
}

var pythonBuiltinConstructors = map[string]bool{
	"int":    true, "float": true, "str": true, "bool": true, "bytes": true, "bytearray": true,
	"list":   true, "dict": true, "set": true, "frozenset": true, "tuple": true, "complex": true,
	"range":  true, "enumerate": true, "zip": true, "filter": true, "map": true, "slice": true,
	"object": true, "type": true,
}

func pythonInferType(ctx *ExtractionContext, value *sitter.Node) string {
	if value == nil {
		return ""
	}
	switch value.Kind() {
	case "integer", "float":
		text := ctx.Text(value)
		if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
			return "complex"
		}
		if value.Kind() == "integer" {
			return "int"
		}
		return "float"
	case "string":
		return pythonStringType(pythonStringPrefix(ctx.Text(value)))
	case "concatenated_string":
		typ := "str"
		for _, part := range namedChildren(value) {
			if t := pythonStringType(pythonStringPrefix(ctx.Text(part))); t != "str" {
				typ = t
			}
		}
		return typ
	case "true", "false":
		return "bool"
	case "none":
		return "None"
	case "ellipsis":
		return "ellipsis"
	case "list", "list_comprehension":
		return "list"
	case "dictionary", "dictionary_comprehension":
		return "dict"
	case "set", "set_comprehension":
		return "set"
	case "tuple", "expression_list":
		return "tuple"
	case "comparison_operator", "boolean_operator":
		return "bool"
	case "lambda":
		return "Callable"
	case "parenthesized_expression":
		if inner := namedChildren(value); len(inner) == 1 {
			return pythonInferType(ctx, inner[0])
		}
	case "call":
		fn := value.ChildByFieldName("function")
		if fn != nil && fn.Kind() == "identifier" && pythonBuiltinConstructors[ctx.Text(fn)] {
			return ctx.Text(fn)
		}
	}
	return ""
}

func pythonStringPrefix(text string) string {
	end := strings.IndexAny(text, "'\"")
	if end < 0 {
		return ""
	}
	return strings.ToLower(text[:end])
}

// pythonStringType maps a literal prefix to its type. f-strings are left
// unknown.
func pythonStringType(prefix string) string {
	switch {
	case strings.Contains(prefix, "f"):
		return ""
	case strings.Contains(prefix, "b"):
		return "bytes"
	}
	return "str"
}

func (e *PythonExtractor) extractCall(ctx *ExtractionContext, node *sitter.Node) bool {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		return false
	}
	shape, receiver := shapeOther, ""
	switch callee.Kind() {
	case "identifier":
		shape = shapeIdentifier
	case "attribute":
		shape = shapeMember
		receiver = ctx.Text(callee.ChildByFieldName("object"))
	}
	ctx.AddCall(node, ctx.CompactText(callee), classifyCall(shape, receiver, ctx.Binding()))
	return false
}

func pythonDecorators(ctx *ExtractionContext, node *sitter.Node) []string {
	decorators := []string{}
	parent := node.Parent()
	if parent == nil || parent.Kind() != "decorated_definition" {
		return decorators
	}
	for i := uint(0); i < parent.ChildCount(); i++ {
		child := parent.Child(i)
		if child.Kind() == "decorator" {
			decorators = append(decorators, strings.TrimPrefix(ctx.CompactText(child), "@"))
		}
	}
	return decorators
}

// pythonDocstring returns the cleaned first statement of body when it is a
// plain string literal.
func pythonDocstring(ctx *ExtractionContext, body *sitter.Node) string {
	stmts := namedChildren(body)
	if len(stmts) == 0 || stmts[0].Kind() != "expression_statement" {
		return ""
	}
	expr := stmts[0].NamedChild(0)
	if expr == nil || expr.Kind() != "string" {
		return ""
	}
	text := ctx.Text(expr)
	prefix := pythonStringPrefix(text)
	if strings.ContainsAny(prefix, "fb") {
		return ""
	}
	text = text[len(prefix):]
	for _, quote := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(text, quote) && strings.HasSuffix(text, quote) && len(text) >= 2*len(quote) {
			text = text[len(quote) : len(text)-len(quote)]
			break
		}
	}
	if !strings.Contains(prefix, "r") {
		text = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\'`, "'", `\\`, `\`).Replace(text)
	}
	return cleanDoc(text)
}
