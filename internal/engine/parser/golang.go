package parser

import (
	"strings"

	"repoctx/internal/engine/record"
	"repoctx/internal/engine/typenorm"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

type GoExtractor struct{}

func (e *GoExtractor) Profile() Profile {
	return Profile{
		Language:        "go",
		Dialect:         typenorm.Go,
		Separators:      []string{"."},
		ImpliedTypeKind: "named",
		IsExported:      isExportedName,
	}
}

func (e *GoExtractor) Extract(ctx *ExtractionContext, root *sitter.Node) {
	engine := NewExtractorEngine(map[string]NodeHandler{
		"import_declaration":   e.extractImports,
		"function_declaration": e.extractFunction,
		"method_declaration":   e.extractMethod,
		"type_declaration":     e.extractTypes,
		"var_declaration":      e.extractValues,
		"const_declaration":    e.extractValues,
		"call_expression":      e.extractCall,
	})
	engine.Walk(ctx, root)
}

func (e *GoExtractor) extractImports(ctx *ExtractionContext, node *sitter.Node) bool {
	for _, spec := range descendantsOfKind(node, "import_spec") {
		imp := record.Import{
			Path: trimQuoted(ctx.FieldText(spec, "path")),
			Line: ctx.Line(spec),
		}
		if name := spec.ChildByFieldName("name"); name != nil {
			imp.Alias = ctx.Text(name)
			imp.IsStarImport = imp.Alias == "."
		}
		ctx.Record.Imports = append(ctx.Record.Imports, imp)
	}
	return true
}

func (e *GoExtractor) extractFunction(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	fn := e.function(ctx, node, name)
	ctx.AddFunction(fn)

	defer ctx.EnterFunction(fn, "")()
	ctx.WalkChildren(node.ChildByFieldName("body"))
	return true
}

// extractMethod defers the method to its receiver's base type, which may be
// declared later in the file or in another file of the package.
func (e *GoExtractor) extractMethod(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	fn := e.function(ctx, node, name)

	receiverName, receiverType := "", ""
	for _, decl := range namedChildren(node.ChildByFieldName("receiver")) {
		if decl.Kind() != "parameter_declaration" {
			continue
		}
		receiverName = ctx.FieldText(decl, "name")
		receiverType = goBaseTypeName(ctx.Text(decl.ChildByFieldName("type")))
	}
	fn.Receiver = receiverName
	ctx.DeferMethod(receiverType, fn)

	binding := receiverName
	if binding == "_" {
		binding = ""
	}
	defer ctx.EnterFunction(fn, binding)()
	ctx.WalkChildren(node.ChildByFieldName("body"))
	return true
}

func (e *GoExtractor) function(ctx *ExtractionContext, node *sitter.Node, name string) *record.Function {
	fn := newFunction(ctx, node, name)
	fn.Signature = ctx.Signature(node, node.ChildByFieldName("body"))
	fn.Docstring = lineDoc(leadingComments(ctx, node), "//")
	fn.IsExported = isExportedName(name)
	fn.Parameters = e.parameters(ctx, node.ChildByFieldName("parameters"))
	fn.Returns = e.results(ctx, node.ChildByFieldName("result"))
	return fn
}

func (e *GoExtractor) parameters(ctx *ExtractionContext, list *sitter.Node) []record.Parameter {
	params := []record.Parameter{}
	for _, decl := range namedChildren(list) {
		typeNode := decl.ChildByFieldName("type")
		typ := ctx.Text(typeNode)
		if decl.Kind() == "variadic_parameter_declaration" {
			typ = "..." + typ
		} else if decl.Kind() != "parameter_declaration" {
			continue
		}
		typ = ctx.Norm.Normalize(typ)

		names := goDeclNames(ctx, decl)
		if len(names) == 0 {
			params = append(params, record.Parameter{Type: typ})
			continue
		}
		for _, n := range names {
			params = append(params, record.Parameter{Name: n, Type: typ})
		}
	}
	return params
}

// results returns one entry per result value. A function without results
// has no entries.
func (e *GoExtractor) results(ctx *ExtractionContext, result *sitter.Node) []record.Return {
	returns := []record.Return{}
	if result == nil {
		return returns
	}
	if result.Kind() != "parameter_list" {
		return append(returns, e.result(ctx, result))
	}
	for _, decl := range namedChildren(result) {
		typeNode := decl.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		count := len(goDeclNames(ctx, decl))
		if count == 0 {
			count = 1
		}
		for i := 0; i < count; i++ {
			returns = append(returns, e.result(ctx, typeNode))
		}
	}
	return returns
}

func (e *GoExtractor) result(ctx *ExtractionContext, typeNode *sitter.Node) record.Return {
	return record.Return{
		Name: ctx.Norm.Normalize(ctx.Text(typeNode)),
		Kind: goReturnKind(ctx, typeNode),
	}
}

var goBuiltinTypes = map[string]bool{
	"bool": true, "string": true, "byte": true, "rune": true, "uintptr": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
}

func goReturnKind(ctx *ExtractionContext, typeNode *sitter.Node) record.ReturnKind {
	switch typeNode.Kind() {
	case "pointer_type":
		return record.ReturnPointer
	case "slice_type", "array_type", "map_type", "channel_type", "function_type":
		return record.ReturnComposite
	case "interface_type":
		return record.ReturnInterface
	case "type_identifier":
		name := ctx.Text(typeNode)
		if name == "error" || name == "any" {
			return record.ReturnInterface
		}
		if goBuiltinTypes[name] {
			return record.ReturnBuiltin
		}
	}
	return record.ReturnNamed
}

func goDeclNames(ctx *ExtractionContext, decl *sitter.Node) []string {
	var names []string
	for i := uint(0); i < decl.ChildCount(); i++ {
		child := decl.Child(i)
		switch child.Kind() {
		case "identifier", "field_identifier":
			names = append(names, ctx.Text(child))
		}
	}
	return names
}

// goBaseTypeName strips pointers and type parameters from a receiver type.
func goBaseTypeName(typ string) string {
	typ = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(typ), "*"))
	if idx := strings.Index(typ, "["); idx >= 0 {
		typ = typ[:idx]
	}
	return strings.TrimSpace(typ)
}

func (e *GoExtractor) extractTypes(ctx *ExtractionContext, node *sitter.Node) bool {
	specs := descendantsOfKind(node, "type_spec", "type_alias")
	for _, spec := range specs {
		docNode := spec
		if len(specs) == 1 {
			docNode = node
		}
		e.extractType(ctx, spec, docNode)
	}
	return true
}

func (e *GoExtractor) extractType(ctx *ExtractionContext, spec, docNode *sitter.Node) {
	name := ctx.FieldText(spec, "name")
	body := spec.ChildByFieldName("type")
	t := &record.Type{
		Name:       name,
		Kind:       "alias",
		StartLine:  ctx.Line(spec),
		EndLine:    ctx.EndLine(spec),
		Docstring:  lineDoc(leadingComments(ctx, docNode), "//"),
		IsExported: isExportedName(name),
		Embedded:   []string{},
		Fields:     []record.Field{},
	}
	defer ctx.EnterType(t)()

	if spec.Kind() == "type_alias" || body == nil {
		return
	}
	switch body.Kind() {
	case "struct_type":
		t.Kind = "struct"
		e.structFields(ctx, t, childOfKind(body, "field_declaration_list"))
	case "interface_type":
		t.Kind = "interface"
		e.interfaceElems(ctx, t, body)
	}
}

func (e *GoExtractor) structFields(ctx *ExtractionContext, t *record.Type, list *sitter.Node) {
	for _, decl := range namedChildren(list) {
		if decl.Kind() != "field_declaration" {
			continue
		}
		typeNode := decl.ChildByFieldName("type")
		names := goDeclNames(ctx, decl)
		if len(names) == 0 {
			t.Embedded = append(t.Embedded, ctx.CompactText(typeNode))
			continue
		}
		tag := trimQuoted(ctx.FieldText(decl, "tag"))
		for _, n := range names {
			t.Fields = append(t.Fields, record.Field{
				Name: n,
				Type: ctx.Norm.Normalize(ctx.Text(typeNode)),
				Tag:  tag,
				Line: ctx.Line(decl),
			})
		}
	}
}

// interfaceElems records method elements as body-less methods and every
// other element (embedded interfaces, constraints) as embedded.
func (e *GoExtractor) interfaceElems(ctx *ExtractionContext, t *record.Type, body *sitter.Node) {
	for _, elem := range namedChildren(body) {
		switch elem.Kind() {
		case "method_elem", "method_spec":
			name := ctx.FieldText(elem, "name")
			fn := newFunction(ctx, elem, name)
			fn.Signature = ctx.CompactText(elem)
			fn.Docstring = lineDoc(leadingComments(ctx, elem), "//")
			fn.IsExported = isExportedName(name)
			fn.Parameters = e.parameters(ctx, elem.ChildByFieldName("parameters"))
			fn.Returns = e.results(ctx, elem.ChildByFieldName("result"))
			ctx.AddFunction(fn)
		default:
			t.Embedded = append(t.Embedded, ctx.CompactText(elem))
		}
	}
}

// extractValues records package-level var and const specs. Consts without
// a value repeat the previous spec's type, as iota groups do.
func (e *GoExtractor) extractValues(ctx *ExtractionContext, node *sitter.Node) bool {
	if !ctx.AtModuleScope() {
		return false
	}
	isConst := node.Kind() == "const_declaration"
	specKind := "var_spec"
	if isConst {
		specKind = "const_spec"
	}

	previous := ""
	for _, spec := range descendantsOfKind(node, specKind) {
		var values []*sitter.Node
		if list := spec.ChildByFieldName("value"); list != nil {
			values = namedChildren(list)
		}
		explicit := spec.ChildByFieldName("type")
		for i, name := range goDeclNames(ctx, spec) {
			var typ string
			switch {
			case explicit != nil:
				typ = ctx.Text(explicit)
			case i < len(values):
				typ = goInferType(ctx, values[i])
			case isConst && len(values) == 0:
				typ = previous
			}
			if i == 0 {
				previous = typ
			}
			if name == "_" {
				continue
			}
			v := record.Variable{
				Name:       name,
				Type:       ctx.Norm.Normalize(typ),
				Line:       ctx.Line(spec),
				IsExported: isExportedName(name),
			}
			if isConst {
				ctx.Record.Constants = append(ctx.Record.Constants, v)
			} else {
				ctx.Record.Variables = append(ctx.Record.Variables, v)
			}
		}
	}
	return false
}

func goInferType(ctx *ExtractionContext, value *sitter.Node) string {
	switch value.Kind() {
	case "int_literal":
		return "int"
	case "float_literal":
		return "float64"
	case "imaginary_literal":
		return "complex128"
	case "rune_literal":
		return "rune"
	case "interpreted_string_literal", "raw_string_literal":
		return "string"
	case "true", "false":
		return "bool"
	case "iota":
		return "int"
	case "identifier":
		if ctx.Text(value) == "iota" {
			return "int"
		}
	case "composite_literal":
		return ctx.CompactText(value.ChildByFieldName("type"))
	case "unary_expression":
		operand := value.ChildByFieldName("operand")
		if operand != nil && operand.Kind() == "composite_literal" && strings.HasPrefix(ctx.Text(value), "&") {
			return "*" + ctx.CompactText(operand.ChildByFieldName("type"))
		}
	case "binary_expression":
		left := goInferType(ctx, value.ChildByFieldName("left"))
		if left != "" && left == goInferType(ctx, value.ChildByFieldName("right")) {
			return left
		}
	case "parenthesized_expression":
		if inner := namedChildren(value); len(inner) == 1 {
			return goInferType(ctx, inner[0])
		}
	}
	return ""
}

func (e *GoExtractor) extractCall(ctx *ExtractionContext, node *sitter.Node) bool {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		return false
	}
	name := ctx.CompactText(callee)
	shape, receiver := shapeOther, ""
	switch callee.Kind() {
	case "identifier":
		shape = shapeIdentifier
	case "selector_expression":
		shape = shapeMember
		receiver = ctx.Text(callee.ChildByFieldName("operand"))
	case "func_literal":
		name = "<anonymous>"
	}
	ctx.AddCall(node, name, classifyCall(shape, receiver, ctx.Binding()))
	return false
}

// descendantsOfKind collects nodes of the given kinds below node without
// descending into a match.
func descendantsOfKind(node *sitter.Node, kinds ...string) []*sitter.Node {
	var out []*sitter.Node
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		for i := uint(0); i < n.ChildCount(); i++ {
			child := n.Child(i)
			if containsKind(kinds, child.Kind()) {
				out = append(out, child)
				continue
			}
			visit(child)
		}
	}
	if node != nil {
		visit(node)
	}
	return out
}
