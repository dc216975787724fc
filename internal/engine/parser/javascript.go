package parser

import (
	"strings"

	"repoctx/internal/engine/record"
	"repoctx/internal/engine/typenorm"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// JavaScriptExtractor serves JavaScript, TypeScript and TSX. The TypeScript
// grammars are supersets of the JavaScript one, so the handlers are shared
// and the type-only forms simply never occur in plain JavaScript trees.
type JavaScriptExtractor struct {
	language string
}

func NewJavaScriptExtractor(language string) *JavaScriptExtractor {
	return &JavaScriptExtractor{language: language}
}

func (e *JavaScriptExtractor) Profile() Profile {
	dialect := typenorm.TypeScript
	if e.language == "javascript" {
		dialect = typenorm.JavaScript
	}
	return Profile{
		Language:        e.language,
		Dialect:         dialect,
		Binding:         "this",
		Separators:      []string{"."},
		ImpliedTypeKind: "class",
		IsExported:      isPublicName,
	}
}

func (e *JavaScriptExtractor) Extract(ctx *ExtractionContext, root *sitter.Node) {
	engine := NewExtractorEngine(map[string]NodeHandler{
		"import_statement":               e.extractImport,
		"function_declaration":           e.extractFunction,
		"generator_function_declaration": e.extractFunction,
		"class_declaration":              e.extractClass,
		"abstract_class_declaration":     e.extractClass,
		"class":                          e.extractClass,
		"method_definition":              e.extractMethod,
		"method_signature":               e.extractMethod,
		"abstract_method_signature":      e.extractMethod,
		"public_field_definition":        e.extractField,
		"field_definition":               e.extractField,
		"property_signature":             e.extractField,
		"interface_declaration":          e.extractInterface,
		"type_alias_declaration":         e.extractTypeAlias,
		"enum_declaration":               e.extractEnum,
		"lexical_declaration":            e.extractDeclaration,
		"variable_declaration":           e.extractDeclaration,
		"call_expression":                e.extractCall,
		"new_expression":                 e.extractNew,
	})
	engine.Walk(ctx, root)
}

func (e *JavaScriptExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	imp := record.Import{
		Path:  trimQuoted(ctx.FieldText(node, "source")),
		Line:  ctx.Line(node),
		Items: []string{},
	}
	clause := childOfKind(node, "import_clause")
	for _, child := range namedChildren(clause) {
		switch child.Kind() {
		case "identifier":
			imp.Alias = ctx.Text(child)
		case "namespace_import":
			imp.Alias = ctx.ChildText(child, "identifier")
			imp.IsStarImport = true
		case "named_imports":
			for _, spec := range namedChildren(child) {
				if spec.Kind() == "import_specifier" {
					imp.Items = append(imp.Items, ctx.FieldText(spec, "name"))
				}
			}
		}
	}
	ctx.Record.Imports = append(ctx.Record.Imports, imp)
	return true
}

func (e *JavaScriptExtractor) extractFunction(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	if name == "" {
		name = "default"
	}
	return e.function(ctx, node, node, name)
}

func (e *JavaScriptExtractor) extractMethod(ctx *ExtractionContext, node *sitter.Node) bool {
	return e.function(ctx, node, node, ctx.FieldText(node, "name"))
}

// function records fn for node, whose parameters and body may live on a
// separate value node (an arrow function bound to a const).
func (e *JavaScriptExtractor) function(ctx *ExtractionContext, decl, value *sitter.Node, name string) bool {
	body := value.ChildByFieldName("body")
	fn := newFunction(ctx, decl, name)
	fn.Signature = ctx.Signature(decl, body)
	fn.IsAsync = hasChildKind(value, "async")
	fn.Decorators = jsDecorators(ctx, decl)
	fn.Docstring = jsDoc(ctx, decl)
	fn.IsExported = isPublicName(name) && jsAccessible(ctx, decl)
	fn.Parameters = e.parameters(ctx, value)
	fn.Returns = []record.Return{e.returnType(ctx, value)}
	ctx.AddFunction(fn)

	ctx.Walk(value.ChildByFieldName("parameters"))

	defer ctx.EnterFunction(fn, "")()
	if body != nil {
		ctx.Walk(body)
	}
	return true
}

func (e *JavaScriptExtractor) parameters(ctx *ExtractionContext, value *sitter.Node) []record.Parameter {
	params := []record.Parameter{}
	list := value.ChildByFieldName("parameters")
	if list == nil {
		// `x => x * 2`
		if p := value.ChildByFieldName("parameter"); p != nil {
			params = append(params, record.Parameter{Name: ctx.Text(p), Type: ctx.Norm.Unknown()})
		}
		return params
	}
	for _, child := range namedChildren(list) {
		var p record.Parameter
		switch child.Kind() {
		case "identifier", "object_pattern", "array_pattern":
			p = record.Parameter{Name: ctx.CompactText(child), Type: ctx.Norm.Unknown()}
		case "assignment_pattern":
			p = record.Parameter{
				Name:    ctx.CompactText(child.ChildByFieldName("left")),
				Type:    ctx.Norm.Unknown(),
				Default: ctx.CompactText(child.ChildByFieldName("right")),
			}
		case "rest_pattern":
			p = record.Parameter{Name: "..." + ctx.CompactText(child.NamedChild(0)), Type: ctx.Norm.Normalize("array")}
		case "required_parameter", "optional_parameter":
			pattern := child.ChildByFieldName("pattern")
			if pattern == nil || ctx.Text(pattern) == "this" {
				continue
			}
			p = record.Parameter{Name: ctx.CompactText(pattern), Type: ctx.Norm.Unknown()}
			if pattern.Kind() == "rest_pattern" {
				p.Name = "..." + ctx.CompactText(pattern.NamedChild(0))
				p.Type = ctx.Norm.Normalize("array")
			}
			if t := jsTypeAnnotation(ctx, child.ChildByFieldName("type")); t != "" {
				p.Type = ctx.Norm.Normalize(t)
			}
			if v := child.ChildByFieldName("value"); v != nil {
				p.Default = ctx.CompactText(v)
			}
		default:
			continue
		}
		params = append(params, p)
	}
	return params
}

func (e *JavaScriptExtractor) returnType(ctx *ExtractionContext, value *sitter.Node) record.Return {
	if t := jsTypeAnnotation(ctx, value.ChildByFieldName("return_type")); t != "" {
		return record.Return{Name: ctx.Norm.Normalize(t), Kind: record.ReturnBuiltin}
	}
	return record.Return{Name: ctx.Norm.None(), Kind: record.ReturnBuiltin}
}

// jsTypeAnnotation is the type text of a `: T` annotation node.
func jsTypeAnnotation(ctx *ExtractionContext, node *sitter.Node) string {
	if node == nil {
		return ""
	}
	if node.Kind() == "type_annotation" {
		if inner := namedChildren(node); len(inner) > 0 {
			return ctx.CompactText(inner[0])
		}
		return strings.TrimSpace(strings.TrimPrefix(ctx.CompactText(node), ":"))
	}
	return ctx.CompactText(node)
}

func (e *JavaScriptExtractor) extractClass(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	if name == "" {
		if node.Kind() == "class" {
			// Anonymous class expression; its methods still need a call target.
			return false
		}
		name = "default"
	}
	t := &record.Type{
		Name:       name,
		Kind:       "class",
		StartLine:  ctx.Line(node),
		EndLine:    ctx.EndLine(node),
		Decorators: jsDecorators(ctx, node),
		Docstring:  jsDoc(ctx, node),
		IsExported: isPublicName(name),
		Embedded:   []string{},
	}
	heritage := childOfKind(node, "class_heritage")
	if heritage != nil {
		t.Embedded = jsHeritage(ctx, heritage)
	}
	// extends mixin(Base) calls from the enclosing function.
	ctx.Walk(heritage)

	defer ctx.EnterType(t)()
	ctx.WalkChildren(node.ChildByFieldName("body"))
	return true
}

func jsHeritage(ctx *ExtractionContext, heritage *sitter.Node) []string {
	out := []string{}
	for _, child := range namedChildren(heritage) {
		switch child.Kind() {
		case "extends_clause", "implements_clause", "extends_type_clause":
			for _, base := range namedChildren(child) {
				if base.Kind() != "type_arguments" {
					out = append(out, ctx.CompactText(base))
				}
			}
		default:
			out = append(out, ctx.CompactText(child))
		}
	}
	return out
}

func (e *JavaScriptExtractor) extractField(ctx *ExtractionContext, node *sitter.Node) bool {
	t := ctx.CurrentType()
	if t == nil || !ctx.InTypeBody() {
		return false
	}
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		nameNode = node.ChildByFieldName("property")
	}
	typ := jsTypeAnnotation(ctx, node.ChildByFieldName("type"))
	if typ == "" {
		typ = jsInferType(ctx, node.ChildByFieldName("value"))
	}
	t.Fields = append(t.Fields, record.Field{
		Name: ctx.Text(nameNode),
		Type: ctx.Norm.Normalize(typ),
		Line: ctx.Line(node),
	})
	return false
}

func (e *JavaScriptExtractor) extractInterface(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	t := &record.Type{
		Name:       name,
		Kind:       "interface",
		StartLine:  ctx.Line(node),
		EndLine:    ctx.EndLine(node),
		Docstring:  jsDoc(ctx, node),
		IsExported: isPublicName(name),
		Embedded:   []string{},
	}
	if ext := childOfKind(node, "extends_type_clause"); ext != nil {
		for _, base := range namedChildren(ext) {
			t.Embedded = append(t.Embedded, ctx.CompactText(base))
		}
	}
	defer ctx.EnterType(t)()
	ctx.WalkChildren(node.ChildByFieldName("body"))
	return true
}

func (e *JavaScriptExtractor) extractTypeAlias(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	ctx.Record.Types = append(ctx.Record.Types, &record.Type{
		Name:       name,
		Kind:       "type",
		StartLine:  ctx.Line(node),
		EndLine:    ctx.EndLine(node),
		Docstring:  jsDoc(ctx, node),
		IsExported: isPublicName(name),
		Embedded:   []string{},
	})
	return true
}

func (e *JavaScriptExtractor) extractEnum(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	t := &record.Type{
		Name:       name,
		Kind:       "enum",
		StartLine:  ctx.Line(node),
		EndLine:    ctx.EndLine(node),
		Docstring:  jsDoc(ctx, node),
		IsExported: isPublicName(name),
		Embedded:   []string{},
	}
	for _, member := range namedChildren(node.ChildByFieldName("body")) {
		field := record.Field{Line: ctx.Line(member), Type: ctx.Norm.Unknown()}
		switch member.Kind() {
		case "property_identifier", "string":
			field.Name = trimQuoted(ctx.Text(member))
		case "enum_assignment":
			field.Name = trimQuoted(ctx.FieldText(member, "name"))
			field.Type = ctx.Norm.Normalize(jsInferType(ctx, member.ChildByFieldName("value")))
		default:
			continue
		}
		t.Fields = append(t.Fields, field)
	}
	ctx.Record.Types = append(ctx.Record.Types, t)
	return true
}

// extractDeclaration records module-level bindings. A binding whose value is
// an arrow function or function expression is recorded as a function.
func (e *JavaScriptExtractor) extractDeclaration(ctx *ExtractionContext, node *sitter.Node) bool {
	if !ctx.AtModuleScope() {
		return false
	}
	for _, decl := range namedChildren(node) {
		if decl.Kind() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil || nameNode.Kind() != "identifier" {
			ctx.Walk(decl)
			continue
		}
		name := ctx.Text(nameNode)
		value := decl.ChildByFieldName("value")
		if value != nil && isJSFunctionValue(value) {
			e.function(ctx, decl, value, name)
			continue
		}

		typ := jsTypeAnnotation(ctx, decl.ChildByFieldName("type"))
		if typ == "" {
			typ = jsInferType(ctx, value)
		}
		v := record.Variable{
			Name:       name,
			Type:       ctx.Norm.Normalize(typ),
			Line:       ctx.Line(decl),
			IsExported: isPublicName(name),
		}
		if record.IsConstantName(name) {
			ctx.Record.Constants = append(ctx.Record.Constants, v)
		} else {
			ctx.Record.Variables = append(ctx.Record.Variables, v)
		}
		ctx.Walk(value)
	}
	return true
}

func isJSFunctionValue(value *sitter.Node) bool {
	switch value.Kind() {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

func jsInferType(ctx *ExtractionContext, value *sitter.Node) string {
	if value == nil {
		return ""
	}
	switch value.Kind() {
	case "number":
		return "number"
	case "string", "template_string":
		return "string"
	case "true", "false":
		return "boolean"
	case "null":
		return "null"
	case "array":
		return "Array"
	case "object":
		return "object"
	case "regex":
		return "RegExp"
	case "arrow_function", "function_expression", "function":
		return "Function"
	case "new_expression":
		return ctx.CompactText(value.ChildByFieldName("constructor"))
	case "parenthesized_expression":
		if inner := namedChildren(value); len(inner) == 1 {
			return jsInferType(ctx, inner[0])
		}
	}
	return ""
}

func (e *JavaScriptExtractor) extractCall(ctx *ExtractionContext, node *sitter.Node) bool {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		return false
	}
	shape, receiver := shapeOther, ""
	switch callee.Kind() {
	case "identifier":
		shape = shapeIdentifier
	case "member_expression":
		shape = shapeMember
		receiver = ctx.Text(callee.ChildByFieldName("object"))
	}
	ctx.AddCall(node, ctx.CompactText(callee), classifyCall(shape, receiver, ctx.Binding()))
	return false
}

// extractNew records `new T()` as a call of T.
func (e *JavaScriptExtractor) extractNew(ctx *ExtractionContext, node *sitter.Node) bool {
	ctor := node.ChildByFieldName("constructor")
	if ctor != nil {
		ctx.AddCall(node, ctx.CompactText(ctor), record.CallFunction)
	}
	return false
}

// jsAccessible is false for TypeScript private and protected members.
func jsAccessible(ctx *ExtractionContext, node *sitter.Node) bool {
	modifier := childOfKind(node, "accessibility_modifier")
	return modifier == nil || ctx.Text(modifier) == "public"
}

// jsDecorators collects decorators held as children (JavaScript) or as
// preceding class-body siblings (TypeScript).
func jsDecorators(ctx *ExtractionContext, node *sitter.Node) []string {
	decorators := []string{}
	for prev := node.PrevSibling(); prev != nil && prev.Kind() == "decorator"; prev = prev.PrevSibling() {
		decorators = append([]string{strings.TrimPrefix(ctx.CompactText(prev), "@")}, decorators...)
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child.Kind() == "decorator" {
			decorators = append(decorators, strings.TrimPrefix(ctx.CompactText(child), "@"))
		}
	}
	return decorators
}

// jsDoc returns the JSDoc block right above node, looking past an enclosing
// export statement or declaration list.
func jsDoc(ctx *ExtractionContext, node *sitter.Node) string {
	target := node
	for parent := target.Parent(); parent != nil; parent = parent.Parent() {
		switch parent.Kind() {
		case "export_statement", "lexical_declaration", "variable_declaration":
			target = parent
			continue
		}
		break
	}
	comments := leadingComments(ctx, target, "decorator")
	if len(comments) == 0 {
		return ""
	}
	return blockDoc(comments[len(comments)-1])
}
