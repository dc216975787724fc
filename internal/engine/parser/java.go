package parser

import (
	"strings"

	"repoctx/internal/engine/record"
	"repoctx/internal/engine/typenorm"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

type JavaExtractor struct{}

func (e *JavaExtractor) Profile() Profile {
	return Profile{
		Language:        "java",
		Dialect:         typenorm.Java,
		Binding:         "this",
		Separators:      []string{"."},
		ImpliedTypeKind: "class",
	}
}

func (e *JavaExtractor) Extract(ctx *ExtractionContext, root *sitter.Node) {
	engine := NewExtractorEngine(map[string]NodeHandler{
		"import_declaration":              e.extractImport,
		"class_declaration":               e.extractType,
		"interface_declaration":           e.extractType,
		"enum_declaration":                e.extractType,
		"record_declaration":              e.extractType,
		"annotation_type_declaration":     e.extractType,
		"method_declaration":              e.extractMethod,
		"constructor_declaration":         e.extractMethod,
		"compact_constructor_declaration": e.extractMethod,
		"field_declaration":               e.extractField,
		"constant_declaration":            e.extractField,
		"enum_constant":                   e.extractEnumConstant,
		"method_invocation":               e.extractCall,
		"object_creation_expression":      e.extractNew,
		"explicit_constructor_invocation": e.extractConstructorCall,
	})
	engine.Walk(ctx, root)
}

// extractImport splits `a.b.C` into path a.b and item C. Star imports keep
// the whole package as path.
func (e *JavaExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	name := childOfKind(node, "scoped_identifier", "identifier")
	full := strings.ReplaceAll(ctx.CompactText(name), " ", "")
	imp := record.Import{Line: ctx.Line(node), Items: []string{}}
	if hasChildKind(node, "asterisk") {
		imp.Path = full
		imp.IsStarImport = true
	} else if idx := strings.LastIndex(full, "."); idx >= 0 {
		imp.Path = full[:idx]
		imp.Items = []string{full[idx+1:]}
	} else {
		imp.Path = full
	}
	ctx.Record.Imports = append(ctx.Record.Imports, imp)
	return true
}

func (e *JavaExtractor) extractType(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	kind := strings.TrimSuffix(node.Kind(), "_declaration")
	if kind == "annotation_type" {
		kind = "interface"
	}
	mods := childOfKind(node, "modifiers")
	t := &record.Type{
		Name:       name,
		Kind:       kind,
		StartLine:  ctx.Line(node),
		EndLine:    ctx.EndLine(node),
		Decorators: javaAnnotations(ctx, mods),
		Docstring:  javaDoc(ctx, node),
		IsExported: javaIsPublic(ctx, node, mods),
		Embedded:   []string{},
		Fields:     []record.Field{},
	}
	if sc := node.ChildByFieldName("superclass"); sc != nil {
		t.Embedded = append(t.Embedded, javaTypeList(ctx, sc)...)
	}
	for _, clause := range []string{"super_interfaces", "extends_interfaces"} {
		if c := childOfKind(node, clause); c != nil {
			t.Embedded = append(t.Embedded, javaTypeList(ctx, c)...)
		}
	}
	if kind == "record" {
		for _, p := range e.parameters(ctx, node.ChildByFieldName("parameters")) {
			t.Fields = append(t.Fields, record.Field{Name: p.Name, Type: p.Type, Line: ctx.Line(node)})
		}
	}

	defer ctx.EnterType(t)()
	ctx.WalkChildren(node.ChildByFieldName("body"))
	return true
}

func javaTypeList(ctx *ExtractionContext, clause *sitter.Node) []string {
	var out []string
	for _, child := range namedChildren(clause) {
		if child.Kind() == "type_list" {
			out = append(out, javaTypeList(ctx, child)...)
			continue
		}
		out = append(out, ctx.CompactText(child))
	}
	return out
}

func (e *JavaExtractor) extractMethod(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	body := node.ChildByFieldName("body")
	mods := childOfKind(node, "modifiers")

	fn := newFunction(ctx, node, name)
	fn.Signature = ctx.Signature(node, body)
	fn.Decorators = javaAnnotations(ctx, mods)
	fn.Docstring = javaDoc(ctx, node)
	fn.IsExported = javaIsPublic(ctx, node, mods)
	fn.Parameters = e.parameters(ctx, node.ChildByFieldName("parameters"))
	if rt := node.ChildByFieldName("type"); rt != nil {
		fn.Returns = []record.Return{{Name: ctx.Norm.Normalize(ctx.Text(rt)), Kind: javaReturnKind(rt)}}
	} else if t := ctx.CurrentType(); t != nil {
		// Constructors produce their own type.
		fn.Returns = []record.Return{{Name: t.Name, Kind: record.ReturnNamed}}
	}
	ctx.AddFunction(fn)

	defer ctx.EnterFunction(fn, "")()
	ctx.WalkChildren(body)
	return true
}

func (e *JavaExtractor) parameters(ctx *ExtractionContext, list *sitter.Node) []record.Parameter {
	params := []record.Parameter{}
	for _, child := range namedChildren(list) {
		switch child.Kind() {
		case "formal_parameter":
			typ := ctx.Text(child.ChildByFieldName("type"))
			if dims := child.ChildByFieldName("dimensions"); dims != nil {
				typ += ctx.Text(dims)
			}
			params = append(params, record.Parameter{
				Name: ctx.FieldText(child, "name"),
				Type: ctx.Norm.Normalize(typ),
			})
		case "spread_parameter":
			var typeNode, declarator *sitter.Node
			for _, sub := range namedChildren(child) {
				switch sub.Kind() {
				case "variable_declarator":
					declarator = sub
				case "modifiers":
				default:
					if typeNode == nil {
						typeNode = sub
					}
				}
			}
			params = append(params, record.Parameter{
				Name: "..." + ctx.FieldText(declarator, "name"),
				Type: ctx.Norm.Normalize(ctx.Text(typeNode) + "[]"),
			})
		}
	}
	return params
}

func javaReturnKind(typeNode *sitter.Node) record.ReturnKind {
	switch typeNode.Kind() {
	case "integral_type", "floating_point_type", "boolean_type", "void_type":
		return record.ReturnBuiltin
	case "array_type", "generic_type":
		return record.ReturnComposite
	}
	return record.ReturnNamed
}

// extractField records fields on the enclosing type. Static final fields of
// a top-level type are also the file's constants.
func (e *JavaExtractor) extractField(ctx *ExtractionContext, node *sitter.Node) bool {
	t := ctx.CurrentType()
	if t == nil || !ctx.InTypeBody() {
		return false
	}
	mods := childOfKind(node, "modifiers")
	typ := ctx.Norm.Normalize(ctx.FieldText(node, "type"))
	modText := ctx.CompactText(mods)
	isConstant := node.Kind() == "constant_declaration" ||
		t.Kind == "interface" ||
		(strings.Contains(modText, "static") && strings.Contains(modText, "final"))
	topLevel := len(ctx.scopes) == 2

	for _, decl := range namedChildren(node) {
		if decl.Kind() != "variable_declarator" {
			continue
		}
		name := ctx.FieldText(decl, "name")
		t.Fields = append(t.Fields, record.Field{Name: name, Type: typ, Line: ctx.Line(decl)})
		if isConstant && topLevel {
			ctx.Record.Constants = append(ctx.Record.Constants, record.Variable{
				Name:       name,
				Type:       typ,
				Line:       ctx.Line(decl),
				IsExported: t.IsExported && javaIsPublic(ctx, node, mods),
			})
		}
	}
	return false
}

func (e *JavaExtractor) extractEnumConstant(ctx *ExtractionContext, node *sitter.Node) bool {
	if t := ctx.CurrentType(); t != nil {
		t.Fields = append(t.Fields, record.Field{
			Name: ctx.FieldText(node, "name"),
			Type: t.Name,
			Line: ctx.Line(node),
		})
	}
	return false
}

func (e *JavaExtractor) extractCall(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	object := node.ChildByFieldName("object")
	if object == nil {
		ctx.AddCall(node, name, classifyCall(shapeIdentifier, "", ctx.Binding()))
		return false
	}
	receiver := ctx.CompactText(object)
	ctx.AddCall(node, receiver+"."+name, classifyCall(shapeMember, receiver, ctx.Binding()))
	return false
}

func (e *JavaExtractor) extractNew(ctx *ExtractionContext, node *sitter.Node) bool {
	typ := ctx.CompactText(node.ChildByFieldName("type"))
	if idx := strings.Index(typ, "<"); idx >= 0 {
		typ = typ[:idx]
	}
	ctx.AddCall(node, typ, record.CallFunction)
	return false
}

// extractConstructorCall records this(...) as a call to the enclosing class's
// constructor and super(...) under the name super.
func (e *JavaExtractor) extractConstructorCall(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "constructor")
	if name == "this" {
		if fn := ctx.CurrentTarget(); fn != nil && fn.ClassName != "" {
			name = fn.ClassName
		}
	}
	ctx.AddCall(node, name, record.CallFunction)
	return false
}

func javaAnnotations(ctx *ExtractionContext, mods *sitter.Node) []string {
	out := []string{}
	for _, child := range namedChildren(mods) {
		switch child.Kind() {
		case "marker_annotation", "annotation":
			out = append(out, strings.TrimPrefix(ctx.CompactText(child), "@"))
		}
	}
	return out
}

// javaIsPublic treats interface members as implicitly public.
func javaIsPublic(ctx *ExtractionContext, node, mods *sitter.Node) bool {
	for i := uint(0); mods != nil && i < mods.ChildCount(); i++ {
		switch ctx.Text(mods.Child(i)) {
		case "public":
			return true
		case "private", "protected":
			return false
		}
	}
	if body := node.Parent(); body != nil && body.Kind() == "interface_body" {
		return true
	}
	return false
}

func javaDoc(ctx *ExtractionContext, node *sitter.Node) string {
	comments := leadingComments(ctx, node)
	if len(comments) == 0 {
		return ""
	}
	return blockDoc(comments[len(comments)-1])
}
