package parser

import (
	"strconv"
	"strings"

	"repoctx/internal/engine/record"
	"repoctx/internal/engine/typenorm"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

type RustExtractor struct {
	// owner is the implementing type while inside an impl block.
	owner string
	// traits collects `impl Trait for T` pairs; applied in Extract.
	traits []rustTraitImpl
}

type rustTraitImpl struct {
	owner string
	trait string
	line  int
}

func (e *RustExtractor) Profile() Profile {
	return Profile{
		Language:        "rust",
		Dialect:         typenorm.Rust,
		Binding:         "self",
		Separators:      []string{".", "::"},
		SelfReceivers:   []string{"Self"},
		ImpliedTypeKind: "impl",
	}
}

// Extract uses a fresh extractor value per file, so the impl state never
// crosses files.
func (e *RustExtractor) Extract(ctx *ExtractionContext, root *sitter.Node) {
	run := &RustExtractor{}
	engine := NewExtractorEngine(map[string]NodeHandler{
		"use_declaration":         run.extractUse,
		"function_item":           run.extractFunction,
		"function_signature_item": run.extractFunction,
		"struct_item":             run.extractStruct,
		"enum_item":               run.extractEnum,
		"union_item":              run.extractStruct,
		"trait_item":              run.extractTrait,
		"impl_item":               run.extractImpl,
		"mod_item":                run.extractMod,
		"const_item":              run.extractConst,
		"static_item":             run.extractConst,
		"call_expression":         run.extractCall,
	})
	engine.Walk(ctx, root)
	run.applyTraitImpls(ctx)
}

func (e *RustExtractor) extractUse(ctx *ExtractionContext, node *sitter.Node) bool {
	arg := node.ChildByFieldName("argument")
	if arg == nil {
		return true
	}
	imp := record.Import{Line: ctx.Line(node), Items: []string{}}
	var aliased []record.Import
	switch arg.Kind() {
	case "scoped_identifier":
		imp.Path = ctx.CompactText(arg.ChildByFieldName("path"))
		imp.Items = []string{ctx.FieldText(arg, "name")}
	case "use_as_clause":
		imp.Path = ctx.CompactText(arg.ChildByFieldName("path"))
		imp.Alias = ctx.FieldText(arg, "alias")
	case "scoped_use_list":
		imp.Path = ctx.CompactText(arg.ChildByFieldName("path"))
		imp.Items, aliased = rustUseItems(ctx, arg.ChildByFieldName("list"))
	case "use_list":
		imp.Items, aliased = rustUseItems(ctx, arg)
	case "use_wildcard":
		imp.Path = strings.TrimSuffix(strings.TrimSuffix(ctx.CompactText(arg), "*"), "::")
		imp.IsStarImport = true
	default:
		imp.Path = ctx.CompactText(arg)
	}
	imp.Path = strings.ReplaceAll(imp.Path, " ", "")
	if len(imp.Items) > 0 || len(aliased) == 0 {
		ctx.Record.Imports = append(ctx.Record.Imports, imp)
	}
	for _, a := range aliased {
		a.Path = imp.Path
		a.Line = imp.Line
		ctx.Record.Imports = append(ctx.Record.Imports, a)
	}
	return true
}

// rustUseItems names the plain entries of a use list. Each `x as y` entry
// gets its own import so its alias survives.
func rustUseItems(ctx *ExtractionContext, list *sitter.Node) ([]string, []record.Import) {
	items := []string{}
	var aliased []record.Import
	for _, child := range namedChildren(list) {
		if child.Kind() == "use_as_clause" {
			aliased = append(aliased, record.Import{
				Items: []string{strings.ReplaceAll(ctx.CompactText(child.ChildByFieldName("path")), " ", "")},
				Alias: ctx.FieldText(child, "alias"),
			})
			continue
		}
		items = append(items, strings.ReplaceAll(ctx.CompactText(child), " ", ""))
	}
	return items, aliased
}

func (e *RustExtractor) extractFunction(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.FieldText(node, "name")
	body := node.ChildByFieldName("body")

	fn := newFunction(ctx, node, name)
	fn.Signature = ctx.Signature(node, body)
	fn.Decorators = rustAttributes(ctx, node)
	fn.Docstring = rustDoc(ctx, node)
	fn.IsAsync = strings.Contains(ctx.ChildText(node, "function_modifiers"), "async")
	fn.IsExported = hasChildKind(node, "visibility_modifier")
	fn.Parameters = e.parameters(ctx, node.ChildByFieldName("parameters"))
	if rt := node.ChildByFieldName("return_type"); rt != nil {
		fn.Returns = []record.Return{{Name: ctx.Norm.Normalize(ctx.Text(rt)), Kind: rustReturnKind(rt)}}
	} else {
		fn.Returns = []record.Return{{Name: ctx.Norm.None(), Kind: record.ReturnBuiltin}}
	}

	switch {
	case e.owner != "" && ctx.CurrentTarget() == nil:
		ctx.DeferMethod(e.owner, fn)
	case ctx.CurrentType() != nil:
		// Trait items are part of the trait's public surface.
		fn.IsExported = fn.IsExported || ctx.CurrentType().IsExported
		ctx.AddFunction(fn)
	default:
		ctx.AddFunction(fn)
	}

	if body == nil {
		return true
	}
	owner := e.owner
	e.owner = ""
	defer func() { e.owner = owner }()
	defer ctx.EnterFunction(fn, "")()
	ctx.WalkChildren(body)
	return true
}

// parameters drops the self receiver in all its forms.
func (e *RustExtractor) parameters(ctx *ExtractionContext, list *sitter.Node) []record.Parameter {
	params := []record.Parameter{}
	for _, child := range namedChildren(list) {
		switch child.Kind() {
		case "parameter":
			params = append(params, record.Parameter{
				Name: ctx.CompactText(child.ChildByFieldName("pattern")),
				Type: ctx.Norm.Normalize(ctx.Text(child.ChildByFieldName("type"))),
			})
		case "variadic_parameter":
			params = append(params, record.Parameter{Name: "...", Type: ctx.Norm.Unknown()})
		}
	}
	return params
}

func rustReturnKind(typeNode *sitter.Node) record.ReturnKind {
	switch typeNode.Kind() {
	case "primitive_type", "unit_type":
		return record.ReturnBuiltin
	case "reference_type", "pointer_type":
		return record.ReturnPointer
	case "array_type", "tuple_type", "function_type":
		return record.ReturnComposite
	case "dynamic_type", "abstract_type":
		return record.ReturnInterface
	}
	return record.ReturnNamed
}

func (e *RustExtractor) newType(ctx *ExtractionContext, node *sitter.Node, kind string) *record.Type {
	return &record.Type{
		Name:       ctx.FieldText(node, "name"),
		Kind:       kind,
		StartLine:  ctx.Line(node),
		EndLine:    ctx.EndLine(node),
		Decorators: rustAttributes(ctx, node),
		Docstring:  rustDoc(ctx, node),
		IsExported: hasChildKind(node, "visibility_modifier"),
		Embedded:   []string{},
		Fields:     []record.Field{},
	}
}

func (e *RustExtractor) extractStruct(ctx *ExtractionContext, node *sitter.Node) bool {
	t := e.newType(ctx, node, "struct")
	body := node.ChildByFieldName("body")
	switch {
	case body == nil:
	case body.Kind() == "field_declaration_list":
		for _, decl := range namedChildren(body) {
			if decl.Kind() != "field_declaration" {
				continue
			}
			t.Fields = append(t.Fields, record.Field{
				Name: ctx.FieldText(decl, "name"),
				Type: ctx.Norm.Normalize(ctx.Text(decl.ChildByFieldName("type"))),
				Line: ctx.Line(decl),
			})
		}
	case body.Kind() == "ordered_field_declaration_list":
		index := 0
		for _, child := range namedChildren(body) {
			if child.Kind() == "visibility_modifier" || child.Kind() == "attribute_item" {
				continue
			}
			t.Fields = append(t.Fields, record.Field{
				Name: strconv.Itoa(index),
				Type: ctx.Norm.Normalize(ctx.Text(child)),
				Line: ctx.Line(child),
			})
			index++
		}
	}
	ctx.AddType(t)
	return true
}

func (e *RustExtractor) extractEnum(ctx *ExtractionContext, node *sitter.Node) bool {
	t := e.newType(ctx, node, "enum")
	for _, variant := range namedChildren(node.ChildByFieldName("body")) {
		if variant.Kind() != "enum_variant" {
			continue
		}
		typ := ctx.Norm.None()
		if body := variant.ChildByFieldName("body"); body != nil {
			typ = ctx.CompactText(body)
		}
		t.Fields = append(t.Fields, record.Field{
			Name: ctx.FieldText(variant, "name"),
			Type: typ,
			Line: ctx.Line(variant),
		})
	}
	ctx.AddType(t)
	return true
}

func (e *RustExtractor) extractTrait(ctx *ExtractionContext, node *sitter.Node) bool {
	t := e.newType(ctx, node, "trait")
	if bounds := node.ChildByFieldName("bounds"); bounds != nil {
		for _, b := range namedChildren(bounds) {
			t.Embedded = append(t.Embedded, ctx.CompactText(b))
		}
	}
	defer ctx.EnterType(t)()
	ctx.WalkChildren(node.ChildByFieldName("body"))
	return true
}

// extractImpl attaches the block's functions to the implementing type after
// the walk. Trait impls also list the trait as embedded on that type.
func (e *RustExtractor) extractImpl(ctx *ExtractionContext, node *sitter.Node) bool {
	owner := rustBaseTypeName(ctx, node.ChildByFieldName("type"))
	if trait := node.ChildByFieldName("trait"); trait != nil {
		e.traits = append(e.traits, rustTraitImpl{owner: owner, trait: ctx.CompactText(trait), line: ctx.Line(node)})
	}
	prev := e.owner
	e.owner = owner
	defer func() { e.owner = prev }()
	ctx.WalkChildren(node.ChildByFieldName("body"))
	return true
}

func rustBaseTypeName(ctx *ExtractionContext, typeNode *sitter.Node) string {
	if typeNode == nil {
		return ""
	}
	if typeNode.Kind() == "generic_type" {
		return rustBaseTypeName(ctx, typeNode.ChildByFieldName("type"))
	}
	if typeNode.Kind() == "reference_type" {
		return rustBaseTypeName(ctx, typeNode.ChildByFieldName("type"))
	}
	return ctx.CompactText(typeNode)
}

// applyTraitImpls runs before method attachment, so a trait impl for a type
// declared elsewhere creates the implied type that its methods join.
func (e *RustExtractor) applyTraitImpls(ctx *ExtractionContext) {
	for _, impl := range e.traits {
		t := ctx.Record.FindType(impl.owner)
		if t == nil {
			t = &record.Type{
				Name:      impl.owner,
				Kind:      ctx.Profile.ImpliedTypeKind,
				StartLine: impl.line,
				EndLine:   impl.line,
				Embedded:  []string{},
			}
			ctx.AddType(t)
		}
		t.Embedded = append(t.Embedded, impl.trait)
	}
}

func (e *RustExtractor) extractMod(ctx *ExtractionContext, node *sitter.Node) bool {
	body := node.ChildByFieldName("body")
	if body == nil {
		return true
	}
	defer ctx.PushScope("mod:" + ctx.FieldText(node, "name"))()
	ctx.WalkChildren(body)
	return true
}

// extractConst records const and static items. `static mut` is a variable.
func (e *RustExtractor) extractConst(ctx *ExtractionContext, node *sitter.Node) bool {
	if !ctx.AtModuleScope() {
		return false
	}
	name := ctx.FieldText(node, "name")
	v := record.Variable{
		Name:       name,
		Type:       ctx.Norm.Normalize(ctx.FieldText(node, "type")),
		Line:       ctx.Line(node),
		IsExported: hasChildKind(node, "visibility_modifier"),
	}
	if node.Kind() == "static_item" && hasChildKind(node, "mutable_specifier") {
		ctx.Record.Variables = append(ctx.Record.Variables, v)
	} else {
		ctx.Record.Constants = append(ctx.Record.Constants, v)
	}
	return false
}

func (e *RustExtractor) extractCall(ctx *ExtractionContext, node *sitter.Node) bool {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		return false
	}
	shape, receiver := shapeOther, ""
	switch callee.Kind() {
	case "identifier":
		shape = shapeIdentifier
	case "field_expression":
		shape = shapeMember
		receiver = ctx.Text(callee.ChildByFieldName("value"))
	case "scoped_identifier":
		shape = shapeMember
		receiver = ctx.Text(callee.ChildByFieldName("path"))
	}
	ctx.AddCall(node, ctx.CompactText(callee), classifyCall(shape, receiver, ctx.Binding()))
	return false
}

// rustAttributes lists the outer attributes directly above node.
func rustAttributes(ctx *ExtractionContext, node *sitter.Node) []string {
	attrs := []string{}
	for prev := node.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		if prev.Kind() == "line_comment" || prev.Kind() == "block_comment" {
			continue
		}
		if prev.Kind() != "attribute_item" {
			break
		}
		text := strings.TrimSuffix(strings.TrimPrefix(ctx.CompactText(prev), "#["), "]")
		attrs = append([]string{text}, attrs...)
	}
	return attrs
}

func rustDoc(ctx *ExtractionContext, node *sitter.Node) string {
	comments := leadingComments(ctx, node, "attribute_item")
	var doc []string
	for _, c := range comments {
		if strings.HasPrefix(c, "///") {
			doc = append(doc, strings.TrimRight(c, "\n"))
		}
	}
	if len(doc) > 0 {
		return lineDoc(doc, "///")
	}
	if len(comments) > 0 {
		return blockDoc(comments[len(comments)-1])
	}
	return ""
}
