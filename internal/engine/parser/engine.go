package parser

import (
	"strings"

	"repoctx/internal/engine/record"
	"repoctx/internal/engine/typenorm"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler processes a node for a language-specific extractor.
// Returns true if the handler has walked the node's children itself and the
// engine should not descend.
type NodeHandler func(ctx *ExtractionContext, node *sitter.Node) bool

// ExtractorEngine walks the syntax tree and dispatches node handlers by kind.
type ExtractorEngine struct {
	handlers map[string]NodeHandler
}

func NewExtractorEngine(handlers map[string]NodeHandler) *ExtractorEngine {
	return &ExtractorEngine{handlers: handlers}
}

func (e *ExtractorEngine) Walk(ctx *ExtractionContext, node *sitter.Node) {
	if node == nil {
		return
	}
	prev := ctx.engine
	ctx.engine = e
	defer func() { ctx.engine = prev }()

	ctx.ProcessedChildren = false
	stop := false
	if handler, ok := e.handlers[node.Kind()]; ok {
		stop = handler(ctx, node)
	}

	if !stop && !ctx.ProcessedChildren {
		for i := uint(0); i < node.ChildCount(); i++ {
			e.Walk(ctx, node.Child(i))
		}
	}
}

const moduleScope = "module"

// ExtractionContext carries the per-file traversal state. Every push returns
// a restore func meant for defer, so state never leaks across siblings.
type ExtractionContext struct {
	Source            []byte
	Record            *record.FileRecord
	Norm              *typenorm.Normalizer
	Profile           Profile
	ProcessedChildren bool // If true, the walker will skip this node's children

	engine      *ExtractorEngine
	scopes      []string
	currentType *record.Type
	targets     []*record.Function
	bindings    []string
	deferred    []deferredMethod
}

type deferredMethod struct {
	owner string
	fn    *record.Function
}

func NewExtractionContext(source []byte, rec *record.FileRecord, norm *typenorm.Normalizer, profile Profile) *ExtractionContext {
	return &ExtractionContext{
		Source:  source,
		Record:  rec,
		Norm:    norm,
		Profile: profile,
		scopes:  []string{moduleScope},
	}
}

// Walk dispatches node through the engine currently driving the traversal.
func (c *ExtractionContext) Walk(node *sitter.Node) {
	if c.engine == nil || node == nil {
		return
	}
	c.engine.Walk(c, node)
}

func (c *ExtractionContext) WalkChildren(node *sitter.Node) {
	if node == nil {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		c.Walk(node.Child(i))
	}
}

func (c *ExtractionContext) AtModuleScope() bool {
	return len(c.scopes) == 1
}

// InTypeBody reports whether the innermost frame is a type body.
func (c *ExtractionContext) InTypeBody() bool {
	return c.currentType != nil && strings.HasPrefix(c.scopes[len(c.scopes)-1], "class:")
}

func (c *ExtractionContext) Scope() string {
	return c.scopes[len(c.scopes)-1]
}

// PushScope adds a lexical frame that is neither a type nor a function, such
// as a Rust inline module.
func (c *ExtractionContext) PushScope(frame string) func() {
	c.scopes = append(c.scopes, frame)
	depth := len(c.scopes)
	return func() { c.scopes = c.scopes[:depth-1] }
}

func (c *ExtractionContext) CurrentType() *record.Type {
	return c.currentType
}

func (c *ExtractionContext) AddType(t *record.Type) {
	c.Record.Types = append(c.Record.Types, t)
}

// EnterType records t, pushes its class frame and makes it the current type.
func (c *ExtractionContext) EnterType(t *record.Type) func() {
	c.AddType(t)
	prevType := c.currentType
	restoreScope := c.PushScope("class:" + t.Name)
	c.currentType = t
	return func() {
		c.currentType = prevType
		restoreScope()
	}
}

// AddFunction routes fn into the current type's methods, or into the file's
// top-level functions when no type is being defined.
func (c *ExtractionContext) AddFunction(fn *record.Function) {
	if t := c.currentType; t != nil {
		fn.IsMethod = true
		fn.ClassName = t.Name
		t.Methods = append(t.Methods, fn)
		return
	}
	c.Record.Functions = append(c.Record.Functions, fn)
}

// DeferMethod holds fn until assembly, when it is attached to the type named
// owner (declared anywhere in the file, or implied).
func (c *ExtractionContext) DeferMethod(owner string, fn *record.Function) {
	fn.IsMethod = true
	fn.ClassName = owner
	c.deferred = append(c.deferred, deferredMethod{owner: owner, fn: fn})
}

// EnterFunction makes fn the innermost call target. The current type is
// cleared for the body, so nested definitions are never methods. binding is
// the current-object name inside the body; empty keeps the language default.
func (c *ExtractionContext) EnterFunction(fn *record.Function, binding string) func() {
	prevType := c.currentType
	restoreScope := c.PushScope("function:" + fn.Name)
	c.currentType = nil
	c.targets = append(c.targets, fn)
	if binding == "" {
		binding = c.Binding()
	}
	c.bindings = append(c.bindings, binding)
	return func() {
		c.bindings = c.bindings[:len(c.bindings)-1]
		c.targets = c.targets[:len(c.targets)-1]
		c.currentType = prevType
		restoreScope()
	}
}

// CurrentTarget is the innermost enclosing function definition, or nil at
// module and type-body level.
func (c *ExtractionContext) CurrentTarget() *record.Function {
	if len(c.targets) == 0 {
		return nil
	}
	return c.targets[len(c.targets)-1]
}

// Binding is the current-object name in effect.
func (c *ExtractionContext) Binding() string {
	if len(c.bindings) > 0 {
		return c.bindings[len(c.bindings)-1]
	}
	return c.Profile.Binding
}

// AddCall attaches a call to the innermost enclosing function. Calls outside
// any function are not recorded.
func (c *ExtractionContext) AddCall(node *sitter.Node, name string, ct record.CallType) {
	target := c.CurrentTarget()
	if target == nil || name == "" {
		return
	}
	target.Calls = append(target.Calls, record.Call{
		Name: name,
		Line: c.Line(node),
		Type: ct,
	})
}

func (c *ExtractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.Source[node.StartByte():node.EndByte()])
}

// CompactText is the node text with every whitespace run collapsed to one
// space.
func (c *ExtractionContext) CompactText(node *sitter.Node) string {
	return collapseSpace(c.Text(node))
}

func (c *ExtractionContext) Line(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.StartPosition().Row) + 1
}

func (c *ExtractionContext) EndLine(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.EndPosition().Row) + 1
}

func (c *ExtractionContext) ChildText(node *sitter.Node, kind string) string {
	return c.Text(childOfKind(node, kind))
}

func (c *ExtractionContext) FieldText(node *sitter.Node, field string) string {
	if node == nil {
		return ""
	}
	return c.Text(node.ChildByFieldName(field))
}

// Signature is the declaration header: the text from the start of node up
// to its body, without a trailing ':' or '{'.
func (c *ExtractionContext) Signature(node, body *sitter.Node) string {
	if node == nil {
		return ""
	}
	end := node.EndByte()
	if body != nil && body.StartByte() > node.StartByte() {
		end = body.StartByte()
	}
	text := collapseSpace(string(c.Source[node.StartByte():end]))
	text = strings.TrimSpace(strings.TrimRight(text, ":{ ;"))
	return text
}
