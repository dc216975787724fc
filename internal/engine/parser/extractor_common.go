package parser

import (
	"strings"
	"unicode"

	"repoctx/internal/engine/record"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// callShape is the syntactic form of a callee expression.
type callShape int

const (
	shapeIdentifier callShape = iota
	shapeMember
	shapeOther
)

// classifyCall maps a callee shape to its call type. receiver is the object
// expression text of a member access and binding the current-object name.
func classifyCall(shape callShape, receiver, binding string) record.CallType {
	switch shape {
	case shapeIdentifier:
		return record.CallFunction
	case shapeMember:
		if binding != "" && receiver == binding {
			return record.CallMethod
		}
		return record.CallAttribute
	}
	return record.CallComplex
}

func collapseSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// trimQuoted removes one pair of matching quotes.
func trimQuoted(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 && strings.ContainsRune("\"'`", rune(value[0])) && value[len(value)-1] == value[0] {
		return value[1 : len(value)-1]
	}
	return value
}

func isExportedName(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}

func isPublicName(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "#")
}

func childOfKind(node *sitter.Node, kinds ...string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		for _, kind := range kinds {
			if child.Kind() == kind {
				return child
			}
		}
	}
	return nil
}

func hasChildKind(node *sitter.Node, kinds ...string) bool {
	return childOfKind(node, kinds...) != nil
}

func namedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if child := node.NamedChild(i); child != nil && !isComment(child) {
			out = append(out, child)
		}
	}
	return out
}

func isComment(node *sitter.Node) bool {
	switch node.Kind() {
	case "comment", "line_comment", "block_comment":
		return true
	}
	return false
}

// firstErrorNode returns the first ERROR or MISSING node in document order.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Kind() == "ERROR" || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := firstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// cleanDoc strips common leading indentation and surrounding blank lines.
func cleanDoc(doc string) string {
	lines := strings.Split(strings.ReplaceAll(doc, "\t", "        "), "\n")
	if len(lines) == 0 {
		return ""
	}
	indent := -1
	for _, line := range lines[1:] {
		stripped := strings.TrimLeft(line, " ")
		if stripped == "" {
			continue
		}
		if n := len(line) - len(stripped); indent < 0 || n < indent {
			indent = n
		}
	}
	lines[0] = strings.TrimSpace(lines[0])
	if indent > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= indent {
				lines[i] = lines[i][indent:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \r")
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// leadingComments collects the comment block that ends on the line right
// above node, skipping sibling kinds listed in skip (attributes, annotations).
func leadingComments(ctx *ExtractionContext, node *sitter.Node, skip ...string) []string {
	var block []string
	line := ctx.Line(node)
	for prev := node.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		if !prev.IsNamed() && strings.TrimSpace(ctx.Text(prev)) == "" {
			continue
		}
		if containsKind(skip, prev.Kind()) {
			line = ctx.Line(prev)
			continue
		}
		if !isComment(prev) || ctx.EndLine(prev) < line-1 {
			break
		}
		block = append([]string{ctx.Text(prev)}, block...)
		line = ctx.Line(prev)
	}
	return block
}

// blockDoc turns a `/** ... */` comment into its text.
func blockDoc(text string) string {
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	text = strings.TrimSuffix(strings.TrimPrefix(text, "/**"), "*/")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "*")
		lines[i] = strings.TrimPrefix(line, " ")
	}
	return cleanDoc(strings.Join(lines, "\n"))
}

// lineDoc joins `//`-style comment lines after stripping marker.
func lineDoc(lines []string, marker string) string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if !strings.HasPrefix(line, marker) {
			return ""
		}
		line = strings.TrimPrefix(line, marker)
		out = append(out, strings.TrimPrefix(line, " "))
	}
	return cleanDoc(strings.Join(out, "\n"))
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func newFunction(ctx *ExtractionContext, node *sitter.Node, name string) *record.Function {
	return &record.Function{
		Name:      name,
		StartLine: ctx.Line(node),
		EndLine:   ctx.EndLine(node),
	}
}
