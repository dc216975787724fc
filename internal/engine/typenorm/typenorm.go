// Package typenorm maps source-language type expressions into a shared type
// vocabulary. A Normalizer is a pure function of its input and configuration.
package typenorm

import (
	"fmt"
	"strings"
)

type Policy string

const (
	// PolicyNative keeps the source language's type syntax, only cleaning it up.
	PolicyNative Policy = "native"
	// PolicySchema maps base names onto the fixed target vocabulary.
	PolicySchema Policy = "schema"
)

// Target vocabulary used by PolicySchema.
const (
	SchemaInteger = "integer"
	SchemaFloat   = "float"
	SchemaString  = "string"
	SchemaBoolean = "boolean"
	SchemaBytes   = "bytes"
	SchemaList    = "list"
	SchemaMap     = "map"
	SchemaSet     = "set"
	SchemaTuple   = "tuple"
	SchemaNone    = "none"
	SchemaAny     = "any"
)

func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyNative:
		return PolicyNative, nil
	case PolicySchema:
		return PolicySchema, nil
	}
	return "", fmt.Errorf("unknown type policy %q (expected native or schema)", value)
}

type Normalizer struct {
	dialect Dialect
	policy  Policy
	none    map[string]bool
}

func New(d Dialect, policy Policy) *Normalizer {
	none := make(map[string]bool, len(d.NoneSpellings)+1)
	for _, s := range d.NoneSpellings {
		none[s] = true
	}
	if policy == "" {
		policy = PolicyNative
	}
	return &Normalizer{dialect: d, policy: policy, none: none}
}

func (n *Normalizer) Dialect() Dialect { return n.dialect }
func (n *Normalizer) Policy() Policy   { return n.policy }

// Unknown is the token for a missing annotation.
func (n *Normalizer) Unknown() string {
	return n.lookup(n.dialect.UnknownToken)
}

// None is the token for an absent value. It is empty for dialects that
// have no void spelling (Go emits no return entry at all).
func (n *Normalizer) None() string {
	if n.dialect.NoneToken == "" {
		return ""
	}
	return n.lookup(n.dialect.NoneToken)
}

// Normalize maps a type expression to its canonical string.
func (n *Normalizer) Normalize(expr string) string {
	s := strings.TrimSpace(expr)
	if inner, ok := unquote(s); ok {
		return n.Normalize(inner)
	}
	if n.none[s] {
		return n.None()
	}
	if s == "" {
		return n.Unknown()
	}
	if n.policy == PolicySchema && n.dialect.Rewrite != nil {
		if rewritten, ok := n.dialect.Rewrite(s); ok && rewritten != s {
			return n.Normalize(rewritten)
		}
	}

	open, close := n.dialect.Open, n.dialect.Close
	if base, params, ok := SplitGeneric(s, open, close); ok {
		base = n.lookup(base)
		if len(params) == 0 {
			return base
		}
		normalized := make([]string, len(params))
		for i, p := range params {
			normalized[i] = n.Normalize(p)
		}
		return base + string(open) + strings.Join(normalized, ", ") + string(close)
	}
	return n.lookup(s)
}

// lookup applies the schema table with longest-exact-match-first over the
// qualified suffixes of name. Native policy returns name unchanged.
func (n *Normalizer) lookup(name string) string {
	if n.policy != PolicySchema || len(n.dialect.Schema) == 0 {
		return name
	}
	for _, candidate := range qualifiedSuffixes(name) {
		if mapped, ok := n.dialect.Schema[candidate]; ok {
			return mapped
		}
	}
	return name
}

// qualifiedSuffixes lists name, then every shorter suffix that starts after
// a "." or "::" qualifier, longest first.
func qualifiedSuffixes(name string) []string {
	out := []string{name}
	for i := 0; i < len(name); i++ {
		switch {
		case name[i] == '.':
			out = append(out, name[i+1:])
		case name[i] == ':' && i+1 < len(name) && name[i+1] == ':':
			out = append(out, name[i+2:])
			i++
		}
	}
	return out
}

func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	first, last := s[0], s[len(s)-1]
	if (first != '"' && first != '\'') || first != last {
		return "", false
	}
	inner := s[1 : len(s)-1]
	// 'a' | 'b' is a union of literals, not one quoted string.
	if strings.IndexByte(inner, first) >= 0 {
		return "", false
	}
	return inner, true
}

// SplitGeneric splits "Base<open>p1, p2<close>" into its base and top-level
// parameters. It reports false when s is not a single parametrized name.
func SplitGeneric(s string, open, close byte) (string, []string, bool) {
	if len(s) < 3 || s[len(s)-1] != close {
		return "", nil, false
	}
	idx := strings.IndexByte(s, open)
	if idx <= 0 {
		return "", nil, false
	}
	base := strings.TrimSpace(s[:idx])
	if base == "" {
		return "", nil, false
	}
	if matchingClose(s, idx) != len(s)-1 {
		return "", nil, false
	}
	inner := strings.TrimSpace(s[idx+1 : len(s)-1])
	if inner == "" {
		return base, nil, true
	}
	return base, SplitTopLevel(inner), true
}

// SplitTopLevel splits a parameter list on commas at bracket depth zero.
// All of (), [], {} and <> count towards depth; the ">" of "=>" and "->"
// does not.
func SplitTopLevel(s string) []string {
	var params []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}':
			depth--
		case '>':
			if i > 0 && (s[i-1] == '=' || s[i-1] == '-') {
				continue
			}
			depth--
		case ',':
			if depth == 0 {
				params = append(params, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		params = append(params, last)
	}
	return params
}

func matchingClose(s string, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}':
			depth--
		case '>':
			if i > 0 && (s[i-1] == '=' || s[i-1] == '-') {
				continue
			}
			depth--
		}
		if depth == 0 {
			return i
		}
	}
	return -1
}
