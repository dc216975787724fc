// Package record defines the language-agnostic File Record produced for every
// extracted source file. Field names in the JSON/YAML tags are the contract
// consumed by the host indexer.
package record

import (
	"fmt"
	"strings"
	"unicode"
)

type CallType string

const (
	CallFunction  CallType = "function"
	CallMethod    CallType = "method"
	CallAttribute CallType = "attribute"
	CallComplex   CallType = "complex"
)

type ExportKind string

const (
	ExportFunction ExportKind = "function"
	ExportClass    ExportKind = "class"
	ExportVariable ExportKind = "variable"
	ExportConstant ExportKind = "constant"
)

type ReturnKind string

const (
	ReturnBuiltin   ReturnKind = "builtin"
	ReturnNamed     ReturnKind = "named"
	ReturnPointer   ReturnKind = "pointer"
	ReturnComposite ReturnKind = "composite"
	ReturnInterface ReturnKind = "interface"
)

// FileRecord is the complete normalized extraction output for one file.
type FileRecord struct {
	Path      string      `json:"path" yaml:"path"`
	Language  string      `json:"language" yaml:"language"`
	Functions []*Function `json:"functions" yaml:"functions"`
	Types     []*Type     `json:"types" yaml:"types"`
	Variables []Variable  `json:"variables" yaml:"variables"`
	Constants []Variable  `json:"constants" yaml:"constants"`
	Imports   []Import    `json:"imports" yaml:"imports"`
	Exports   []Export    `json:"exports" yaml:"exports"`
	Errors    []string    `json:"errors" yaml:"errors"`
}

type Function struct {
	Name           string      `json:"name" yaml:"name"`
	Signature      string      `json:"signature" yaml:"signature"`
	Parameters     []Parameter `json:"parameters" yaml:"parameters"`
	Returns        []Return    `json:"returns" yaml:"returns"`
	Calls          []Call      `json:"calls" yaml:"calls"`
	CalledBy       []CallerRef `json:"called_by" yaml:"called_by"`
	CallsFunctions []string    `json:"calls_functions" yaml:"calls_functions"`
	StartLine      int         `json:"start_line" yaml:"start_line"`
	EndLine        int         `json:"end_line" yaml:"end_line"`
	Decorators     []string    `json:"decorators" yaml:"decorators"`
	IsAsync        bool        `json:"is_async" yaml:"is_async"`
	Docstring      string      `json:"docstring" yaml:"docstring"`
	IsMethod       bool        `json:"is_method" yaml:"is_method"`
	ClassName      string      `json:"class_name,omitempty" yaml:"class_name,omitempty"`
	Receiver       string      `json:"receiver,omitempty" yaml:"receiver,omitempty"`
	IsExported     bool        `json:"is_exported" yaml:"is_exported"`
}

// QualifiedName is the call-graph vertex id: Type.method for methods, the bare
// name otherwise.
func (f *Function) QualifiedName() string {
	if f.IsMethod && f.ClassName != "" {
		return f.ClassName + "." + f.Name
	}
	return f.Name
}

type Parameter struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Default string `json:"default,omitempty" yaml:"default,omitempty"`
}

type Return struct {
	Name string     `json:"name" yaml:"name"`
	Kind ReturnKind `json:"kind" yaml:"kind"`
}

type Call struct {
	Name string   `json:"name" yaml:"name"`
	Line int      `json:"line" yaml:"line"`
	Type CallType `json:"type" yaml:"type"`
}

type CallerRef struct {
	FunctionName string   `json:"function_name" yaml:"function_name"`
	File         string   `json:"file" yaml:"file"`
	Line         int      `json:"line,omitempty" yaml:"line,omitempty"`
	CallType     CallType `json:"call_type,omitempty" yaml:"call_type,omitempty"`
}

type Type struct {
	Name       string      `json:"name" yaml:"name"`
	Kind       string      `json:"kind" yaml:"kind"`
	Fields     []Field     `json:"fields" yaml:"fields"`
	Methods    []*Function `json:"methods" yaml:"methods"`
	Embedded   []string    `json:"embedded" yaml:"embedded"`
	StartLine  int         `json:"start_line" yaml:"start_line"`
	EndLine    int         `json:"end_line" yaml:"end_line"`
	Decorators []string    `json:"decorators" yaml:"decorators"`
	Docstring  string      `json:"docstring" yaml:"docstring"`
	IsExported bool        `json:"is_exported" yaml:"is_exported"`
}

type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	Tag  string `json:"tag,omitempty" yaml:"tag,omitempty"`
	Line int    `json:"line" yaml:"line"`
}

// Variable is used for both variables and constants.
type Variable struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Line       int    `json:"line" yaml:"line"`
	IsExported bool   `json:"is_exported" yaml:"is_exported"`
}

type Import struct {
	Path         string   `json:"path" yaml:"path"`
	Alias        string   `json:"alias" yaml:"alias"`
	Items        []string `json:"items" yaml:"items"`
	Line         int      `json:"line" yaml:"line"`
	IsStarImport bool     `json:"is_star_import" yaml:"is_star_import"`
}

type Export struct {
	Name string     `json:"name" yaml:"name"`
	Type ExportKind `json:"type" yaml:"type"`
	Line int        `json:"line" yaml:"line"`
}

// New returns an empty record with every collection allocated.
func New(path, language string) *FileRecord {
	rec := &FileRecord{Path: path, Language: language}
	rec.EnsureCollections()
	return rec
}

// Failed returns the no-data-with-error form of a record.
func Failed(path, language, msg string) *FileRecord {
	rec := New(path, language)
	rec.Errors = []string{msg}
	return rec
}

func (r *FileRecord) OK() bool {
	return len(r.Errors) == 0
}

// AllFunctions returns top-level functions followed by the methods of each
// type, in type order.
func (r *FileRecord) AllFunctions() []*Function {
	out := make([]*Function, 0, len(r.Functions))
	out = append(out, r.Functions...)
	for _, t := range r.Types {
		out = append(out, t.Methods...)
	}
	return out
}

// FindType returns the first type with the given name.
func (r *FileRecord) FindType(name string) *Type {
	for _, t := range r.Types {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// EnsureCollections replaces every nil slice so the record never serializes
// a null collection.
func (r *FileRecord) EnsureCollections() {
	if r.Functions == nil {
		r.Functions = []*Function{}
	}
	if r.Types == nil {
		r.Types = []*Type{}
	}
	if r.Variables == nil {
		r.Variables = []Variable{}
	}
	if r.Constants == nil {
		r.Constants = []Variable{}
	}
	if r.Imports == nil {
		r.Imports = []Import{}
	}
	if r.Exports == nil {
		r.Exports = []Export{}
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	for _, fn := range r.Functions {
		fn.ensureCollections()
	}
	for _, t := range r.Types {
		t.ensureCollections()
	}
	for i := range r.Imports {
		if r.Imports[i].Items == nil {
			r.Imports[i].Items = []string{}
		}
	}
}

func (f *Function) ensureCollections() {
	if f.Parameters == nil {
		f.Parameters = []Parameter{}
	}
	if f.Returns == nil {
		f.Returns = []Return{}
	}
	if f.Calls == nil {
		f.Calls = []Call{}
	}
	if f.CalledBy == nil {
		f.CalledBy = []CallerRef{}
	}
	if f.CallsFunctions == nil {
		f.CallsFunctions = []string{}
	}
	if f.Decorators == nil {
		f.Decorators = []string{}
	}
}

func (t *Type) ensureCollections() {
	if t.Fields == nil {
		t.Fields = []Field{}
	}
	if t.Methods == nil {
		t.Methods = []*Function{}
	}
	if t.Embedded == nil {
		t.Embedded = []string{}
	}
	if t.Decorators == nil {
		t.Decorators = []string{}
	}
	for _, m := range t.Methods {
		m.ensureCollections()
	}
}

// Validate checks the line-span invariant of every function and type.
func (r *FileRecord) Validate() error {
	var problems []string
	for _, fn := range r.AllFunctions() {
		if fn.StartLine > fn.EndLine {
			problems = append(problems, fmt.Sprintf("function %s spans %d..%d", fn.QualifiedName(), fn.StartLine, fn.EndLine))
		}
	}
	for _, t := range r.Types {
		if t.StartLine > t.EndLine {
			problems = append(problems, fmt.Sprintf("type %s spans %d..%d", t.Name, t.StartLine, t.EndLine))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid line spans: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsConstantName reports whether name is all-uppercase, or a single leading
// underscore followed by an all-uppercase remainder. Uppercase requires at
// least one cased rune and no lowercase ones.
func IsConstantName(name string) bool {
	if isUpper(name) {
		return true
	}
	return strings.HasPrefix(name, "_") && isUpper(name[1:])
}

func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}
