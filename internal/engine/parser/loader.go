package parser

import (
	"fmt"
	"sort"

	"repoctx/internal/shared/util"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// GrammarLoader holds the compiled grammar of every enabled language. Grammars
// are immutable and shared by all parser pools.
type GrammarLoader struct {
	languages map[string]*sitter.Language
	registry  map[string]LanguageSpec
}

func NewGrammarLoader() (*GrammarLoader, error) {
	return NewGrammarLoaderWithRegistry(nil)
}

func NewGrammarLoaderWithRegistry(registry map[string]LanguageSpec) (*GrammarLoader, error) {
	if registry == nil {
		var err error
		registry, err = BuildLanguageRegistry(nil)
		if err != nil {
			return nil, err
		}
	}

	gl := &GrammarLoader{
		languages: make(map[string]*sitter.Language),
		registry:  cloneLanguageRegistry(registry),
	}

	for _, langID := range util.SortedKeys(gl.registry) {
		if !gl.registry[langID].Enabled {
			continue
		}
		switch langID {
		case "go":
			gl.languages[langID] = sitter.NewLanguage(tree_sitter_go.Language())
		case "java":
			gl.languages[langID] = sitter.NewLanguage(tree_sitter_java.Language())
		case "javascript":
			gl.languages[langID] = sitter.NewLanguage(tree_sitter_javascript.Language())
		case "python":
			gl.languages[langID] = sitter.NewLanguage(tree_sitter_python.Language())
		case "rust":
			gl.languages[langID] = sitter.NewLanguage(tree_sitter_rust.Language())
		case "tsx":
			gl.languages[langID] = sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
		case "typescript":
			gl.languages[langID] = sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
		default:
			return nil, fmt.Errorf("language %q is enabled but has no grammar", langID)
		}
	}

	return gl, nil
}

// Language returns the grammar for an enabled language, or nil.
func (gl *GrammarLoader) Language(id string) *sitter.Language {
	return gl.languages[id]
}

func (gl *GrammarLoader) LanguageRegistry() map[string]LanguageSpec {
	return cloneLanguageRegistry(gl.registry)
}

func (gl *GrammarLoader) EnabledLanguages() []string {
	return util.SortedKeys(gl.languages)
}

func (gl *GrammarLoader) SupportedExtensions() []string {
	set := make(map[string]bool)
	for _, spec := range gl.registry {
		if !spec.Enabled {
			continue
		}
		for _, ext := range spec.Extensions {
			set[ext] = true
		}
	}
	extensions := make([]string, 0, len(set))
	for ext := range set {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	return extensions
}
