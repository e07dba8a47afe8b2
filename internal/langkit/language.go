// Package langkit holds the grammar registry and the small set of
// language-aware helpers (extension detection, field-name fallback chains,
// function-like-kind classification) shared by the parse service, the
// symbol index, the tree differ, and the semantic validator, so that none
// of those packages needs to depend on another to agree on what a
// "function" or a "name field" is.
package langkit

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language identifies one of the grammars the registry can load.
type Language string

const (
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangRust       Language = "rust"
	LangJava       Language = "java"
)

// Registry is the grammar-loader: it generalizes the spec's external
// `load_parsers(paths) → map<ext, {parser, query}>` contract into a
// concrete in-process table of *sitter.Language by Language.
type Registry struct {
	mu        sync.RWMutex
	languages map[Language]*sitter.Language
}

// NewRegistry builds a registry with every supported grammar pre-loaded.
func NewRegistry() *Registry {
	r := &Registry{languages: make(map[Language]*sitter.Language)}
	r.languages[LangC] = c.GetLanguage()
	r.languages[LangCPP] = cpp.GetLanguage()
	r.languages[LangGo] = golang.GetLanguage()
	r.languages[LangPython] = python.GetLanguage()
	r.languages[LangJavaScript] = javascript.GetLanguage()
	r.languages[LangTypeScript] = typescript.GetLanguage()
	r.languages[LangRust] = rust.GetLanguage()
	r.languages[LangJava] = java.GetLanguage()
	return r
}

// Get returns the sitter.Language for lang, or nil if unsupported.
func (r *Registry) Get(lang Language) *sitter.Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.languages[lang]
}

// DetectLanguage maps a file extension to a Language; empty string means
// unsupported.
func DetectLanguage(filename string) Language {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".c", ".h":
		return LangC
	case ".cpp", ".cc", ".cxx", ".hpp", ".hxx":
		return LangCPP
	case ".go":
		return LangGo
	case ".py":
		return LangPython
	case ".js", ".mjs", ".cjs":
		return LangJavaScript
	case ".ts", ".tsx":
		return LangTypeScript
	case ".rs":
		return LangRust
	case ".java":
		return LangJava
	default:
		return ""
	}
}

// IsSupportedFile reports whether filePath's extension maps to a known
// language.
func IsSupportedFile(filePath string) bool {
	return DetectLanguage(filePath) != ""
}

// functionLikeKinds are the node kinds the differ and identifier lookup
// treat as function-like, per spec §4.3/§4.5.
var functionLikeKinds = map[string]bool{
	"function_declaration": true,
	"function_definition":  true,
	"method_declaration":   true,
	"method_definition":    true,
	"class_method":         true,
	"method":               true,
	"arrow_function":       true,
	"function_item":        true,
}

// IsFunctionLikeKind reports whether kind is one of the function/method
// node kinds recognized across the supported grammars. This set is shared
// by symbol extraction (C3) and the tree differ (C5) so both components
// agree on what counts as a function; it is a superset of the literal
// kind lists named in spec §4.3/§4.5, extended with the real tree-sitter
// kinds Go (method_declaration) and Rust (function_item) actually emit —
// the literal lists alone would leave those two languages with zero
// extractable methods/functions.
func IsFunctionLikeKind(kind string) bool {
	return functionLikeKinds[kind]
}

// classLikeKinds are the node kinds that introduce a nested-member scope
// per spec §4.3.
var classLikeKinds = map[string]bool{
	"class_declaration":     true,
	"class":                 true,
	"class_definition":      true,
	"interface_declaration": true,
}

// IsClassLikeKind reports whether kind is a class/interface node kind.
func IsClassLikeKind(kind string) bool {
	return classLikeKinds[kind]
}

// variableLikeKinds are the node kinds recognized as variable declarations
// per spec §4.3.
var variableLikeKinds = map[string]bool{
	"variable_declaration": true,
	"constant_declaration": true,
	"let_declaration":      true,
	"var_declaration":      true,
	"const_declaration":    true,
}

// IsVariableLikeKind reports whether kind is a variable/constant
// declaration node kind.
func IsVariableLikeKind(kind string) bool {
	return variableLikeKinds[kind]
}

// containerKinds are body/block container node kinds that the symbol-index
// walk descends into transparently without treating the container itself
// as a scope boundary (spec §4.3: "descent skips block/function-body/
// class-body/statement-block children except when entering them as class
// or function bodies").
var containerKinds = map[string]bool{
	"block":            true,
	"statement_block":  true,
	"compound_statement": true,
	"class_body":       true,
	"program":          true,
	"source_file":      true,
	"module":           true,
}

// IsContainerKind reports whether kind is a transparent body/block
// container that should be descended into without starting a new scope.
func IsContainerKind(kind string) bool {
	return containerKinds[kind]
}

// nameFieldAliases lists, per the spec's "duck-typed field access" design
// note (§9), the field-name aliases tried in order to find a node's name.
var nameFieldAliases = []string{"name", "id", "identifier"}

// NameField returns the text of the first of nameFieldAliases present on
// node, encapsulating the child_for_field("name") ?? ("id") ?? ("identifier")
// fallback chain the spec calls out as a concern to centralize.
func NameField(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	for _, alias := range nameFieldAliases {
		if child := node.ChildByFieldName(alias); child != nil {
			return string(content[child.StartByte():child.EndByte()])
		}
	}
	return ""
}

// bodyFieldAliases are the field names that may hold a function-like
// node's body, per the GLOSSARY's "Body-field node" definition.
var bodyFieldAliases = []string{"body", "block", "statement", "value"}

// BodyField returns the body-field child of node, trying each alias in
// bodyFieldAliases in order, or nil if none is present.
func BodyField(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	for _, alias := range bodyFieldAliases {
		if child := node.ChildByFieldName(alias); child != nil {
			return child
		}
	}
	return nil
}
