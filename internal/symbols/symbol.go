// Package symbols implements the Symbol Index: extraction of
// function/method/class/interface/variable symbols from a parsed tree,
// canonical-id assignment, the intra-file dependency pass, and the
// cross-file reference queries the rest of the engine uses to locate and
// relate declarations.
//
// Extraction is grounded on the teacher's extractGoNodes/extractPythonNodes/
// extractCNodes/extractJSNodes/extractRustNodes/extractJavaNodes family in
// internal/parser/parser.go, generalized from "record a flat CodeNode" to
// "build a Symbol honoring parent_id and Class.method:line canonical ids."
// The dependency pass generalizes internal/parser/symbol_table.go's
// EdgeExtractor from call-graph edges to same-file Symbol dependency edges.
package symbols

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/heefoo/codesurgeon/internal/langkit"
)

// Kind is the closed set of symbol kinds, per spec §3.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindVariable  Kind = "variable"
)

// Position is a source location whose Line is 1-indexed (user boundary),
// matching spec §3's SourcePosition after the internal 0-indexed row is
// converted; Column is tree-sitter's 0-indexed column, unconverted.
type Position struct {
	Line   int
	Column int
}

// Symbol is one extracted declaration.
type Symbol struct {
	ID           string
	Kind         Kind
	Name         string
	FilePath     string
	Start        Position
	End          Position
	ParentID     string
	References   map[string]bool // paths of other files whose symbols depend on this symbol
	Dependencies map[string]bool // ids of symbols this symbol depends on
}

// Index is the Symbol Index (C3): symbol-id -> Symbol, file-path -> set of
// symbol-ids, and file-path -> set of referring file-paths. All three maps
// are kept consistent by update_file_symbols' destructive replace.
type Index struct {
	mu            sync.RWMutex
	symbols       map[string]*Symbol
	fileSymbols   map[string]map[string]bool // file -> symbol ids declared there
	referredBy    map[string]map[string]bool // file -> set of files that reference it
}

// NewIndex constructs an empty Symbol Index.
func NewIndex() *Index {
	return &Index{
		symbols:     make(map[string]*Symbol),
		fileSymbols: make(map[string]map[string]bool),
		referredBy:  make(map[string]map[string]bool),
	}
}

// UpdateFileSymbols destructively replaces path's symbols: it first purges
// every prior symbol for path from both the primary and reverse maps, then
// extracts and records the new set from root, then runs the dependency
// pass.
func (idx *Index) UpdateFileSymbols(path string, root *sitter.Node, content []byte) []*Symbol {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.purgeFileLocked(path)

	var extracted []*Symbol
	walk(root, path, content, "", &extracted)

	for _, sym := range extracted {
		idx.symbols[sym.ID] = sym
		if idx.fileSymbols[path] == nil {
			idx.fileSymbols[path] = make(map[string]bool)
		}
		idx.fileSymbols[path][sym.ID] = true
	}

	extractDependencies(root, path, content, extracted)

	for _, sym := range extracted {
		for dep := range sym.Dependencies {
			if target, ok := idx.symbols[dep]; ok && target.FilePath != path {
				if target.References == nil {
					target.References = make(map[string]bool)
				}
				target.References[path] = true
				if idx.referredBy[target.FilePath] == nil {
					idx.referredBy[target.FilePath] = make(map[string]bool)
				}
				idx.referredBy[target.FilePath][path] = true
			}
		}
	}

	return extracted
}

// purgeFileLocked removes every symbol previously declared in path from
// the primary map, the file-symbols map, and any reverse-reference
// bookkeeping pointing at it.
func (idx *Index) purgeFileLocked(path string) {
	for id := range idx.fileSymbols[path] {
		delete(idx.symbols, id)
	}
	delete(idx.fileSymbols, path)
	delete(idx.referredBy, path)
	for _, referrers := range idx.referredBy {
		delete(referrers, path)
	}
}

// FileSymbols returns every symbol declared in path.
func (idx *Index) FileSymbols(path string) []*Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []*Symbol
	for id := range idx.fileSymbols[path] {
		if sym, ok := idx.symbols[id]; ok {
			out = append(out, sym)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the symbol with the given canonical id.
func (idx *Index) Get(id string) (*Symbol, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	sym, ok := idx.symbols[id]
	return sym, ok
}

// FindByName returns every symbol whose name matches pattern. If pattern
// compiles as a regular expression it is matched as one; otherwise it is
// compared literally.
func (idx *Index) FindByName(pattern string) []*Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	re, reErr := regexp.Compile(pattern)

	var out []*Symbol
	for _, sym := range idx.symbols {
		if reErr == nil && re.MatchString(sym.Name) {
			out = append(out, sym)
			continue
		}
		if sym.Name == pattern {
			out = append(out, sym)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RelatedFiles returns the union of files path's symbols depend on and
// files that reference path's symbols.
func (idx *Index) RelatedFiles(path string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	related := make(map[string]bool)
	for id := range idx.fileSymbols[path] {
		sym := idx.symbols[id]
		if sym == nil {
			continue
		}
		for dep := range sym.Dependencies {
			if target, ok := idx.symbols[dep]; ok && target.FilePath != path {
				related[target.FilePath] = true
			}
		}
	}
	for referrer := range idx.referredBy[path] {
		related[referrer] = true
	}

	out := make([]string, 0, len(related))
	for f := range related {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// canonicalID builds a symbol's canonical id; scopeName is its one-level
// nesting parent: the Go-style receiver type (for methods) or an enclosing
// class name (for class members).
func canonicalID(name string, line int, scopeName string) string {
	if scopeName != "" {
		return fmt.Sprintf("%s.%s:%d", scopeName, name, line)
	}
	return fmt.Sprintf("%s:%d", name, line)
}

func receiverTypeName(node *sitter.Node, content []byte) string {
	receiver := node.ChildByFieldName("receiver")
	if receiver == nil {
		return ""
	}
	text := string(content[receiver.StartByte():receiver.EndByte()])
	text = strings.TrimPrefix(strings.TrimSpace(strings.Trim(text, "()")), "*")
	fields := strings.Fields(text)
	if len(fields) == 2 {
		return strings.TrimPrefix(fields[1], "*")
	}
	return text
}

// walk is the single, language-agnostic extraction pass described in
// spec §4.3: it classifies nodes by kind (not by per-language switch,
// since the declared kind lists are shared across the supported
// grammars), skipping transparent block/body containers, and entering
// class bodies to discover nested members; function bodies are not entered.
func walk(node *sitter.Node, filePath string, content []byte, scopeID string, out *[]*Symbol) {
	if node == nil {
		return
	}

	kind := node.Type()
	scopeName := ""
	if scopeID != "" {
		if idx := strings.LastIndex(scopeID, ":"); idx > 0 {
			namePart := scopeID[:idx]
			if dot := strings.LastIndex(namePart, "."); dot >= 0 {
				scopeName = namePart[dot+1:]
			} else {
				scopeName = namePart
			}
		}
	}

	switch {
	case langkit.IsClassLikeKind(kind):
		name := langkit.NameField(node, content)
		if name != "" {
			k := KindClass
			if kind == "interface_declaration" {
				k = KindInterface
			}
			sym := &Symbol{
				ID:           canonicalID(name, int(node.StartPoint().Row)+1, scopeName),
				Kind:         k,
				Name:         name,
				FilePath:     filePath,
				Start:        Position{Line: int(node.StartPoint().Row) + 1, Column: int(node.StartPoint().Column)},
				End:          Position{Line: int(node.EndPoint().Row) + 1, Column: int(node.EndPoint().Column)},
				ParentID:     parentIDFor(scopeID),
				Dependencies: make(map[string]bool),
			}
			*out = append(*out, sym)
			for i := 0; i < int(node.ChildCount()); i++ {
				walk(node.Child(i), filePath, content, sym.ID, out)
			}
			return
		}

	case langkit.IsFunctionLikeKind(kind):
		name := langkit.NameField(node, content)
		if name != "" {
			effectiveScope := scopeName
			k := KindFunction
			if scopeID != "" {
				k = KindMethod
			} else if recv := receiverTypeName(node, content); recv != "" {
				effectiveScope = recv
				k = KindMethod
			}
			sym := &Symbol{
				ID:           canonicalID(name, int(node.StartPoint().Row)+1, effectiveScope),
				Kind:         k,
				Name:         name,
				FilePath:     filePath,
				Start:        Position{Line: int(node.StartPoint().Row) + 1, Column: int(node.StartPoint().Column)},
				End:          Position{Line: int(node.EndPoint().Row) + 1, Column: int(node.EndPoint().Column)},
				ParentID:     parentIDFor(scopeID),
				Dependencies: make(map[string]bool),
			}
			*out = append(*out, sym)
		}
		// Function bodies are not descended into for further top-level
		// symbol discovery beyond this point (avoids capturing locals as
		// symbols), but nested declarations inside (e.g. closures) are
		// rare enough in the supported grammars that a shallow stop here
		// matches the spec's stated goal of avoiding "every local
		// identifier as a top-level symbol."
		return

	case langkit.IsVariableLikeKind(kind):
		name := langkit.NameField(node, content)
		if name == "" {
			name = firstDeclaratorName(node, content)
		}
		if name != "" {
			*out = append(*out, &Symbol{
				ID:           canonicalID(name, int(node.StartPoint().Row)+1, scopeName),
				Kind:         KindVariable,
				Name:         name,
				FilePath:     filePath,
				Start:        Position{Line: int(node.StartPoint().Row) + 1, Column: int(node.StartPoint().Column)},
				End:          Position{Line: int(node.EndPoint().Row) + 1, Column: int(node.EndPoint().Column)},
				ParentID:     parentIDFor(scopeID),
				Dependencies: make(map[string]bool),
			})
		}
	}

	// Transparent descent: always recurse into containers and into the
	// top-level tree; for any other node kind (neither a declaration
	// scope nor a recognized container) we still descend, since
	// declarations can appear directly under statement lists in several
	// grammars.
	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), filePath, content, scopeID, out)
	}
}

func parentIDFor(scopeID string) string {
	return scopeID
}

// firstDeclaratorName finds a name inside a variable declaration's
// declarator list when the declaration node itself has no direct name
// field (e.g. Go's var_declaration wrapping one or more var_spec children).
func firstDeclaratorName(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if name := langkit.NameField(child, content); name != "" {
			return name
		}
		if child.Type() == "identifier" {
			return string(content[child.StartByte():child.EndByte()])
		}
	}
	return ""
}

// extractDependencies is the second walk described in spec §4.3: for every
// identifier/property_identifier reference found inside a symbol's own
// span, if its name matches another file-scope symbol's name, record a
// dependency edge from the enclosing symbol to the referenced one (never
// self-edges). Grounded on symbol_table.go's EdgeExtractor.ExtractEdges,
// generalized from call-graph edges to same-file Symbol dependencies.
func extractDependencies(root *sitter.Node, filePath string, content []byte, syms []*Symbol) {
	byName := make(map[string][]*Symbol)
	for _, s := range syms {
		byName[s.Name] = append(byName[s.Name], s)
	}

	for _, enclosing := range syms {
		node := findNodeBySpan(root, enclosing.Start.Line, enclosing.End.Line)
		if node == nil {
			continue
		}
		collectReferences(node, content, func(refName string) {
			for _, candidate := range byName[refName] {
				if candidate.ID == enclosing.ID {
					continue
				}
				enclosing.Dependencies[candidate.ID] = true
			}
		})
	}
}

func findNodeBySpan(node *sitter.Node, startLine, endLine int) *sitter.Node {
	if node == nil {
		return nil
	}
	if int(node.StartPoint().Row)+1 == startLine && int(node.EndPoint().Row)+1 == endLine {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findNodeBySpan(node.Child(i), startLine, endLine); found != nil {
			return found
		}
	}
	return nil
}

func collectReferences(node *sitter.Node, content []byte, record func(name string)) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "identifier", "property_identifier", "field_identifier":
		record(string(content[node.StartByte():node.EndByte()]))
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectReferences(node.Child(i), content, record)
	}
}
