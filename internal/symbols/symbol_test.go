package symbols

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

func parseGo(t *testing.T, src string) (*sitter.Node, []byte) {
	t.Helper()
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	content := []byte(src)
	tree, err := p.ParseCtx(context.Background(), nil, content)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return tree.RootNode(), content
}

func parsePython(t *testing.T, src string) (*sitter.Node, []byte) {
	t.Helper()
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	content := []byte(src)
	tree, err := p.ParseCtx(context.Background(), nil, content)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return tree.RootNode(), content
}

func TestUpdateFileSymbolsExtractsGoFunction(t *testing.T) {
	root, content := parseGo(t, "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n")
	idx := NewIndex()
	syms := idx.UpdateFileSymbols("x.go", root, content)

	if len(syms) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(syms))
	}
	if syms[0].ID != "add:3" {
		t.Errorf("expected id 'add:3', got %q", syms[0].ID)
	}
	if syms[0].Kind != KindFunction {
		t.Errorf("expected KindFunction, got %v", syms[0].Kind)
	}
}

func TestUpdateFileSymbolsExtractsGoMethodWithReceiver(t *testing.T) {
	root, content := parseGo(t, "package main\n\ntype T struct{}\n\nfunc (t *T) Run() {\n}\n")
	idx := NewIndex()
	syms := idx.UpdateFileSymbols("x.go", root, content)

	found := false
	for _, s := range syms {
		if s.ID == "T.Run:5" {
			found = true
			if s.Kind != KindMethod {
				t.Errorf("expected KindMethod for receiver method, got %v", s.Kind)
			}
		}
	}
	if !found {
		t.Errorf("expected symbol id 'T.Run:5' among %v", idsOf(syms))
	}
}

func TestUpdateFileSymbolsExtractsNestedPythonMethod(t *testing.T) {
	root, content := parsePython(t, "class Greeter:\n    def hello(self):\n        return 1\n")
	idx := NewIndex()
	syms := idx.UpdateFileSymbols("x.py", root, content)

	var classSym, methodSym *Symbol
	for _, s := range syms {
		if s.Name == "Greeter" {
			classSym = s
		}
		if s.Name == "hello" {
			methodSym = s
		}
	}
	if classSym == nil || methodSym == nil {
		t.Fatalf("expected both class and method symbols, got %v", idsOf(syms))
	}
	if methodSym.ID != "Greeter.hello:2" {
		t.Errorf("expected method id 'Greeter.hello:2', got %q", methodSym.ID)
	}
	if methodSym.ParentID != classSym.ID {
		t.Errorf("expected method ParentID %q, got %q", classSym.ID, methodSym.ParentID)
	}
}

func TestUpdateFileSymbolsIsDestructive(t *testing.T) {
	root, content := parseGo(t, "package main\n\nfunc a() {}\n")
	idx := NewIndex()
	idx.UpdateFileSymbols("x.go", root, content)

	root2, content2 := parseGo(t, "package main\n\nfunc b() {}\n")
	syms := idx.UpdateFileSymbols("x.go", root2, content2)

	if len(syms) != 1 || syms[0].Name != "b" {
		t.Fatalf("expected only 'b' after re-indexing, got %v", idsOf(syms))
	}
	if _, ok := idx.Get("a:3"); ok {
		t.Error("expected prior symbol 'a:3' purged after re-index")
	}
}

func TestFindByNameLiteralAndRegex(t *testing.T) {
	root, content := parseGo(t, "package main\n\nfunc addOne() {}\nfunc addTwo() {}\nfunc subOne() {}\n")
	idx := NewIndex()
	idx.UpdateFileSymbols("x.go", root, content)

	literal := idx.FindByName("subOne")
	if len(literal) != 1 {
		t.Fatalf("expected 1 literal match, got %d", len(literal))
	}

	regexMatches := idx.FindByName("^add.*")
	if len(regexMatches) != 2 {
		t.Fatalf("expected 2 regex matches, got %d", len(regexMatches))
	}
}

func TestDependencyPassRecordsSameFileCall(t *testing.T) {
	root, content := parseGo(t, "package main\n\nfunc helper() {}\n\nfunc caller() {\n\thelper()\n}\n")
	idx := NewIndex()
	syms := idx.UpdateFileSymbols("x.go", root, content)

	var caller *Symbol
	for _, s := range syms {
		if s.Name == "caller" {
			caller = s
		}
	}
	if caller == nil {
		t.Fatal("expected 'caller' symbol")
	}
	if !caller.Dependencies["helper:3"] {
		t.Errorf("expected caller to depend on 'helper:3', got %v", caller.Dependencies)
	}
	if caller.Dependencies[caller.ID] {
		t.Error("expected no self-edge")
	}
}

func idsOf(syms []*Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.ID
	}
	return out
}
