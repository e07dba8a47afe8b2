package differ

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
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

func TestDiffIdenticalSourceYieldsNoModifiedFunctionChange(t *testing.T) {
	src := "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n"
	oldRoot, oldContent := parseGo(t, src)
	newRoot, newContent := parseGo(t, src)

	changes := Diff(oldRoot, newRoot, oldContent, newContent)
	for _, c := range changes {
		if c.Kind == ChangeModified && c.OldNode != nil && c.OldNode.Type() == "function_declaration" {
			t.Errorf("expected no modified function_declaration for identical source, got %+v", c)
		}
	}
}

func TestDiffBodyOnlyChangeYieldsModified(t *testing.T) {
	oldRoot, oldContent := parseGo(t, "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n")
	newRoot, newContent := parseGo(t, "package main\n\nfunc add(a, b int) int {\n\treturn b + a\n}\n")

	changes := Diff(oldRoot, newRoot, oldContent, newContent)
	found := false
	for _, c := range changes {
		if c.Kind == ChangeModified && c.OldNode != nil && c.OldNode.Type() == "function_declaration" {
			found = true
		}
	}
	if !found {
		t.Error("expected a modified function_declaration change")
	}
}

func TestDiffSignatureChangeYieldsModifiedWithoutDescending(t *testing.T) {
	oldRoot, oldContent := parseGo(t, "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n")
	newRoot, newContent := parseGo(t, "package main\n\nfunc subtract(a, b int) int {\n\treturn a - b\n}\n")

	changes := Diff(oldRoot, newRoot, oldContent, newContent)
	found := false
	for _, c := range changes {
		if c.Kind == ChangeModified && c.OldNode != nil && c.OldNode.Type() == "function_declaration" {
			found = true
		}
	}
	if !found {
		t.Error("expected a modified function_declaration change for a renamed function")
	}
}

func TestDiffAddedFunction(t *testing.T) {
	oldRoot, oldContent := parseGo(t, "package main\n")
	newRoot, newContent := parseGo(t, "package main\n\nfunc add() {}\n")

	changes := Diff(oldRoot, newRoot, oldContent, newContent)
	foundAdded := false
	for _, c := range changes {
		if c.Kind == ChangeAdded {
			foundAdded = true
		}
	}
	if !foundAdded {
		t.Error("expected at least one added change when new source has an extra top-level declaration")
	}
}
