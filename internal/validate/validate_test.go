package validate

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

func parseFuncBody(t *testing.T, src string) (*sitter.Node, []byte) {
	t.Helper()
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	content := []byte(src)
	tree, err := p.ParseCtx(context.Background(), nil, content)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		if root.Child(i).Type() == "function_declaration" {
			return root.Child(i), content
		}
	}
	t.Fatal("no function_declaration found")
	return nil, nil
}

func TestValidateIdenticalBodiesScoreOne(t *testing.T) {
	src := "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n"
	oldNode, oldContent := parseFuncBody(t, src)
	newNode, newContent := parseFuncBody(t, src)

	v := NewValidator(nil)
	result := v.Validate(context.Background(), oldNode, newNode, oldContent, newContent, DefaultOptions())

	if !result.Valid {
		t.Fatalf("expected identical bodies to validate, got %+v", result)
	}
	if result.SemanticScore != 1.0 {
		t.Errorf("expected semantic score 1.0 for identical text, got %v", result.SemanticScore)
	}
	if result.StructuralScore != 1.0 {
		t.Errorf("expected structural score 1.0 for identical text, got %v", result.StructuralScore)
	}
}

func TestValidateCommentOnlyEditAcceptedStructurally(t *testing.T) {
	oldNode, oldContent := parseFuncBody(t, "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n")
	newNode, newContent := parseFuncBody(t, "package main\n\n// adds two numbers\nfunc add(a, b int) int {\n\treturn a + b\n}\n")

	v := NewValidator(nil)
	opts := DefaultOptions()
	opts.SkipSemantic = true
	result := v.Validate(context.Background(), oldNode, newNode, oldContent, newContent, opts)

	if result.StructuralScore < 0.8 {
		t.Errorf("expected comment-only edit to score >= 0.8 structurally, got %v", result.StructuralScore)
	}
	if !result.Valid {
		t.Errorf("expected comment-only edit to validate, got %+v", result)
	}
}

func TestValidateSignatureChangeRejected(t *testing.T) {
	oldNode, oldContent := parseFuncBody(t, "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n")
	newNode, newContent := parseFuncBody(t, "package main\n\nfunc add(a, b, c int) int {\n\treturn a + b + c\n}\n")

	v := NewValidator(nil)
	opts := DefaultOptions()
	opts.SkipSemantic = true
	result := v.Validate(context.Background(), oldNode, newNode, oldContent, newContent, opts)

	if result.Valid {
		t.Errorf("expected signature change to be rejected, got %+v", result)
	}
}

func TestValidateRenamedIdentifierRecordsOffendingNode(t *testing.T) {
	oldNode, oldContent := parseFuncBody(t, "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n")
	newNode, newContent := parseFuncBody(t, "package main\n\nfunc subtract(a, b int) int {\n\treturn a - b\n}\n")

	v := NewValidator(nil)
	opts := DefaultOptions()
	opts.SkipSemantic = true
	result := v.Validate(context.Background(), oldNode, newNode, oldContent, newContent, opts)

	if len(result.OffendingNodes) == 0 {
		t.Error("expected at least one offending node recorded for renamed function and changed operator")
	}
}

func TestStructuralSimilarityMonotonicity(t *testing.T) {
	src := "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n"
	oldNode, oldContent := parseFuncBody(t, src)
	newNode, newContent := parseFuncBody(t, src)

	var offending []string
	score, _, _ := structuralSimilarity(oldNode, newNode, oldContent, newContent, DefaultOptions(), &offending)
	if score != 1.0 {
		t.Errorf("expected self-similarity of 1.0, got %v", score)
	}
}
