package warmcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/heefoo/codesurgeon/internal/cache"
	"github.com/heefoo/codesurgeon/internal/langkit"
	"github.com/heefoo/codesurgeon/internal/parse"
	"github.com/heefoo/codesurgeon/internal/symbols"
)

func TestWarmParsesSupportedFilesAndSkipsExcludedDirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\n\nfunc a() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	vendorDir := filepath.Join(dir, "vendor")
	if err := os.MkdirAll(vendorDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(vendorDir, "b.go"), []byte("package main\n\nfunc b() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := cache.New(cache.Options{})
	defer c.Close()
	idx := symbols.NewIndex()
	svc := parse.NewService(langkit.NewRegistry(), c, idx)

	var final Status
	if err := Warm(context.Background(), svc, dir, nil, func(s Status) { final = s }); err != nil {
		t.Fatalf("unexpected warm error: %v", err)
	}

	if final.FilesParsed != 1 {
		t.Errorf("expected exactly 1 file parsed (vendor/b.go excluded), got %d", final.FilesParsed)
	}
	if final.FilesSkipped < 1 {
		t.Errorf("expected notes.txt to be skipped as unsupported, got skipped=%d", final.FilesSkipped)
	}

	if syms := idx.FileSymbols(filepath.Join(dir, "a.go")); len(syms) != 1 {
		t.Errorf("expected a.go's symbol indexed after warm, got %v", syms)
	}
	if syms := idx.FileSymbols(filepath.Join(vendorDir, "b.go")); len(syms) != 0 {
		t.Errorf("expected vendor/b.go to remain unindexed, got %v", syms)
	}
}
