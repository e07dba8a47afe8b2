package graphstore

import (
	"context"
	"testing"
)

// TestUpdateFileAtomicReplacesStaleSymbols requires a running SurrealDB
// instance, mirroring the teacher's own storage_test.go convention of
// skipping integration tests that need a live database in environments
// without one.
func TestUpdateFileAtomicReplacesStaleSymbols(t *testing.T) {
	t.Skip("requires SurrealDB instance")

	ctx := context.Background()
	store, err := Open(ctx, Config{URL: "ws://localhost:8000/rpc", Namespace: "test", Database: "test"})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close(ctx)

	file := "/test/x.go"
	if err := store.UpdateFileAtomic(ctx, file, []SymbolRecord{
		{ID: "add:3", Name: "add", Kind: "function", FilePath: file},
	}); err != nil {
		t.Fatalf("failed to update file: %v", err)
	}

	if err := store.UpdateFileAtomic(ctx, file, []SymbolRecord{
		{ID: "subtract:3", Name: "subtract", Kind: "function", FilePath: file},
	}); err != nil {
		t.Fatalf("failed to re-update file: %v", err)
	}

	related, err := store.RelatedFiles(ctx, file)
	if err != nil {
		t.Fatalf("failed to query related files: %v", err)
	}
	if len(related) != 0 {
		t.Errorf("expected no related files for an isolated symbol, got %v", related)
	}
}
