package rollback

import (
	"testing"
	"time"
)

func TestSnapshotThenRollbackIsLIFO(t *testing.T) {
	s := New(10)
	now := time.Unix(1000, 0)

	s.Snapshot("a.go", "/abs/a.go", "v1", "modify_function_body", nil, now)
	s.Snapshot("a.go", "/abs/a.go", "v2", "modify_function_body", nil, now)

	backup, ok := s.Rollback("a.go")
	if !ok {
		t.Fatal("expected a backup")
	}
	if backup.OriginalContent != "v2" {
		t.Errorf("expected LIFO rollback to return 'v2', got %q", backup.OriginalContent)
	}

	backup, ok = s.Rollback("a.go")
	if !ok || backup.OriginalContent != "v1" {
		t.Errorf("expected second rollback to return 'v1', got %+v ok=%v", backup, ok)
	}

	if s.HasBackups("a.go") {
		t.Error("expected no backups remaining after two rollbacks")
	}
}

func TestSnapshotTrimsToMaxDepth(t *testing.T) {
	s := New(2)
	now := time.Unix(1000, 0)

	s.Snapshot("a.go", "/abs/a.go", "v1", "op", nil, now)
	s.Snapshot("a.go", "/abs/a.go", "v2", "op", nil, now)
	s.Snapshot("a.go", "/abs/a.go", "v3", "op", nil, now)

	backups := s.Backups("a.go")
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after trim, got %d", len(backups))
	}
	if backups[0].OriginalContent != "v2" || backups[1].OriginalContent != "v3" {
		t.Errorf("expected oldest entry trimmed, got %+v", backups)
	}
}

func TestRollbackOnEmptyStackReturnsFalse(t *testing.T) {
	s := New(10)
	if _, ok := s.Rollback("missing.go"); ok {
		t.Error("expected no backup for a file never snapshotted")
	}
}

func TestPeekDoesNotPop(t *testing.T) {
	s := New(10)
	now := time.Unix(1000, 0)
	s.Snapshot("a.go", "/abs/a.go", "v1", "op", nil, now)

	if _, ok := s.Peek("a.go"); !ok {
		t.Fatal("expected a backup to peek")
	}
	if !s.HasBackups("a.go") {
		t.Error("expected peek to leave the stack intact")
	}
}

func TestSetMaxDepthTrimsExistingStacks(t *testing.T) {
	s := New(10)
	now := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		s.Snapshot("a.go", "/abs/a.go", "v", "op", nil, now)
	}

	s.SetMaxDepth(2)
	if len(s.Backups("a.go")) != 2 {
		t.Fatalf("expected stack trimmed to 2 after SetMaxDepth, got %d", len(s.Backups("a.go")))
	}
}

func TestMultiFileSnapshotThenRollbackAllOrNothing(t *testing.T) {
	s := New(10)
	now := time.Unix(1000, 0)

	inputs := []FileSnapshotInput{
		{RelativePath: "b.go", AbsolutePath: "/abs/b.go", OriginalContent: "b1"},
		{RelativePath: "a.go", AbsolutePath: "/abs/a.go", OriginalContent: "a1"},
	}
	s.MultiFileSnapshot(inputs, "rename_across_files", now)

	backups, err := s.MultiFileRollback([]string{"a.go", "b.go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %d", len(backups))
	}
	for _, b := range backups {
		tagged, _ := b.Metadata["multi_file"].(bool)
		if !tagged {
			t.Errorf("expected multi_file tag on backup %+v", b)
		}
	}
}

func TestMultiFileRollbackFailsIfAnyPathHasNoBackup(t *testing.T) {
	s := New(10)
	now := time.Unix(1000, 0)
	s.Snapshot("a.go", "/abs/a.go", "a1", "op", nil, now)

	_, err := s.MultiFileRollback([]string{"a.go", "b.go"})
	if err == nil {
		t.Fatal("expected error when one path has no backup")
	}
	if _, ok := s.Peek("a.go"); !ok {
		t.Error("expected a.go's backup to remain untouched after aborted multi-file rollback")
	}
}
