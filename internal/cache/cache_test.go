package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.go")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestPutThenGetReturnsSameTree(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	path := writeTempFile(t, "package main\n")
	tree := "fake-tree-handle"
	c.Put(path, tree, []byte("package main\n"), PriorityMedium)

	entry, ok := c.Get(path)
	if !ok {
		t.Fatal("expected cache hit after Put")
	}
	if entry.Tree != tree {
		t.Errorf("expected Tree %v, got %v", tree, entry.Tree)
	}
	if entry.AccessCount != 1 {
		t.Errorf("expected AccessCount 1 after one Get, got %d", entry.AccessCount)
	}
}

func TestGetMissesOnContentHashMismatch(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	path := writeTempFile(t, "package main\n")
	c.Put(path, "tree", []byte("package main\n"), PriorityMedium)

	if err := os.WriteFile(path, []byte("package changed\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite temp file: %v", err)
	}

	if _, ok := c.Get(path); ok {
		t.Error("expected cache miss after on-disk content changed")
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	path := writeTempFile(t, "package main\n")
	c.Put(path, "tree", []byte("package main\n"), PriorityMedium)
	c.Invalidate(path)

	if _, ok := c.Get(path); ok {
		t.Error("expected cache miss after Invalidate")
	}
}

func TestDisableDropsExistingEntries(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	path := writeTempFile(t, "package main\n")
	c.Put(path, "tree", []byte("package main\n"), PriorityMedium)
	c.Disable()

	if _, ok := c.Get(path); ok {
		t.Error("expected cache miss while disabled")
	}

	c.Put(path, "tree2", []byte("package main\n"), PriorityMedium)
	if _, ok := c.Get(path); ok {
		t.Error("expected writes dropped while disabled")
	}

	c.Enable()
	c.Put(path, "tree3", []byte("package main\n"), PriorityMedium)
	if _, ok := c.Get(path); !ok {
		t.Error("expected cache to work again after Enable")
	}
}

func TestCapacityEvictsLowestScoring(t *testing.T) {
	c := New(Options{MaxEntries: 2})
	defer c.Close()

	p1 := writeTempFile(t, "a")
	p2 := writeTempFile(t, "b")
	p3 := writeTempFile(t, "c")

	c.Put(p1, "t1", []byte("a"), PriorityLow)
	c.Put(p2, "t2", []byte("b"), PriorityHigh)
	c.Put(p3, "t3", []byte("c"), PriorityHigh)

	if c.lru.Len() > 2 {
		t.Errorf("expected at most 2 entries after exceeding MaxEntries, got %d", c.lru.Len())
	}
	if _, ok := c.Get(p2); !ok {
		t.Error("expected high-priority entry p2 to survive eviction")
	}
}

func TestMemoryWithDiskFallbackServesAFreshDiskHitAfterMemoryEviction(t *testing.T) {
	diskDir := t.TempDir()
	c := New(Options{Strategy: StrategyMemoryWithDiskFallback, DiskDir: diskDir})
	defer c.Close()

	path := writeTempFile(t, "package main\n")
	c.Put(path, "tree", []byte("package main\n"), PriorityMedium)

	// Simulate the in-memory entry being gone (eviction, restart) while the
	// disk sidecar written by Put above survives.
	c.mu.Lock()
	c.removeLocked(path)
	c.mu.Unlock()

	entry, ok := c.Get(path)
	if !ok {
		t.Fatal("expected a disk-tier hit after the in-memory entry was dropped")
	}
	if entry.Tree != nil {
		t.Errorf("expected a disk hit to carry no Tree (trees are not serializable), got %v", entry.Tree)
	}
	if string(entry.Content) != "package main\n" {
		t.Errorf("expected the disk hit to carry the verified-fresh content, got %q", entry.Content)
	}

	if _, ok := c.Get(filepath.Join(t.TempDir(), "missing.go")); ok {
		t.Error("expected a cold miss for a path with no sidecar at all")
	}
}

func TestDiskAndMemoryWritesSidecarOnPut(t *testing.T) {
	diskDir := t.TempDir()
	c := New(Options{Strategy: StrategyDiskAndMemory, DiskDir: diskDir})
	defer c.Close()

	path := writeTempFile(t, "package main\n")
	c.Put(path, "tree", []byte("package main\n"), PriorityMedium)

	if _, err := readSidecar(diskDir, path); err != nil {
		t.Errorf("expected a sidecar file to be written under disk_and_memory, got error: %v", err)
	}
}

func TestClearEmptiesCache(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	path := writeTempFile(t, "package main\n")
	c.Put(path, "tree", []byte("package main\n"), PriorityMedium)
	c.Clear()

	if _, ok := c.Get(path); ok {
		t.Error("expected cache miss after Clear")
	}
}
