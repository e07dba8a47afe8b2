// Package graphstore is an optional SurrealDB-backed persistence layer for
// the Symbol Index's cross-file dependency graph, so that related_files
// queries can survive process restarts instead of only reflecting whatever
// has been parsed in the current process's in-memory Index.
//
// Disabled by default (spec §9's graphstore is an enrichment, not a
// required component): when disabled, internal/symbols.Index alone serves
// related_files.
//
// Adapted from gavlooth-codeloom/internal/graph/storage.go: the same
// per-file refcounted lock (lockFile/unlockFile), the same
// UPSERT-by-id/DELETE-then-reinsert shape for UpdateFileAtomic, narrowed
// from a full code-property graph (function/class/module nodes with
// calls/imports/extends/implements edges and embeddings) down to the one
// relation this engine's related_files needs: symbol-to-symbol dependency
// edges keyed by the canonical symbol id.
package graphstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/surrealdb/surrealdb.go"

	"github.com/heefoo/codesurgeon/internal/symbols"
)

// Config mirrors internal/config.GraphstoreConfig's connection fields.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

type fileLock struct {
	mu    sync.Mutex
	count int
}

// Store persists one symbol-dependency edge relation per engine instance.
type Store struct {
	db        *surrealdb.DB
	namespace string
	database  string

	lockMu sync.Mutex
	locks  map[string]*fileLock
}

// SymbolRecord is the persisted projection of a symbols.Symbol, narrowed to
// what related_files needs: identity, location, and dependency edges.
type SymbolRecord struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	FilePath     string   `json:"file_path"`
	Dependencies []string `json:"dependencies"`
}

// Open connects to the configured SurrealDB instance, signs in, and selects
// the namespace/database, matching gavlooth-codeloom/internal/graph/storage.go's
// NewStorage.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := surrealdb.New(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" {
		if _, err := db.SignIn(ctx, map[string]interface{}{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			return nil, fmt.Errorf("failed to sign in: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &Store{db: db, namespace: cfg.Namespace, database: cfg.Database, locks: make(map[string]*fileLock)}, nil
}

// Close releases the underlying SurrealDB connection.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

func (s *Store) lockFile(filePath string) {
	s.lockMu.Lock()
	fl, ok := s.locks[filePath]
	if !ok {
		fl = &fileLock{}
		s.locks[filePath] = fl
	}
	fl.count++
	s.lockMu.Unlock()

	fl.mu.Lock()
}

func (s *Store) unlockFile(filePath string) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	fl, ok := s.locks[filePath]
	if !ok {
		return
	}
	fl.mu.Unlock()
	fl.count--
	if fl.count == 0 {
		delete(s.locks, filePath)
	}
}

// UpdateFileAtomic replaces every symbol record for filePath with records,
// deleting stale entries first so a file's symbol set never doubles up
// across re-parses. Matches the teacher's UpdateFileAtomic's
// delete-then-reinsert shape, narrowed to a single table.
func (s *Store) UpdateFileAtomic(ctx context.Context, filePath string, records []SymbolRecord) error {
	s.lockFile(filePath)
	defer s.unlockFile(filePath)

	if _, err := surrealdb.Query[any](ctx, s.db, `DELETE FROM symbols WHERE file_path = $path`, map[string]any{
		"path": filePath,
	}); err != nil {
		return fmt.Errorf("failed to delete stale symbol records: %w", err)
	}

	for _, rec := range records {
		query := `UPSERT symbols SET
			id = $id,
			name = $name,
			kind = $kind,
			file_path = $file_path,
			dependencies = $dependencies
		WHERE id = $id`

		if _, err := surrealdb.Query[any](ctx, s.db, query, map[string]any{
			"id":           rec.ID,
			"name":         rec.Name,
			"kind":         rec.Kind,
			"file_path":    rec.FilePath,
			"dependencies": rec.Dependencies,
		}); err != nil {
			return fmt.Errorf("failed to upsert symbol %q: %w", rec.ID, err)
		}
	}

	return nil
}

// SyncFile projects path's current Symbol Index entries into
// SymbolRecords and replaces path's persisted records with them via
// UpdateFileAtomic. Called by the Parse Service and Edit Orchestrator
// right after they update the in-memory index, so the persisted graph
// never lags the index it mirrors.
func (s *Store) SyncFile(ctx context.Context, path string, syms []*symbols.Symbol) error {
	records := make([]SymbolRecord, len(syms))
	for i, sym := range syms {
		deps := make([]string, 0, len(sym.Dependencies))
		for dep := range sym.Dependencies {
			deps = append(deps, dep)
		}
		records[i] = SymbolRecord{
			ID:           sym.ID,
			Name:         sym.Name,
			Kind:         string(sym.Kind),
			FilePath:     sym.FilePath,
			Dependencies: deps,
		}
	}
	return s.UpdateFileAtomic(ctx, path, records)
}

// DeleteFile removes every symbol record for filePath.
func (s *Store) DeleteFile(ctx context.Context, filePath string) error {
	s.lockFile(filePath)
	defer s.unlockFile(filePath)

	_, err := surrealdb.Query[any](ctx, s.db, `DELETE FROM symbols WHERE file_path = $path`, map[string]any{
		"path": filePath,
	})
	return err
}

// RelatedFiles returns the set of files that depend on, or are depended on
// by, any symbol in filePath, persisted across process restarts.
func (s *Store) RelatedFiles(ctx context.Context, filePath string) ([]string, error) {
	results, err := surrealdb.Query[[]SymbolRecord](ctx, s.db, `SELECT * FROM symbols WHERE file_path = $path`, map[string]any{
		"path": filePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols for %q: %w", filePath, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	depIDs := make(map[string]bool)
	for _, rec := range (*results)[0].Result {
		for _, dep := range rec.Dependencies {
			depIDs[dep] = true
		}
	}
	if len(depIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(depIDs))
	for id := range depIDs {
		ids = append(ids, id)
	}

	depResults, err := surrealdb.Query[[]SymbolRecord](ctx, s.db, `SELECT * FROM symbols WHERE id IN $ids`, map[string]any{
		"ids": ids,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependency files: %w", err)
	}

	files := make(map[string]bool)
	if depResults != nil && len(*depResults) > 0 {
		for _, rec := range (*depResults)[0].Result {
			if rec.FilePath != "" && rec.FilePath != filePath {
				files[rec.FilePath] = true
			}
		}
	}

	referring, err := surrealdb.Query[[]SymbolRecord](ctx, s.db, `SELECT * FROM symbols WHERE file_path != $path`, map[string]any{
		"path": filePath,
	})
	if err == nil && referring != nil && len(*referring) > 0 {
		for _, rec := range (*referring)[0].Result {
			for _, dep := range rec.Dependencies {
				for _, local := range (*results)[0].Result {
					if dep == local.ID {
						files[rec.FilePath] = true
					}
				}
			}
		}
	}

	out := make([]string, 0, len(files))
	for f := range files {
		out = append(out, f)
	}
	return out, nil
}
