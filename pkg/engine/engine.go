// Package engine is the public API façade (C9): the single entry point
// embedders use to initialize the engine, run edits, validate candidates,
// roll back, and inspect/update configuration, wiring every internal
// package behind the wire-stable shapes named in spec §6.
//
// Grounded on gavlooth-codeloom/cmd/codeloom/main.go's top-level wiring
// (config load -> provider construction -> component construction), here
// collapsed into one constructor instead of a CLI dispatch.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/heefoo/codesurgeon/internal/cache"
	"github.com/heefoo/codesurgeon/internal/config"
	"github.com/heefoo/codesurgeon/internal/edit"
	"github.com/heefoo/codesurgeon/internal/errs"
	"github.com/heefoo/codesurgeon/internal/graphstore"
	"github.com/heefoo/codesurgeon/internal/langkit"
	"github.com/heefoo/codesurgeon/internal/parse"
	"github.com/heefoo/codesurgeon/internal/rollback"
	"github.com/heefoo/codesurgeon/internal/symbols"
	"github.com/heefoo/codesurgeon/internal/validate"
	"github.com/heefoo/codesurgeon/internal/validate/embedding"
)

// Engine is the wired set of components behind the public surface.
type Engine struct {
	cfg          *config.Config
	cache        *cache.Cache
	symbols      *symbols.Index
	parseSvc     *parse.Service
	validator    *validate.Validator
	store        *rollback.Store
	orchestrator *edit.Orchestrator
	graphstore   *graphstore.Store
}

// Initialize constructs an Engine from cfg (or the package defaults if
// cfg is nil), wiring the Tree Cache, Symbol Index, Parse Service,
// Semantic Validator, Rollback Store, and Edit Orchestrator together.
// This is the spec's initialize() operation.
func Initialize(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if warnings := config.Validate(cfg); len(warnings) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", warnings)
	}

	c := cache.New(cache.Options{
		MaxEntries:     cfg.Cache.MaxEntries,
		MaxMemoryBytes: cfg.Cache.MaxMemoryBytes,
		StaleTTLMs:     cfg.Cache.StaleTTLMs,
		Strategy:       cache.Strategy(cfg.Cache.Strategy),
		DiskDir:        cfg.Cache.DiskDir,
		SweepInterval:  time.Duration(cfg.Cache.SweepInterval) * time.Millisecond,
	})
	if !cfg.Cache.Enabled {
		c.Disable()
	}

	idx := symbols.NewIndex()
	registry := langkit.NewRegistry()
	parseSvc := parse.NewService(registry, c, idx)

	provider, err := embedding.NewProvider(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		// An unconfigured or misconfigured embedding backend degrades to
		// structural-only validation rather than failing initialization,
		// per spec §4.6's "unavailable embedding falls back to structural".
		provider = nil
	}
	validator := validate.NewValidator(provider)

	store := rollback.New(cfg.Rollback.MaxBackupsPerFile)
	orchestrator := edit.NewOrchestrator(parseSvc, validator, store, c, idx)

	var gs *graphstore.Store
	if cfg.Graphstore.Enabled {
		opened, err := graphstore.Open(context.Background(), graphstore.Config{
			URL:       cfg.Graphstore.URL,
			Namespace: cfg.Graphstore.Namespace,
			Database:  cfg.Graphstore.Database,
			Username:  cfg.Graphstore.Username,
			Password:  cfg.Graphstore.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("graphstore enabled but failed to connect: %w", err)
		}
		gs = opened
		parseSvc.SetGraphSink(gs)
		orchestrator.SetGraphSink(gs)
	}

	return &Engine{
		cfg:          cfg,
		cache:        c,
		symbols:      idx,
		parseSvc:     parseSvc,
		validator:    validator,
		store:        store,
		orchestrator: orchestrator,
		graphstore:   gs,
	}, nil
}

// Close releases background resources (the cache's sweep goroutine,
// filesystem watcher, and the graphstore connection if one is open).
func (e *Engine) Close() {
	e.cache.Close()
	if e.graphstore != nil {
		if err := e.graphstore.Close(context.Background()); err != nil {
			log.Printf("engine: failed to close graphstore connection: %v", err)
		}
	}
}

// ParseService exposes the underlying Parse Service for operations that
// need to drive it directly, such as warmcache.Warm's directory pre-parse.
func (e *Engine) ParseService() *parse.Service {
	return e.parseSvc
}

func (e *Engine) editConfig() edit.Config {
	return edit.Config{
		SemanticThreshold:   e.cfg.Validation.SemanticThreshold,
		StructuralThreshold: e.cfg.Validation.StructuralThreshold,
		ValidateImports:     e.cfg.Validation.ValidateImports,
		SkipSemantic:        e.cfg.Validation.SkipSemantic,
	}
}

// ModifyFunctionBody replaces the body of the function identified by
// functionID (wire grammar name["."member]":"line, spec §6) in the file at
// relativePath (resolved against cwd) with newBody, validating the
// candidate before committing it. This is the spec's modify_function_body
// operation.
func (e *Engine) ModifyFunctionBody(ctx context.Context, cwd, relativePath, functionID, newBody string) (edit.Result, *errs.AstError) {
	return e.orchestrator.ModifyFunctionBody(ctx, cwd, relativePath, functionID, newBody, e.editConfig())
}

// ValidateFunctionBodyChange scores newBody against the current body of
// functionID without writing anything to disk. This is the spec's
// validate_function_body_change operation.
func (e *Engine) ValidateFunctionBodyChange(ctx context.Context, cwd, relativePath, functionID, newBody string, opts *validate.Options) (validate.Result, *errs.AstError) {
	absPath := relativePath
	if cwd != "" {
		absPath = joinPath(cwd, relativePath)
	}

	tree, aerr := e.parseSvc.ParseFile(ctx, absPath)
	if aerr != nil {
		return validate.Result{}, aerr
	}

	node, aerr := parse.FindNodeByIdentifier(tree.Root, tree.Content, functionID)
	if aerr != nil {
		return validate.Result{}, aerr
	}
	body := langkit.BodyField(node)
	if body == nil {
		return validate.Result{}, errs.New(errs.KindNodeNotFound, "target function has no body field", time.Now()).WithFile(relativePath)
	}

	spliced := make([]byte, 0, len(tree.Content)-int(body.EndByte()-body.StartByte())+len(newBody))
	spliced = append(spliced, tree.Content[:body.StartByte()]...)
	spliced = append(spliced, []byte(newBody)...)
	spliced = append(spliced, tree.Content[body.EndByte():]...)

	candidate, aerr := e.parseSvc.ParseEphemeral(ctx, absPath, spliced)
	if aerr != nil {
		return validate.Result{}, aerr
	}
	defer candidate.Close()

	newNode, aerr := parse.FindNodeByIdentifier(candidate.Root, candidate.Content, functionID)
	if aerr != nil {
		return validate.Result{}, aerr
	}

	useOpts := e.defaultValidateOptions()
	if opts != nil {
		useOpts = *opts
	}

	result := e.validator.Validate(ctx, node, newNode, tree.Content, spliced, useOpts)
	return result, nil
}

func (e *Engine) defaultValidateOptions() validate.Options {
	return validate.Options{
		SemanticThreshold:   e.cfg.Validation.SemanticThreshold,
		StructuralThreshold: e.cfg.Validation.StructuralThreshold,
		ValidateImports:     e.cfg.Validation.ValidateImports,
		SkipSemantic:        e.cfg.Validation.SkipSemantic,
		SkipTypes:           validate.DefaultOptions().SkipTypes,
	}
}

// RollbackChange reverts relativePath to its most recent backup, per the
// spec's rollback_change operation.
func (e *Engine) RollbackChange(relativePath string) (rollback.EditBackup, *errs.AstError) {
	backup, ok := e.store.Rollback(relativePath)
	if !ok {
		return rollback.EditBackup{}, errs.New(errs.KindRollbackError, fmt.Sprintf("no backup available for %q", relativePath), time.Now()).WithFile(relativePath)
	}
	if err := writeFile(backup.AbsolutePath, backup.OriginalContent); err != nil {
		return rollback.EditBackup{}, errs.New(errs.KindRollbackError, err.Error(), time.Now()).WithFile(relativePath)
	}
	e.cache.Invalidate(backup.AbsolutePath)
	return backup, nil
}

// BackupInfo returns relativePath's backup stack, oldest first, per the
// spec's backup_info operation.
func (e *Engine) BackupInfo(relativePath string) []rollback.EditBackup {
	return e.store.Backups(relativePath)
}

// RelatedFiles returns the files relativePath depends on or is depended on
// by, per spec §4.3's related_files operation, unioning the in-memory
// Symbol Index with the persisted graph when graphstore is enabled so the
// answer also reflects files indexed in prior process lifetimes.
func (e *Engine) RelatedFiles(relativePath string) []string {
	seen := make(map[string]bool)
	for _, f := range e.symbols.RelatedFiles(relativePath) {
		seen[f] = true
	}
	if e.graphstore != nil {
		persisted, err := e.graphstore.RelatedFiles(context.Background(), relativePath)
		if err != nil {
			log.Printf("engine: failed to query persisted related files for %s: %v", relativePath, err)
		}
		for _, f := range persisted {
			seen[f] = true
		}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// UpdateConfig merges partial into the engine's live configuration,
// propagating changes to the components that cache their own copy (the
// rollback store's max depth).
func (e *Engine) UpdateConfig(partial config.Config) []string {
	if partial.Validation.SemanticThreshold != 0 {
		e.cfg.Validation.SemanticThreshold = partial.Validation.SemanticThreshold
	}
	if partial.Validation.StructuralThreshold != 0 {
		e.cfg.Validation.StructuralThreshold = partial.Validation.StructuralThreshold
	}
	if partial.Rollback.MaxBackupsPerFile != 0 {
		e.cfg.Rollback.MaxBackupsPerFile = partial.Rollback.MaxBackupsPerFile
		e.store.SetMaxDepth(partial.Rollback.MaxBackupsPerFile)
	}
	return config.Validate(e.cfg)
}

// GetConfig returns the engine's current configuration.
func (e *Engine) GetConfig() config.Config {
	return *e.cfg
}

// MultiFileSnapshot reads the current content of every path in
// relativePaths (resolved against cwd) and pushes one backup per file in
// a single all-or-nothing transaction, per spec §4.7's
// multi_file_snapshot operation. A missing file aborts the whole
// transaction without pushing any backup.
func (e *Engine) MultiFileSnapshot(cwd string, relativePaths []string, operationName string) ([]rollback.EditBackup, *errs.AstError) {
	inputs := make([]rollback.FileSnapshotInput, len(relativePaths))
	for i, rel := range relativePaths {
		absPath := joinPath(cwd, rel)
		content, err := os.ReadFile(absPath)
		if err != nil {
			return nil, errs.New(errs.KindGeneralError, fmt.Sprintf("failed to read file: %v", err), time.Now()).WithFile(rel).WithCause(err)
		}
		inputs[i] = rollback.FileSnapshotInput{RelativePath: rel, AbsolutePath: absPath, OriginalContent: string(content)}
	}
	return e.store.MultiFileSnapshot(inputs, operationName, time.Now()), nil
}

// MultiFileRollback restores every path in relativePaths to its most
// recent backup, or none of them if any path lacks one, per spec §4.7's
// multi_file_rollback operation.
func (e *Engine) MultiFileRollback(relativePaths []string) ([]rollback.EditBackup, *errs.AstError) {
	backups, err := e.store.MultiFileRollback(relativePaths)
	if err != nil {
		return nil, errs.New(errs.KindRollbackError, err.Error(), time.Now())
	}
	for _, backup := range backups {
		if werr := writeFile(backup.AbsolutePath, backup.OriginalContent); werr != nil {
			return nil, errs.New(errs.KindRollbackError, werr.Error(), time.Now()).WithFile(backup.RelativePath)
		}
		e.cache.Invalidate(backup.AbsolutePath)
	}
	return backups, nil
}
