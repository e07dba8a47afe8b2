// Package edit implements the Edit Orchestrator (C8): the single
// transaction (modify_function_body) that ties together the Parse Service,
// Tree Differ, Semantic Validator, and Rollback Store behind one
// all-or-nothing operation, per spec §4.8.
//
// The per-path exclusive lease (spec §5) reuses the same refcounted
// mutex-map idiom as internal/rollback.Store and
// gavlooth-codeloom/internal/graph/storage.go's fileLock, here guarding the
// whole snapshot-through-write-back window rather than just the backup
// stack.
package edit

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/heefoo/codesurgeon/internal/cache"
	"github.com/heefoo/codesurgeon/internal/differ"
	"github.com/heefoo/codesurgeon/internal/errs"
	"github.com/heefoo/codesurgeon/internal/langkit"
	"github.com/heefoo/codesurgeon/internal/parse"
	"github.com/heefoo/codesurgeon/internal/rollback"
	"github.com/heefoo/codesurgeon/internal/symbols"
	"github.com/heefoo/codesurgeon/internal/validate"
)

// Config carries the orchestrator's tunable knobs, matching spec §4.8's
// stated defaults.
type Config struct {
	SemanticThreshold   float64
	StructuralThreshold float64
	ValidateImports     bool
	SkipSemantic        bool
	Deadline            time.Duration // 0 means no deadline
}

// DefaultConfig returns the spec's stated defaults: 0.82 semantic, 0.7
// structural, no deadline.
func DefaultConfig() Config {
	return Config{
		SemanticThreshold:   0.82,
		StructuralThreshold: 0.7,
		ValidateImports:     true,
	}
}

type fileLease struct {
	mu    sync.Mutex
	count int
}

// Orchestrator wires the Parse Service, Tree Differ, Semantic Validator,
// and Rollback Store behind one transactional surface.
type Orchestrator struct {
	parseSvc  *parse.Service
	validator *validate.Validator
	store     *rollback.Store
	cache     *cache.Cache
	symbols   *symbols.Index
	graphSink parse.GraphSink

	leaseMu sync.Mutex
	leases  map[string]*fileLease
}

// NewOrchestrator constructs an Orchestrator from its collaborating
// components.
func NewOrchestrator(parseSvc *parse.Service, validator *validate.Validator, store *rollback.Store, c *cache.Cache, idx *symbols.Index) *Orchestrator {
	return &Orchestrator{
		parseSvc:  parseSvc,
		validator: validator,
		store:     store,
		cache:     c,
		symbols:   idx,
		leases:    make(map[string]*fileLease),
	}
}

// SetGraphSink wires an optional persisted-graph sink the orchestrator
// syncs into after a committed edit's post-write Symbol Index update; pass
// nil to disable.
func (o *Orchestrator) SetGraphSink(sink parse.GraphSink) {
	o.graphSink = sink
}

func (o *Orchestrator) acquire(path string) {
	o.leaseMu.Lock()
	fl, ok := o.leases[path]
	if !ok {
		fl = &fileLease{}
		o.leases[path] = fl
	}
	fl.count++
	o.leaseMu.Unlock()

	fl.mu.Lock()
}

func (o *Orchestrator) release(path string) {
	o.leaseMu.Lock()
	defer o.leaseMu.Unlock()

	fl, ok := o.leases[path]
	if !ok {
		return
	}
	fl.mu.Unlock()
	fl.count--
	if fl.count == 0 {
		delete(o.leases, path)
	}
}

// acquireSorted acquires leases for every path in paths, in sorted order,
// to avoid deadlocking against a concurrent multi-file transaction over an
// overlapping file set (spec §5).
func acquireSorted(o *Orchestrator, paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	for _, p := range sorted {
		o.acquire(p)
	}
	return sorted
}

func (o *Orchestrator) releaseAll(paths []string) {
	for _, p := range paths {
		o.release(p)
	}
}

// Result is the outcome of a successful modify_function_body transaction.
type Result struct {
	ValidationResult validate.Result
	BackedUp         rollback.EditBackup
}

// ModifyFunctionBody implements spec §4.8's nine-step transaction: resolve
// the path, read and snapshot the original content, locate the target
// function, splice in newBody, reparse and diff both versions, validate
// the candidate, write back and cache the new tree on success, or
// translate any failure into an AstError and roll back when the failure
// class calls for it (spec §7).
func (o *Orchestrator) ModifyFunctionBody(ctx context.Context, cwd, relativePath, functionID, newBody string, cfg Config) (Result, *errs.AstError) {
	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	absPath := relativePath
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(cwd, relativePath)
	}

	o.acquire(relativePath)
	defer o.release(relativePath)

	select {
	case <-ctx.Done():
		return o.failWithTimeout(relativePath)
	default:
	}

	original, err := os.ReadFile(absPath)
	if err != nil {
		return Result{}, errs.New(errs.KindGeneralError, fmt.Sprintf("failed to read file: %v", err), time.Now()).WithFile(relativePath).WithCause(err)
	}

	backup := o.store.Snapshot(relativePath, absPath, string(original), "modify_function_body", map[string]any{"function_id": functionID}, time.Now())

	result, aerr := o.applyEdit(ctx, absPath, relativePath, functionID, newBody, original, cfg)
	if aerr != nil {
		return o.handleFailure(relativePath, aerr)
	}

	return Result{ValidationResult: result.ValidationResult, BackedUp: backup}, nil
}

// failWithTimeout reports a deadline that expired before this call took its
// snapshot, so no backup is popped.
func (o *Orchestrator) failWithTimeout(relativePath string) (Result, *errs.AstError) {
	return Result{}, errs.New(errs.KindTimeoutError, "operation deadline exceeded", time.Now()).WithFile(relativePath)
}

// applyEdit is steps 4-8 of the transaction: locate, splice, reparse,
// diff, validate, write.
func (o *Orchestrator) applyEdit(ctx context.Context, absPath, relativePath, functionID, newBody string, original []byte, cfg Config) (Result, *errs.AstError) {
	// oldTree is obtained through the caching Parse: it may already be
	// owned by the cache (a prior hit) or freshly cached by this call, so
	// it is never closed here — the cache governs its lifetime.
	oldTree, aerr := o.parseSvc.Parse(ctx, absPath, original)
	if aerr != nil {
		return Result{}, aerr
	}

	oldNode, aerr := parse.FindNodeByIdentifier(oldTree.Root, oldTree.Content, functionID)
	if aerr != nil {
		return Result{}, aerr
	}

	oldBody := langkit.BodyField(oldNode)
	if oldBody == nil {
		return Result{}, errs.New(errs.KindNodeNotFound, "target function has no body field", time.Now()).WithFile(relativePath)
	}

	spliced := spliceBody(original, oldBody, newBody)

	// newTree is speculative: the candidate has not been written to disk
	// yet, so it must never be cached under absPath until the write below
	// succeeds. If validation rejects the candidate, it is closed.
	newTree, aerr := o.parseSvc.ParseEphemeral(ctx, absPath, spliced)
	if aerr != nil {
		return Result{}, aerr
	}

	newNode, aerr := parse.FindNodeByIdentifier(newTree.Root, newTree.Content, functionID)
	if aerr != nil {
		newTree.Close()
		return Result{}, aerr
	}

	changes := differ.Diff(oldNode, newNode, original, spliced)
	_ = changes // recorded for diagnostics; validation below is authoritative

	opts := validate.Options{
		SemanticThreshold:   cfg.SemanticThreshold,
		StructuralThreshold: cfg.StructuralThreshold,
		ValidateImports:     cfg.ValidateImports,
		SkipSemantic:        cfg.SkipSemantic,
		SkipTypes:           validate.DefaultOptions().SkipTypes,
	}

	validationResult := o.validator.Validate(ctx, oldNode, newNode, original, spliced, opts)
	if !validationResult.Valid {
		newTree.Close()
		return Result{}, errs.New(errs.KindStructuralValidationFailed, "candidate edit failed validation", time.Now()).
			WithFile(relativePath).
			WithDetail("semantic_score", validationResult.SemanticScore).
			WithDetail("structural_score", validationResult.StructuralScore).
			WithDetail("offending_nodes", validationResult.OffendingNodes)
	}

	if err := os.WriteFile(absPath, spliced, 0o644); err != nil {
		newTree.Close()
		return Result{}, errs.New(errs.KindGeneralError, fmt.Sprintf("failed to write file: %v", err), time.Now()).WithFile(relativePath).WithCause(err)
	}

	// The write succeeded: the candidate is now the file's real content,
	// so newTree replaces oldTree's cache entry rather than being closed.
	if o.cache != nil {
		o.cache.Put(absPath, newTree, spliced, cache.PriorityMedium)
	}
	if o.symbols != nil {
		extracted := o.symbols.UpdateFileSymbols(absPath, newTree.Root, spliced)
		if o.graphSink != nil {
			if err := o.graphSink.SyncFile(ctx, absPath, extracted); err != nil {
				log.Printf("edit: failed to sync %s into the persisted graph: %v", absPath, err)
			}
		}
	}

	return Result{ValidationResult: validationResult}, nil
}

// handleFailure consults the error model's fallback policy and, when it
// calls for a revert, pops and applies the matching rollback backup.
func (o *Orchestrator) handleFailure(relativePath string, aerr *errs.AstError) (Result, *errs.AstError) {
	fallback := errs.HandleEditFailure(aerr)
	if fallback.Status == errs.StatusReverted {
		if backup, ok := o.store.Rollback(relativePath); ok {
			_ = os.WriteFile(backup.AbsolutePath, []byte(backup.OriginalContent), 0o644)
			if o.cache != nil {
				o.cache.Invalidate(backup.AbsolutePath)
			}
		}
	}
	return Result{}, aerr
}

// spliceBody replaces body's byte range within source with newBody
// verbatim, preserving everything outside the body untouched.
func spliceBody(source []byte, body *sitter.Node, newBody string) []byte {
	start := body.StartByte()
	end := body.EndByte()
	out := make([]byte, 0, len(source)-int(end-start)+len(newBody))
	out = append(out, source[:start]...)
	out = append(out, []byte(newBody)...)
	out = append(out, source[end:]...)
	return out
}
