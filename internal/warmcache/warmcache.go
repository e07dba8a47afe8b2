// Package warmcache pre-populates the Tree Cache and Symbol Index for a
// directory tree before the first edit request arrives, so that
// modify_function_body's first call against a large repository doesn't pay
// the full parse cost on the critical path.
//
// Adapted from gavlooth-codeloom/internal/indexer/indexer.go's
// IndexDirectory walk and DefaultExcludePatterns, narrowed from
// "parse, embed, and persist to a graph" down to "parse and cache"; the
// exclude-pattern matching reuses internal/util.MatchPattern exactly as the
// teacher's indexer and watcher already share it.
package warmcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/heefoo/codesurgeon/internal/langkit"
	"github.com/heefoo/codesurgeon/internal/parse"
	"github.com/heefoo/codesurgeon/internal/util"
)

// DefaultExcludePatterns returns the directory/file-name glob patterns
// skipped during a warm, matching the teacher's own
// DefaultExcludePatterns (vendor, node_modules, build output, VCS dirs).
func DefaultExcludePatterns() []string {
	return []string{
		".git", ".svn", ".hg",
		"node_modules", "vendor", "__pycache__", ".venv", "venv",
		"target", "build", "dist", ".idea", ".vscode",
		"*.min.js", "*.min.css", "*.map",
	}
}

// Status reports a warm's progress, in the same "counts so far" shape as
// the teacher's indexer.Status.
type Status struct {
	FilesScanned int64
	FilesParsed  int64
	FilesSkipped int64
	Errors       int64
}

// Warm walks dir, parsing every file whose extension is recognized by the
// language registry (and which isn't excluded by excludePatterns),
// populating the shared Tree Cache and Symbol Index as it goes. Parse
// errors are counted, not fatal: one malformed file does not abort the
// warm of the rest of the tree.
func Warm(ctx context.Context, svc *parse.Service, dir string, excludePatterns []string, progress func(Status)) error {
	if excludePatterns == nil {
		excludePatterns = DefaultExcludePatterns()
	}

	var scanned, parsed, skipped, failed atomic.Int64

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := d.Name()
		if shouldExclude(name, excludePatterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			skipped.Add(1)
			report(progress, &scanned, &parsed, &skipped, &failed)
			return nil
		}

		if d.IsDir() {
			return nil
		}

		scanned.Add(1)

		if !langkit.IsSupportedFile(path) {
			skipped.Add(1)
			report(progress, &scanned, &parsed, &skipped, &failed)
			return nil
		}

		if _, aerr := svc.ParseFile(ctx, path); aerr != nil {
			failed.Add(1)
			report(progress, &scanned, &parsed, &skipped, &failed)
			return nil
		}

		parsed.Add(1)
		report(progress, &scanned, &parsed, &skipped, &failed)
		return nil
	})

	return err
}

func report(progress func(Status), scanned, parsed, skipped, failed *atomic.Int64) {
	if progress == nil {
		return
	}
	progress(Status{
		FilesScanned: scanned.Load(),
		FilesParsed:  parsed.Load(),
		FilesSkipped: skipped.Load(),
		Errors:       failed.Load(),
	})
}

func shouldExclude(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(pattern, "*") {
			if util.MatchPattern(pattern, name) {
				return true
			}
			continue
		}
		if name == pattern {
			return true
		}
	}
	return false
}
