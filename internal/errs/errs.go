// Package errs defines the tagged error model shared by every component of
// the editing engine: a closed set of error kinds, a severity fixed per
// kind, and the fallback/recovery policy the edit orchestrator consults
// when a transaction fails.
package errs

import (
	"fmt"
	"time"
)

// Kind is the closed enumeration of error categories the engine can raise.
type Kind string

const (
	KindParserNotFound           Kind = "parser_not_found"
	KindParseError                Kind = "parse_error"
	KindSymbolNotFound            Kind = "symbol_not_found"
	KindNodeNotFound              Kind = "node_not_found"
	KindIncompatibleEdit          Kind = "incompatible_edit"
	KindSemanticValidationFailed  Kind = "semantic_validation_failed"
	KindStructuralValidationFailed Kind = "structural_validation_failed"
	KindCacheError                Kind = "cache_error"
	KindRollbackError             Kind = "rollback_error"
	KindTimeoutError              Kind = "timeout_error"
	KindMemoryError               Kind = "memory_error"
	KindGeneralError              Kind = "general_error"
)

// Severity communicates how the caller and the orchestrator should treat an
// error. It is fixed per Kind, never chosen ad hoc at the call site.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

var severityByKind = map[Kind]Severity{
	KindParserNotFound:             SeverityFatal,
	KindParseError:                 SeverityFatal,
	KindMemoryError:                SeverityFatal,
	KindTimeoutError:               SeverityFatal,
	KindSymbolNotFound:             SeverityError,
	KindNodeNotFound:               SeverityError,
	KindRollbackError:              SeverityError,
	KindGeneralError:               SeverityError,
	KindSemanticValidationFailed:   SeverityWarning,
	KindStructuralValidationFailed: SeverityWarning,
	KindIncompatibleEdit:           SeverityWarning,
	KindCacheError:                 SeverityInfo,
}

// SeverityFor returns the fixed severity for a Kind.
func SeverityFor(k Kind) Severity {
	if s, ok := severityByKind[k]; ok {
		return s
	}
	return SeverityError
}

// Position is a 1-indexed source location, as exposed at the API boundary.
type Position struct {
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
}

// AstError is the single concrete error type every component returns.
// It carries enough context for handle_edit_failure and attempt_recovery
// (see HandleEditFailure and RecoveryCounter.AttemptRecovery below) to act
// without re-deriving state.
type AstError struct {
	Code            Kind
	Message         string
	Severity        Severity
	TimestampMs     int64
	FilePath        string
	NodeType        string
	OriginalContent string
	ErrorLocations  []Position
	EnhancedDetails map[string]any
	Cause           error
}

// New constructs an AstError with the fixed severity for its kind and the
// current timestamp.
func New(code Kind, message string, now time.Time) *AstError {
	return &AstError{
		Code:        code,
		Message:     message,
		Severity:    SeverityFor(code),
		TimestampMs: now.UnixMilli(),
	}
}

func (e *AstError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.FilePath)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AstError) Unwrap() error {
	return e.Cause
}

// WithFile attaches a file path and returns the receiver for chaining.
func (e *AstError) WithFile(path string) *AstError {
	e.FilePath = path
	return e
}

// WithCause attaches a wrapped cause and returns the receiver for chaining.
func (e *AstError) WithCause(cause error) *AstError {
	e.Cause = cause
	return e
}

// WithOriginalContent attaches the pre-edit file content, which
// HandleEditFailure exposes as fallback_content on a "reverted" Fallback.
func (e *AstError) WithOriginalContent(content string) *AstError {
	e.OriginalContent = content
	return e
}

// WithErrorLocations attaches 1-indexed parse-error positions.
func (e *AstError) WithErrorLocations(locs []Position) *AstError {
	e.ErrorLocations = locs
	return e
}

// WithDetail merges a single enhanced-detail key/value pair.
func (e *AstError) WithDetail(key string, value any) *AstError {
	if e.EnhancedDetails == nil {
		e.EnhancedDetails = make(map[string]any)
	}
	e.EnhancedDetails[key] = value
	return e
}

// FallbackStatus is the wire-visible outcome of handle_edit_failure.
type FallbackStatus string

const (
	StatusReverted    FallbackStatus = "reverted"
	StatusPartial     FallbackStatus = "partial"
	StatusAlternative FallbackStatus = "alternative"
)

// Fallback is the wire-visible failure shape returned to callers (spec §6).
type Fallback struct {
	Status          FallbackStatus `json:"status"`
	Message         string         `json:"message"`
	FallbackContent *string        `json:"fallback_content,omitempty"`
	ErrorLocations  []Position     `json:"error_locations,omitempty"`
	SuggestedAction string         `json:"suggested_action,omitempty"`
}

// HandleEditFailure implements handle_edit_failure (spec §4.1): it maps an
// AstError to the wire-visible EditFallback shape the orchestrator returns
// to its caller.
func HandleEditFailure(e *AstError) Fallback {
	switch e.Code {
	case KindStructuralValidationFailed, KindSemanticValidationFailed:
		fb := Fallback{
			Status:          StatusReverted,
			Message:         e.Message,
			SuggestedAction: "the proposed body changed the function's structure or intent beyond the configured threshold; narrow the edit to the function body only",
		}
		if e.OriginalContent != "" {
			content := e.OriginalContent
			fb.FallbackContent = &content
		}
		return fb

	case KindNodeNotFound:
		return Fallback{
			Status:          StatusReverted,
			Message:         e.Message,
			SuggestedAction: "check the function identifier (name:line or Class.method:line) against the file's current content",
		}

	case KindParserNotFound:
		return Fallback{
			Status:          StatusReverted,
			Message:         e.Message,
			SuggestedAction: "use a file extension for one of the supported languages",
		}

	case KindParseError:
		fb := Fallback{
			Status:         StatusReverted,
			Message:        e.Message,
			ErrorLocations: e.ErrorLocations,
		}
		if e.OriginalContent != "" {
			content := e.OriginalContent
			fb.FallbackContent = &content
		}
		return fb

	case KindIncompatibleEdit, KindCacheError:
		return Fallback{
			Status:          StatusAlternative,
			Message:         e.Message,
			SuggestedAction: "proceed with a text-based fallback edit; the engine could not apply the structured path for this call",
		}

	default:
		fb := Fallback{
			Status:  StatusReverted,
			Message: e.Message,
		}
		if e.OriginalContent != "" {
			content := e.OriginalContent
			fb.FallbackContent = &content
		}
		return fb
	}
}

// maxRecoveryAttempts bounds automatic recovery per file (spec §7).
const maxRecoveryAttempts = 3

// RecoveryCounter tracks recovery attempts per file path so that
// AttemptRecovery can refuse once the bound is exceeded.
type RecoveryCounter struct {
	attempts map[string]int
}

// NewRecoveryCounter constructs an empty counter.
func NewRecoveryCounter() *RecoveryCounter {
	return &RecoveryCounter{attempts: make(map[string]int)}
}

// AttemptRecovery implements attempt_recovery (spec §4.1): for
// validation/timeout/memory/general errors it reverts to original_content;
// for parse/node errors it is a no-op. It refuses once a file has exhausted
// its recovery budget.
func (rc *RecoveryCounter) AttemptRecovery(e *AstError, currentContent string) (recoveredContent string, recovered bool) {
	switch e.Code {
	case KindSemanticValidationFailed, KindStructuralValidationFailed,
		KindTimeoutError, KindMemoryError, KindGeneralError:
		if e.FilePath != "" {
			if rc.attempts[e.FilePath] >= maxRecoveryAttempts {
				return currentContent, false
			}
			rc.attempts[e.FilePath]++
		}
		if e.OriginalContent == "" {
			return currentContent, false
		}
		return e.OriginalContent, true
	default:
		return currentContent, false
	}
}

// Reset clears the recovery budget for a file, e.g. after a successful edit.
func (rc *RecoveryCounter) Reset(filePath string) {
	delete(rc.attempts, filePath)
}
