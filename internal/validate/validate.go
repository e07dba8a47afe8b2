// Package validate implements the Semantic Validator (C6): it decides
// whether a candidate replacement for a syntax node is an acceptable edit
// by combining a structural similarity score (a recursive tree comparison)
// with an optional semantic score (cosine similarity of text embeddings).
//
// No direct teacher analog exists for the structural half; the recursive
// node-walk idiom is the same one internal/differ and
// internal/parser/parser.go's extractNodes use. The semantic half is
// grounded on internal/graph/storage.go's cosineSimilarity, reused nearly
// verbatim, fed by internal/validate/embedding (itself adapted from the
// teacher's internal/embedding).
package validate

import (
	"context"
	"math"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/heefoo/codesurgeon/internal/langkit"
	"github.com/heefoo/codesurgeon/internal/validate/embedding"
)

// Options configures one validation run, per spec §4.6's knobs.
type Options struct {
	SemanticThreshold   float64
	StructuralThreshold float64
	ValidateImports     bool
	SkipSemantic        bool
	SkipTypes           map[string]bool
}

// DefaultOptions returns the pipeline defaults resolved in spec §9: a 0.82
// semantic threshold and a 0.7 structural threshold.
func DefaultOptions() Options {
	return Options{
		SemanticThreshold:   0.82,
		StructuralThreshold: 0.7,
		ValidateImports:     true,
		SkipTypes:           map[string]bool{"comment": true, "line_comment": true, "block_comment": true},
	}
}

// Result is the outcome of validating one candidate edit.
type Result struct {
	Valid             bool
	SemanticScore     float64
	StructuralScore   float64
	OffendingNodes    []string // node types recorded as mismatches
	LowestSimilarity  float64
	LowestSimilarText string
}

// Validator combines structural and semantic scoring behind the thresholds
// in Options.
type Validator struct {
	provider embedding.Provider
}

// NewValidator builds a Validator. provider may be nil, in which case
// semantic scoring falls back to structural-score-or-string-equality, per
// spec §4.6.
func NewValidator(provider embedding.Provider) *Validator {
	return &Validator{provider: provider}
}

// Validate compares oldNode/oldContent against newNode/newContent and
// reports whether the edit clears both the structural and semantic
// thresholds in opts. For function-like nodes, any change to the text
// before the body (name, parameters, result) also makes the edit invalid.
func (v *Validator) Validate(ctx context.Context, oldNode, newNode *sitter.Node, oldContent, newContent []byte, opts Options) Result {
	var offending []string
	structScore, lowestSim, lowestText := structuralSimilarity(oldNode, newNode, oldContent, newContent, opts, &offending)

	oldText := nodeText(oldNode, oldContent)
	newText := nodeText(newNode, newContent)

	semScore := v.semanticScore(ctx, oldText, newText, structScore, opts)

	valid := structScore >= opts.StructuralThreshold && (opts.SkipSemantic || semScore >= opts.SemanticThreshold)

	if oldNode != nil && newNode != nil && langkit.IsFunctionLikeKind(oldNode.Type()) && oldNode.Type() == newNode.Type() {
		oldBody, newBody := langkit.BodyField(oldNode), langkit.BodyField(newNode)
		if oldBody != nil && newBody != nil &&
			string(oldContent[oldNode.StartByte():oldBody.StartByte()]) != string(newContent[newNode.StartByte():newBody.StartByte()]) {
			offending = append(offending, oldNode.Type()+" signature changed")
			valid = false
		}
	}

	return Result{
		Valid:             valid,
		SemanticScore:     semScore,
		StructuralScore:   structScore,
		OffendingNodes:    offending,
		LowestSimilarity:  lowestSim,
		LowestSimilarText: lowestText,
	}
}

// semanticScore returns 1.0 for identical text, the cosine similarity of
// embeddings when a provider is configured, or falls back to the
// structural score (or exact string equality when structural scoring isn't
// meaningful) when embeddings are unavailable, per spec §4.6.
func (v *Validator) semanticScore(ctx context.Context, oldText, newText string, structScore float64, opts Options) float64 {
	if oldText == newText {
		return 1.0
	}
	if opts.SkipSemantic || v.provider == nil {
		if oldText == newText {
			return 1.0
		}
		return structScore
	}

	vecs, err := v.provider.Embed(ctx, []string{oldText, newText})
	if err != nil || len(vecs) != 2 {
		return structScore
	}
	return cosineSimilarity(vecs[0], vecs[1])
}

// cosineSimilarity is internal/graph/storage.go's cosineSimilarity,
// reused unchanged: dot product over the product of the two vectors'
// magnitudes, zero-guarded against empty or mismatched-length input.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// structuralSimilarity implements spec §4.6's recursive structural
// comparison exactly:
//
//   - comment nodes, or a type in opts.SkipTypes, score 1.0 unconditionally
//   - a type mismatch at this node scores 0.0 and records the offending pair
//   - leaves: identical text scores 1.0; differing identifiers score 0.5 and
//     are recorded; other differing leaves score 0.8
//   - interior nodes: if the child-count difference exceeds half of the
//     larger child count, score 0.5 and record; otherwise average the first
//     min(n_old, n_new) children's recursive similarity and blend it with
//     the child-count ratio as 0.8*avg + 0.2*(min/max)
//   - the lowest-scoring child below 0.7 is tracked for diagnostics
func structuralSimilarity(oldNode, newNode *sitter.Node, oldContent, newContent []byte, opts Options, offending *[]string) (score float64, lowestSim float64, lowestText string) {
	lowestSim = 1.0

	if oldNode == nil || newNode == nil {
		if oldNode == newNode {
			return 1.0, 1.0, ""
		}
		*offending = append(*offending, "nil-mismatch")
		return 0.0, 0.0, ""
	}

	oldKind := oldNode.Type()
	if isCommentKind(oldKind) || opts.SkipTypes[oldKind] {
		return 1.0, 1.0, ""
	}

	if oldKind != newNode.Type() {
		*offending = append(*offending, oldKind+"->"+newNode.Type())
		return 0.0, 0.0, nodeText(newNode, newContent)
	}

	oldChildren := int(oldNode.ChildCount())
	newChildren := int(newNode.ChildCount())

	if oldChildren == 0 && newChildren == 0 {
		oldText := nodeText(oldNode, oldContent)
		newText := nodeText(newNode, newContent)
		if oldText == newText {
			return 1.0, 1.0, ""
		}
		if isIdentifierKind(oldKind) {
			*offending = append(*offending, oldKind+":"+oldText+"->"+newText)
			return 0.5, 0.5, newText
		}
		return 0.8, 0.8, newText
	}

	maxChildren := oldChildren
	if newChildren > maxChildren {
		maxChildren = newChildren
	}
	diff := oldChildren - newChildren
	if diff < 0 {
		diff = -diff
	}
	if maxChildren > 0 && float64(diff) > float64(maxChildren)/2.0 {
		*offending = append(*offending, oldKind+" child-count mismatch")
		return 0.5, 0.5, nodeText(newNode, newContent)
	}

	n := oldChildren
	if newChildren < n {
		n = newChildren
	}

	var sum float64
	worstSim := 1.0
	worstText := ""
	for i := 0; i < n; i++ {
		childScore, childLowest, childText := structuralSimilarity(oldNode.Child(i), newNode.Child(i), oldContent, newContent, opts, offending)
		sum += childScore
		if childLowest < worstSim {
			worstSim = childLowest
			worstText = childText
		}
	}
	avg := 1.0
	if n > 0 {
		avg = sum / float64(n)
	}
	ratio := 0.0
	if maxChildren > 0 {
		minChildren := oldChildren
		if newChildren < minChildren {
			minChildren = newChildren
		}
		ratio = float64(minChildren) / float64(maxChildren)
	}
	combined := 0.8*avg + 0.2*ratio

	if worstSim < 0.7 {
		lowestSim = worstSim
		lowestText = worstText
	} else {
		lowestSim = combined
	}

	return combined, lowestSim, lowestText
}

func isCommentKind(kind string) bool {
	return strings.Contains(kind, "comment")
}

func isIdentifierKind(kind string) bool {
	return strings.Contains(kind, "identifier")
}

func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}
