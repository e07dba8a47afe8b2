// Package differ implements the Tree Differ (C5): a conservative recursive
// structural diff between the root nodes of two parses of the same file,
// emitting classified Change records focused on function-like nodes. It
// never rewrites, only classifies.
//
// No direct teacher analog exists (codeloom never re-diffs a file against
// its own prior parse); this is grounded on the general recursive-node-walk
// idiom used throughout internal/parser/parser.go's extractNodes (a
// node.Type() switch plus ChildCount()/Child(i) recursion), adapted into a
// two-tree zipper.
package differ

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/heefoo/codesurgeon/internal/langkit"
)

// ChangeKind classifies one node-level difference.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// Change is one classified difference between two parses, per spec §3.
type Change struct {
	Kind    ChangeKind
	OldNode *sitter.Node
	NewNode *sitter.Node
}

// maxZipChildren bounds the worst-case cost of diffing pathological files,
// per spec §4.5.
const maxZipChildren = 100

// Diff compares oldNode and newNode (root nodes of two parses of the same
// file, or any corresponding pair of subtrees) and returns every Change
// found, following the rules in spec §4.5.
func Diff(oldNode, newNode *sitter.Node, oldContent, newContent []byte) []Change {
	var changes []Change
	diffNode(oldNode, newNode, oldContent, newContent, &changes)
	return changes
}

func diffNode(oldNode, newNode *sitter.Node, oldContent, newContent []byte, out *[]Change) {
	if oldNode == nil && newNode == nil {
		return
	}
	if oldNode == nil {
		*out = append(*out, Change{Kind: ChangeAdded, NewNode: newNode})
		return
	}
	if newNode == nil {
		*out = append(*out, Change{Kind: ChangeRemoved, OldNode: oldNode})
		return
	}

	if oldNode.Type() != newNode.Type() {
		*out = append(*out, Change{Kind: ChangeModified, OldNode: oldNode, NewNode: newNode})
		return
	}

	if langkit.IsFunctionLikeKind(oldNode.Type()) {
		oldName := langkit.NameField(oldNode, oldContent)
		newName := langkit.NameField(newNode, newContent)
		if oldName == newName {
			oldBody := langkit.BodyField(oldNode)
			newBody := langkit.BodyField(newNode)
			oldText := nodeText(oldBody, oldContent)
			newText := nodeText(newBody, newContent)
			if oldText != newText {
				*out = append(*out, Change{Kind: ChangeModified, OldNode: oldNode, NewNode: newNode})
			}
			return
		}
		*out = append(*out, Change{Kind: ChangeModified, OldNode: oldNode, NewNode: newNode})
		return
	}

	oldChildCount := int(oldNode.ChildCount())
	newChildCount := int(newNode.ChildCount())
	n := oldChildCount
	if newChildCount < n {
		n = newChildCount
	}
	if n > maxZipChildren {
		n = maxZipChildren
	}
	for i := 0; i < n; i++ {
		diffNode(oldNode.Child(i), newNode.Child(i), oldContent, newContent, out)
	}
}

func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}
