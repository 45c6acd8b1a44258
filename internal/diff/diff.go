// Package diff recursively aligns two filesystem snapshot trees and
// classifies each node as unchanged, added, removed, child-changed, or
// content-changed, with metadata deltas tracked orthogonally to content
// changes. The result is a tree of the same shape as the "former" input,
// overlaid with a Classification in each node's generic context slot —
// the same fstree.MetaNode type used for plain snapshots, instantiated
// over Classification instead of struct{} (see DESIGN NOTES, "Generic
// per-node context").
package diff

import (
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/metadata"
)

// Kind discriminates the classification a node received during alignment.
type Kind int

const (
	KindUnchanged Kind = iota
	KindChildrenChanged
	KindChanged
	KindAdded
	KindRemoved
)

// Classification is the per-node diff context (fstree's generic parameter
// C). MetaNew carries the new-side metadata when it differs from the old
// side (Unchanged/ChildrenChanged only); To carries the full new-side node
// when content itself changed.
type Classification struct {
	Kind    Kind
	MetaNew *metadata.Metadata
	To      *fstree.MetaNode[struct{}]
}

// Tree is a diff-annotated tree: the same shape as fstree.MetaNode, with
// Classification riding in the context slot.
type Tree = fstree.MetaNode[Classification]

// Compute aligns former and latter, producing a Tree of former's shape
// overlaid with classifications.
func Compute(former, latter *fstree.MetaNode[struct{}]) *Tree {
	sameMeta := *latter
	sameMeta.Metadata = former.Metadata
	if fstree.Equal(former, &sameMeta) {
		out := markAll(former, KindUnchanged)
		if !fstree.Equal(former, latter) {
			m := latter.Metadata
			out.Context.MetaNew = &m
		}
		return out
	}

	if former.Entry.Kind == fstree.KindDirectory && latter.Entry.Kind == fstree.KindDirectory {
		return computeDirectory(former, latter)
	}

	return &Tree{
		Entry:    convertEntry(former.Entry, nil),
		Metadata: former.Metadata,
		Context:  Classification{Kind: KindChanged, To: latter},
	}
}

func computeDirectory(former, latter *fstree.MetaNode[struct{}]) *Tree {
	names := unionNames(former.Entry.Children, latter.Entry.Children)
	children := make(map[string]*Tree, len(names))

	for _, name := range names {
		oldChild, inOld := former.Entry.Children[name]
		newChild, inNew := latter.Entry.Children[name]

		switch {
		case inOld && inNew:
			children[name] = Compute(oldChild, newChild)
		case inOld:
			children[name] = markAll(oldChild, KindRemoved)
		case inNew:
			children[name] = markAll(newChild, KindAdded)
		}
	}

	var metaNew *metadata.Metadata
	if !metadataEqual(former.Metadata, latter.Metadata) {
		m := latter.Metadata
		metaNew = &m
	}

	return &Tree{
		Entry:    fstree.TreeNode[Classification]{Kind: fstree.KindDirectory, Children: children},
		Metadata: former.Metadata,
		Context:  Classification{Kind: KindChildrenChanged, MetaNew: metaNew},
	}
}

// markAll tags node and every descendant with the given classification,
// preserving the full subtree shape (used for wholly-added/removed
// subtrees, and for structurally-equal subtrees tagged Unchanged).
func markAll(node *fstree.MetaNode[struct{}], kind Kind) *Tree {
	out := &Tree{
		Entry:    convertEntry(node.Entry, nil),
		Metadata: node.Metadata,
		Context:  Classification{Kind: kind},
	}
	if node.Entry.Kind == fstree.KindDirectory {
		children := make(map[string]*Tree, len(node.Entry.Children))
		for name, child := range node.Entry.Children {
			children[name] = markAll(child, kind)
		}
		out.Entry.Children = children
	}
	return out
}

func convertEntry(e fstree.TreeNode[struct{}], children map[string]*Tree) fstree.TreeNode[Classification] {
	return fstree.TreeNode[Classification]{
		Kind:     e.Kind,
		File:     e.File,
		Symlink:  e.Symlink,
		Children: children,
		Other:    e.Other,
	}
}

func unionNames(a, b map[string]*fstree.MetaNode[struct{}]) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	names := make([]string, 0, len(a)+len(b))
	for name := range a {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for name := range b {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

func metadataEqual(a, b metadata.Metadata) bool {
	// Delegate to fstree's notion of equality by wrapping each side in a
	// bare file-kind node so only the Metadata comparison is exercised.
	wrap := func(m metadata.Metadata) *fstree.MetaNode[struct{}] {
		return &fstree.MetaNode[struct{}]{Entry: fstree.TreeNode[struct{}]{Kind: fstree.KindOther}, Metadata: m}
	}
	return fstree.Equal(wrap(a), wrap(b))
}

// Added returns the '/'-separated paths of every wholly-added node
// (leaves and directories alike) in t.
func Added(t *Tree) []string { return pathsWithKind(t, KindAdded) }

// Removed returns the '/'-separated paths of every wholly-removed node.
func Removed(t *Tree) []string { return pathsWithKind(t, KindRemoved) }

func pathsWithKind(t *Tree, kind Kind) []string {
	var out []string
	_ = fstree.Walk(t, func(path string, node *Tree) error {
		if path != "" && node.Context.Kind == kind {
			out = append(out, path)
		}
		return nil
	})
	return out
}
