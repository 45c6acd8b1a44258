// Package fstree implements the recursive, tagged-node filesystem tree
// shared by plain snapshots and diff-annotated snapshots. A single generic
// node type carries a per-node context parameter C so the two uses never
// need sibling tree types: a freshly scanned snapshot instantiates
// MetaNode[struct{}], while the diff engine instantiates
// MetaNode[diff.Classification] over the same shape.
package fstree

import (
	"sort"
	"strings"

	"github.com/aticu/sniffdb/internal/casefold"
	"github.com/aticu/sniffdb/internal/filecontent"
	"github.com/aticu/sniffdb/internal/metadata"
)

// Kind discriminates the tagged variants of TreeNode.
type Kind int

const (
	KindFile Kind = iota
	KindSymlink
	KindDirectory
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	case KindDirectory:
		return "directory"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// OtherKind enumerates the non-regular, non-directory, non-symlink entry
// kinds a scan may encounter.
type OtherKind int

const (
	OtherBlockDevice OtherKind = iota
	OtherCharDevice
	OtherPipe
	OtherSocket
	OtherUnknown
)

// SymlinkContent is the content recorded for a symlink entry: its target,
// rewritten to be root-relative at scan time if it pointed inside the scan
// root (see snapshot.rewriteSymlinkTarget).
type SymlinkContent struct {
	Target string
}

// TreeNode is the tagged union of what a filesystem entry can be. Exactly
// one of File/Symlink/Children/Other is meaningful, selected by Kind.
// Directory entries are keyed by raw name bytes (stored as string, Go's
// native byte-sequence type) and iterated in lexicographic order by every
// helper in this package, never in map order.
type TreeNode[C any] struct {
	Kind Kind

	File     filecontent.FileContent
	Symlink  SymlinkContent
	Children map[string]*MetaNode[C]
	Other    OtherKind
}

// MetaNode pairs a TreeNode with the metadata and per-node context carried
// alongside it. The root of every snapshot is a MetaNode[struct{}] whose
// Entry is always directory-typed.
type MetaNode[C any] struct {
	Entry    TreeNode[C]
	Metadata metadata.Metadata
	Context  C
}

// NewDirectory returns an empty directory node with placeholder metadata,
// used when a parent directory must exist in the tree before its real
// metadata has been read (e.g. while inserting a deeply nested path).
func NewDirectory[C any]() *MetaNode[C] {
	return &MetaNode[C]{
		Entry:    TreeNode[C]{Kind: KindDirectory, Children: map[string]*MetaNode[C]{}},
		Metadata: metadata.Meaningless(),
	}
}

// IsDirectory reports whether n is directory-typed.
func (n *MetaNode[C]) IsDirectory() bool { return n.Entry.Kind == KindDirectory }

// SortedNames returns a directory node's child names in deterministic
// lexicographic order. Returns nil for non-directory nodes.
func (n *MetaNode[C]) SortedNames() []string {
	if n.Entry.Kind != KindDirectory {
		return nil
	}
	names := make([]string, 0, len(n.Entry.Children))
	for name := range n.Entry.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SplitPath breaks a '/'-separated path into its non-empty components.
func SplitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Insert places leaf at the given path components under root, creating
// intermediate directories (with placeholder metadata) as needed.
//
// Collision handling (resolves the "identical-path file replacement" open
// question): inserting a directory at a path that already holds a
// directory merges the two directories' child maps, with the new tree's
// entries winning on key collision ("union of children"); inserting at a
// path that already holds a leaf, or inserting a leaf over an existing
// directory, replaces the existing node outright ("last write wins").
func Insert[C any](root *MetaNode[C], components []string, leaf *MetaNode[C]) {
	if len(components) == 0 {
		mergeInto(root, leaf)
		return
	}

	cur := root
	for i, name := range components {
		last := i == len(components)-1

		if cur.Entry.Kind != KindDirectory {
			cur.Entry = TreeNode[C]{Kind: KindDirectory, Children: map[string]*MetaNode[C]{}}
		}

		if last {
			if existing, ok := cur.Entry.Children[name]; ok {
				mergeInto(existing, leaf)
			} else {
				cur.Entry.Children[name] = leaf
			}
			return
		}

		next, ok := cur.Entry.Children[name]
		if !ok {
			next = NewDirectory[C]()
			cur.Entry.Children[name] = next
		}
		cur = next
	}
}

// mergeInto implements the collision rule described on Insert: dst is
// mutated in place to become the result of inserting src at dst's position.
func mergeInto[C any](dst, src *MetaNode[C]) {
	if dst.Entry.Kind == KindDirectory && src.Entry.Kind == KindDirectory {
		for name, child := range src.Entry.Children {
			if existing, ok := dst.Entry.Children[name]; ok {
				mergeInto(existing, child)
			} else {
				dst.Entry.Children[name] = child
			}
		}
		dst.Metadata = src.Metadata
		return
	}
	*dst = *src
}

// Lookup resolves a '/'-separated path under root, with a case-insensitive
// fallback: if no child matches a component's raw bytes, the first child
// in lexicographic name order whose name matches case-insensitively (NTFS $UpCase semantics via
// casefold) is used instead.
func Lookup[C any](root *MetaNode[C], path string) (*MetaNode[C], bool) {
	return LookupComponents(root, SplitPath(path))
}

// LookupComponents is Lookup with pre-split path components.
func LookupComponents[C any](root *MetaNode[C], components []string) (*MetaNode[C], bool) {
	cur := root
	for _, name := range components {
		if cur.Entry.Kind != KindDirectory {
			return nil, false
		}
		next, ok := cur.Entry.Children[name]
		if !ok {
			next, ok = lookupCaseInsensitive(cur.Entry.Children, name)
			if !ok {
				return nil, false
			}
		}
		cur = next
	}
	return cur, true
}

func lookupCaseInsensitive[C any](children map[string]*MetaNode[C], name string) (*MetaNode[C], bool) {
	folded, ok := casefold.Fold(name)
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(children))
	for childName := range children {
		names = append(names, childName)
	}
	sort.Strings(names)
	for _, childName := range names {
		childFolded, ok := casefold.Fold(childName)
		if ok && childFolded == folded {
			return children[childName], true
		}
	}
	return nil, false
}

// Walk calls fn for every node in the tree rooted at root, in
// depth-first, lexicographic-by-name order. fn receives the full
// '/'-separated path of the node ("" for root). Stops and returns the first
// error fn returns.
func Walk[C any](root *MetaNode[C], fn func(path string, node *MetaNode[C]) error) error {
	return walk(root, "", fn)
}

func walk[C any](node *MetaNode[C], path string, fn func(string, *MetaNode[C]) error) error {
	if err := fn(path, node); err != nil {
		return err
	}
	if node.Entry.Kind != KindDirectory {
		return nil
	}
	for _, name := range node.SortedNames() {
		childPath := name
		if path != "" {
			childPath = path + "/" + name
		}
		if err := walk(node.Entry.Children[name], childPath, fn); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether two nodes (possibly over different context types,
// since context never participates in structural equality) have identical
// entry content and metadata, recursively for directories.
func Equal[A, B any](a *MetaNode[A], b *MetaNode[B]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !metadataEqual(a.Metadata, b.Metadata) {
		return false
	}
	return entryEqual(a.Entry, b.Entry)
}

func entryEqual[A, B any](a TreeNode[A], b TreeNode[B]) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindFile:
		return fileContentEqual(a.File, b.File)
	case KindSymlink:
		return a.Symlink == b.Symlink
	case KindOther:
		return a.Other == b.Other
	case KindDirectory:
		if len(a.Children) != len(b.Children) {
			return false
		}
		for name, childA := range a.Children {
			childB, ok := b.Children[name]
			if !ok || !Equal(childA, childB) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func fileContentEqual(a, b filecontent.FileContent) bool {
	return a.SHA256 == b.SHA256 &&
		a.MD5 == b.MD5 &&
		string(a.FirstBytes) == string(b.FirstBytes) &&
		a.Flags == b.Flags &&
		a.Entropy == b.Entropy &&
		string(a.COFFHeader) == string(b.COFFHeader)
}

func metadataEqual(a, b metadata.Metadata) bool {
	if a.Size != b.Size {
		return false
	}
	if !ptrEqual(a.Created, b.Created) || !ptrEqual(a.Modified, b.Modified) ||
		!ptrEqual(a.Accessed, b.Accessed) || !ptrEqual(a.MFTModified, b.MFTModified) {
		return false
	}
	if !ptrEqual(a.NtfsAttrs, b.NtfsAttrs) || !ptrEqual(a.UnixPerms, b.UnixPerms) ||
		!ptrEqual(a.UID, b.UID) || !ptrEqual(a.GID, b.GID) || !ptrEqual(a.Nlink, b.Nlink) ||
		!ptrEqual(a.Inode, b.Inode) {
		return false
	}
	return string(a.ReparseData) == string(b.ReparseData) &&
		string(a.ACL) == string(b.ACL) &&
		string(a.DosName) == string(b.DosName) &&
		string(a.ObjectID) == string(b.ObjectID) &&
		string(a.EFSInfo) == string(b.EFSInfo) &&
		string(a.EA) == string(b.EA)
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
