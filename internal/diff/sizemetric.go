package diff

import "github.com/aticu/sniffdb/internal/fstree"

// SizeMetric selects how a diff node's "size" is computed, for sorting and
// tree-map visualization weight.
type SizeMetric int

const (
	// SizeOnDisk is the default: the node's byte size (max of old/new for
	// Changed nodes).
	SizeOnDisk SizeMetric = iota
	SizeNumberOfFiles
	SizeNumberOfChangedFiles
	SizeNumberOfAddedFiles
	SizeNumberOfRemovedFiles
	SizeNumberOfChanges
	SizeOfChange
)

// ParseSizeMetric maps a CLI flag value to a SizeMetric.
func ParseSizeMetric(s string) (SizeMetric, bool) {
	switch s {
	case "", "size-on-disk":
		return SizeOnDisk, true
	case "number-of-files":
		return SizeNumberOfFiles, true
	case "number-of-changed-files":
		return SizeNumberOfChangedFiles, true
	case "number-of-added-files":
		return SizeNumberOfAddedFiles, true
	case "number-of-removed-files":
		return SizeNumberOfRemovedFiles, true
	case "number-of-changes":
		return SizeNumberOfChanges, true
	case "size-of-change":
		return SizeOfChange, true
	default:
		return 0, false
	}
}

// Measure computes node's size under the given metric. Leaf nodes
// (non-directory) are measured directly; directory totals are the sum of
// Measure over their children, computed by the caller via a walk — Measure
// itself only knows how to score one node, since it has no view of
// descendants.
func Measure(node *Tree, metric SizeMetric) uint64 {
	switch metric {
	case SizeNumberOfFiles:
		if node.Entry.Kind == fstree.KindFile {
			return 1
		}
		return 0
	case SizeNumberOfChangedFiles:
		if node.Entry.Kind == fstree.KindFile && node.Context.Kind == KindChanged {
			return 1
		}
		return 0
	case SizeNumberOfAddedFiles:
		if node.Entry.Kind == fstree.KindFile && node.Context.Kind == KindAdded {
			return 1
		}
		return 0
	case SizeNumberOfRemovedFiles:
		if node.Entry.Kind == fstree.KindFile && node.Context.Kind == KindRemoved {
			return 1
		}
		return 0
	case SizeNumberOfChanges:
		if node.Context.Kind == KindChanged || node.Context.Kind == KindAdded || node.Context.Kind == KindRemoved {
			return 1
		}
		return 0
	case SizeOfChange:
		if node.Context.Kind == KindChanged || node.Context.Kind == KindAdded || node.Context.Kind == KindRemoved {
			return sizeOnDisk(node)
		}
		return 0
	default: // SizeOnDisk
		return sizeOnDisk(node)
	}
}

func sizeOnDisk(node *Tree) uint64 {
	if node.Context.Kind == KindChanged && node.Context.To != nil {
		old := node.Metadata.Size
		newSize := node.Context.To.Metadata.Size
		if newSize > old {
			return newSize
		}
		return old
	}
	return node.Metadata.Size
}
