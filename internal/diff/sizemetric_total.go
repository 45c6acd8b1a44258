package diff

import "github.com/aticu/sniffdb/internal/fstree"

// TotalSize sums Measure over node and every descendant, under metric. This
// is what the tree-map visualizer and summary views use to weigh
// directories rather than just their own (meaningless, for a directory)
// Metadata.Size.
func TotalSize(node *Tree, metric SizeMetric) uint64 {
	var total uint64
	_ = fstree.Walk(node, func(_ string, n *Tree) error {
		if n.Entry.Kind != fstree.KindDirectory {
			total += Measure(n, metric)
		}
		return nil
	})
	return total
}
