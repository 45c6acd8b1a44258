package treemap

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/aticu/sniffdb/internal/diff"
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/metadata"
)

func leaf(kind diff.Kind, size uint64) *diff.Tree {
	return &diff.Tree{
		Entry:    fstree.TreeNode[diff.Classification]{Kind: fstree.KindFile},
		Metadata: metadata.Metadata{Size: size},
		Context:  diff.Classification{Kind: kind},
	}
}

func TestRenderProducesDecodablePNG(t *testing.T) {
	root := &diff.Tree{
		Entry: fstree.TreeNode[diff.Classification]{
			Kind: fstree.KindDirectory,
			Children: map[string]*diff.Tree{
				"added.bin":   leaf(diff.KindAdded, 100*1024),
				"removed.bin": leaf(diff.KindRemoved, 10*1024),
			},
		},
		Context: diff.Classification{Kind: diff.KindChildrenChanged},
	}

	var buf bytes.Buffer
	if err := Render(&buf, root, Options{Width: 200, Height: 100, Metric: diff.SizeOnDisk}); err != nil {
		t.Fatalf("Render: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decoding rendered PNG: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 100 {
		t.Fatalf("unexpected image size: %v", img.Bounds())
	}
}

func TestSquarifyAreaRatioMatchesSizeRatio(t *testing.T) {
	root := &diff.Tree{
		Entry: fstree.TreeNode[diff.Classification]{
			Kind: fstree.KindDirectory,
			Children: map[string]*diff.Tree{
				"big":   leaf(diff.KindAdded, 100*1024),
				"small": leaf(diff.KindRemoved, 10*1024),
			},
		},
		Context: diff.Classification{Kind: diff.KindChildrenChanged},
	}

	cells := layout(root, "", rect{X: 0, Y: 0, W: 220, H: 100}, diff.SizeOnDisk, diff.ByClassification())
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}

	var bigArea, smallArea float64
	for _, c := range cells {
		area := c.Rect.W * c.Rect.H
		if c.Name == "big" {
			bigArea = area
		} else {
			smallArea = area
		}
	}
	if smallArea == 0 {
		t.Fatalf("small cell has zero area")
	}
	ratio := bigArea / smallArea
	if ratio < 8 || ratio > 12 {
		t.Fatalf("expected roughly 10:1 area ratio, got %.2f (big=%.1f small=%.1f)", ratio, bigArea, smallArea)
	}
}

func TestZeroSizedNodeDropped(t *testing.T) {
	root := &diff.Tree{
		Entry: fstree.TreeNode[diff.Classification]{
			Kind: fstree.KindDirectory,
			Children: map[string]*diff.Tree{
				"empty": leaf(diff.KindUnchanged, 0),
				"full":  leaf(diff.KindUnchanged, 1024),
			},
		},
		Context: diff.Classification{Kind: diff.KindChildrenChanged},
	}

	cells := layout(root, "", rect{X: 0, Y: 0, W: 100, H: 100}, diff.SizeOnDisk, diff.ByClassification())
	if len(cells) != 1 || cells[0].Name != "full" {
		t.Fatalf("expected only the non-empty node to produce a cell, got %+v", cells)
	}
}

func TestHardIgnoreDropsSubtree(t *testing.T) {
	root := &diff.Tree{
		Entry: fstree.TreeNode[diff.Classification]{
			Kind: fstree.KindDirectory,
			Children: map[string]*diff.Tree{
				"visible": leaf(diff.KindUnchanged, 1024),
				"hidden":  leaf(diff.KindUnchanged, 1024),
			},
		},
		Context: diff.Classification{Kind: diff.KindChildrenChanged},
	}

	hideHidden := func(ctx diff.FilterContext) diff.DisplayResult {
		if ctx.Name == "hidden" {
			return diff.DisplayResult{Decision: diff.HardIgnore}
		}
		return diff.DisplayResult{Decision: diff.Normal}
	}

	cells := layout(root, "", rect{X: 0, Y: 0, W: 100, H: 100}, diff.SizeOnDisk, hideHidden)
	if len(cells) != 1 || cells[0].Name != "visible" {
		t.Fatalf("expected only 'visible' cell, got %+v", cells)
	}
}
