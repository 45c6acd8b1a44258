// Package treemap lays out a diff tree as a squarified tree-map and renders
// it to a PNG: each terminal cell's area is proportional to the node's size
// under the selected metric, and its fill color comes from the node's
// display filter result. Grounded on original_source/src/diff/visualize.rs
// for the layout and coloring rules; no rect-packing or imaging library
// appears anywhere in the retrieved pack, so this is built on stdlib
// image/image/draw/png, which is itself the idiomatic Go answer for
// drawing a raster image (see DESIGN.md, "Tree-map image rendering").
package treemap

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sort"

	"github.com/aticu/sniffdb/internal/diff"
)

// rect is a pixel-space rectangle being subdivided.
type rect struct {
	X, Y, W, H float64
}

// cell is one laid-out leaf of the tree-map: its screen rectangle, the
// entry name for labeling, and the resolved display color.
type cell struct {
	Rect  rect
	Name  string
	Color color.RGBA
}

// item pairs a child node with its measured size, used during layout.
type item struct {
	name string
	node *diff.Tree
	size float64
}

// Options configures a render.
type Options struct {
	Width, Height int
	Metric        diff.SizeMetric
	Display       diff.DisplayFilter
}

// fontWidth/fontHeight are the bitmap font cell dimensions; a label is only
// drawn when the cell is tall enough to hold at least one row of glyphs
// plus its border.
const (
	fontWidth  = 8
	fontHeight = 8
	minLabelH  = fontHeight + 2
)

// Render lays out root (a diff tree) into a width×height tree-map image and
// writes it as a PNG to w. Zero-sized nodes are dropped before layout, as
// are nodes a HardIgnore display decision excludes.
func Render(w io.Writer, root *diff.Tree, opts Options) error {
	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}), image.Point{}, draw.Src)

	display := opts.Display
	if display == nil {
		display = diff.ByClassification()
	}

	cells := layout(root, "", rect{X: 0, Y: 0, W: float64(opts.Width), H: float64(opts.Height)}, opts.Metric, display)
	for _, c := range cells {
		fillCell(img, c)
	}

	return png.Encode(w, img)
}

// layout recursively squarifies node's children into area, returning the
// flattened list of terminal cells to draw. A node with no weight
// (Measure == 0 under the directory-sum rule) is dropped entirely.
func layout(node *diff.Tree, name string, area rect, metric diff.SizeMetric, display diff.DisplayFilter) []cell {
	decision := display(diff.FilterContext{Name: name, Node: node})
	if decision.Decision == diff.HardIgnore || decision.Decision == diff.Ignore {
		return nil
	}

	if !node.IsDirectory() {
		if Measure(node, metric) == 0 {
			return nil
		}
		return []cell{{Rect: area, Name: name, Color: resolveColor(decision, node)}}
	}

	items := collectItems(node, metric)
	if len(items) == 0 {
		return nil
	}

	rects := squarify(items, area)

	var out []cell
	for i, it := range items {
		out = append(out, layout(it.node, it.name, rects[i], metric, display)...)
	}
	return out
}

func collectItems(node *diff.Tree, metric diff.SizeMetric) []item {
	names := node.SortedNames()
	items := make([]item, 0, len(names))
	for _, name := range names {
		child := node.Entry.Children[name]
		size := directorySize(child, metric)
		if size <= 0 {
			continue
		}
		items = append(items, item{name: name, node: child, size: size})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].size > items[j].size })
	return items
}

// directorySize is Measure extended with the directory-sum rule Measure's
// own doc comment defers to its caller: a directory's weight is the sum of
// its descendants' weight under metric.
func directorySize(node *diff.Tree, metric diff.SizeMetric) float64 {
	if !node.IsDirectory() {
		return float64(Measure(node, metric))
	}
	var total uint64
	for _, name := range node.SortedNames() {
		total += uint64(directorySize(node.Entry.Children[name], metric))
	}
	return float64(total)
}

// Measure exposes diff.Measure under the name this package's callers use;
// kept as a thin alias so treemap's own doc comments can describe layout
// without repeating diff's.
func Measure(node *diff.Tree, metric diff.SizeMetric) uint64 { return diff.Measure(node, metric) }

// squarify lays items out into area using the standard squarified
// tree-map algorithm: repeatedly lay out a run of items along the shorter
// side of the remaining area, choosing the run length that minimizes the
// worst aspect ratio, matching the algorithm the original's visualize.rs
// ports from the Bruls/Huizing/van Wijk paper.
func squarify(items []item, area rect) []rect {
	out := make([]rect, len(items))
	total := 0.0
	for _, it := range items {
		total += it.size
	}
	if total <= 0 {
		return out
	}

	remaining := area
	start := 0
	for start < len(items) {
		end := bestRun(items, start, total, remaining)
		layoutRun(items, start, end, total, remaining, out)

		usedArea := 0.0
		for i := start; i < end; i++ {
			usedArea += items[i].size / total * (area.W * area.H)
		}
		remaining = shrink(remaining, usedArea)
		start = end
	}
	return out
}

// bestRun returns the exclusive end index of the run starting at start that
// minimizes the worst aspect ratio along the shorter side of area.
func bestRun(items []item, start int, total float64, area rect) int {
	side := shorterSide(area)
	if side <= 0 {
		return len(items)
	}

	best := start + 1
	bestWorst := worstRatio(items, start, best, total, area, side)
	runSum := items[start].size

	for end := start + 2; end <= len(items); end++ {
		runSum += items[end-1].size
		worst := worstRatio(items, start, end, total, area, side)
		if worst > bestWorst {
			break
		}
		bestWorst = worst
		best = end
	}
	return best
}

func worstRatio(items []item, start, end int, total float64, area rect, side float64) float64 {
	areaTotal := area.W * area.H
	sum := 0.0
	maxItem, minItem := 0.0, items[start].size
	for i := start; i < end; i++ {
		a := items[i].size / total * areaTotal
		sum += a
		if a > maxItem {
			maxItem = a
		}
		if a < minItem {
			minItem = a
		}
	}
	if sum == 0 {
		return 0
	}
	r1 := (side * side * maxItem) / (sum * sum)
	r2 := (sum * sum) / (side * side * minItem)
	if r1 > r2 {
		return r1
	}
	return r2
}

func shorterSide(area rect) float64 {
	if area.W < area.H {
		return area.W
	}
	return area.H
}

// layoutRun places items[start:end] along the shorter side of area into
// out, returning nothing (writes in place).
func layoutRun(items []item, start, end int, total float64, area rect, out []rect) {
	areaTotal := area.W * area.H
	runArea := 0.0
	for i := start; i < end; i++ {
		runArea += items[i].size / total * areaTotal
	}

	if area.W >= area.H {
		// Lay the run out as a vertical strip at the left of area.
		stripW := 0.0
		if area.H > 0 {
			stripW = runArea / area.H
		}
		y := area.Y
		for i := start; i < end; i++ {
			h := 0.0
			if runArea > 0 {
				h = items[i].size / total * areaTotal / stripW
			}
			out[i] = rect{X: area.X, Y: y, W: stripW, H: h}
			y += h
		}
		return
	}

	stripH := 0.0
	if area.W > 0 {
		stripH = runArea / area.W
	}
	x := area.X
	for i := start; i < end; i++ {
		w := 0.0
		if runArea > 0 {
			w = items[i].size / total * areaTotal / stripH
		}
		out[i] = rect{X: x, Y: area.Y, W: w, H: stripH}
		x += w
	}
}

// shrink removes a strip of usedArea from the shorter side of area, leaving
// the remainder for subsequent runs.
func shrink(area rect, usedArea float64) rect {
	if area.W >= area.H {
		if area.H <= 0 {
			return area
		}
		stripW := usedArea / area.H
		return rect{X: area.X + stripW, Y: area.Y, W: area.W - stripW, H: area.H}
	}
	if area.W <= 0 {
		return area
	}
	stripH := usedArea / area.W
	return rect{X: area.X, Y: area.Y + stripH, W: area.W, H: area.H - stripH}
}

// resolveColor maps a node's DisplayResult to a concrete RGBA, falling back
// to the Unchanged/Changed/Added/Removed defaults when the display filter
// returned Normal (meaning "no override"): the default itself still varies
// by classification, matching visualize.rs's unchanged-gray/changed-yellow/
// added-blue/removed-red base palette.
func resolveColor(r diff.DisplayResult, node *diff.Tree) color.RGBA {
	if r.Decision == diff.CustomColor {
		return toRGBA(r.Color)
	}
	switch node.Context.Kind {
	case diff.KindChanged:
		return toRGBA(diffColorForKind(diff.KindChanged))
	case diff.KindAdded:
		return toRGBA(diffColorForKind(diff.KindAdded))
	case diff.KindRemoved:
		return toRGBA(diffColorForKind(diff.KindRemoved))
	default:
		return toRGBA(diffColorForKind(diff.KindUnchanged))
	}
}
