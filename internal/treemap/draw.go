package treemap

import (
	"image"
	"image/color"

	"github.com/aticu/sniffdb/internal/diff"
	"github.com/aticu/sniffdb/internal/diffcolor"
)

// diffColorForKind returns the base palette color for a classification
// kind, before any display-filter override (unchanged-gray, changed-
// yellow, added-blue, removed-red).
func diffColorForKind(kind diff.Kind) diffcolor.Color {
	switch kind {
	case diff.KindChanged:
		return diffcolor.Changed
	case diff.KindAdded:
		return diffcolor.Added
	case diff.KindRemoved:
		return diffcolor.Removed
	default:
		return diffcolor.Unchanged
	}
}

// toRGBA resolves an abstract diffcolor.Color to a concrete pixel value.
func toRGBA(c diffcolor.Color) color.RGBA {
	switch c.Kind {
	case diffcolor.Gray:
		return color.RGBA{R: 0x90, G: 0x90, B: 0x90, A: 0xff}
	case diffcolor.Yellow:
		return color.RGBA{R: 0xd4, G: 0xac, B: 0x0d, A: 0xff}
	case diffcolor.Blue:
		return color.RGBA{R: 0x2e, G: 0x64, B: 0xfe, A: 0xff}
	case diffcolor.Red:
		return color.RGBA{R: 0xd1, G: 0x2b, B: 0x2b, A: 0xff}
	case diffcolor.Custom:
		return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
	default:
		return color.RGBA{R: 0x90, G: 0x90, B: 0x90, A: 0xff}
	}
}

// fillCell paints c's rectangle, a 1px darker border, and (if the cell is
// tall enough) its name label in the top-left corner.
func fillCell(img *image.RGBA, c cell) {
	x0, y0 := int(c.Rect.X), int(c.Rect.Y)
	x1, y1 := int(c.Rect.X+c.Rect.W), int(c.Rect.Y+c.Rect.H)
	if x1 <= x0 || y1 <= y0 {
		return
	}
	bounds := img.Bounds()
	if x1 > bounds.Max.X {
		x1 = bounds.Max.X
	}
	if y1 > bounds.Max.Y {
		y1 = bounds.Max.Y
	}

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetRGBA(x, y, c.Color)
		}
	}

	border := darken(c.Color)
	for x := x0; x < x1; x++ {
		img.SetRGBA(x, y0, border)
		img.SetRGBA(x, y1-1, border)
	}
	for y := y0; y < y1; y++ {
		img.SetRGBA(x0, y, border)
		img.SetRGBA(x1-1, y, border)
	}

	if y1-y0 >= minLabelH {
		drawLabel(img, c.Name, x0+2, y0+1, x1-1, toRGBA(diffcolor.Color{Kind: diffcolor.Custom, R: 0, G: 0, B: 0}))
	}
}

func darken(c color.RGBA) color.RGBA {
	shade := func(v uint8) uint8 {
		if v < 40 {
			return 0
		}
		return v - 40
	}
	return color.RGBA{R: shade(c.R), G: shade(c.G), B: shade(c.B), A: 0xff}
}

// drawLabel renders name starting at (x, y), clipped to maxX, using the 5x7
// bitmap font: each 5-pixel glyph advances the cursor by fontWidth (8)
// pixels, leaving a 3px gap between glyphs.
func drawLabel(img *image.RGBA, name string, x, y, maxX int, fg color.RGBA) {
	cursor := x
	for _, r := range name {
		if cursor+5 > maxX {
			break
		}
		g := glyph(r)
		for row := 0; row < 7; row++ {
			bits := g[row]
			for col := 0; col < 5; col++ {
				if bits&(1<<(4-col)) != 0 {
					img.SetRGBA(cursor+col, y+row, fg)
				}
			}
		}
		cursor += fontWidth
	}
}
