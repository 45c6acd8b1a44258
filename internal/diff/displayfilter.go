package diff

import "github.com/aticu/sniffdb/internal/diffcolor"

// DisplayDecision is what a DisplayFilter returns for a node: render it
// normally, render it in a custom color, skip it, or skip it and every
// descendant regardless of what later filters would say.
type DisplayDecision int

const (
	Normal DisplayDecision = iota
	CustomColor
	Ignore
	HardIgnore
)

// DisplayResult pairs a decision with the color to use when the decision is
// CustomColor.
type DisplayResult struct {
	Decision DisplayDecision
	Color    diffcolor.Color
}

// DisplayFilter maps a diff node to a display decision, for the "ls"
// renderer and the tree-map visualizer.
type DisplayFilter func(FilterContext) DisplayResult

// ByClassification is the default display filter: colors nodes by their
// Classification.Kind and never hides anything.
func ByClassification() DisplayFilter {
	return func(ctx FilterContext) DisplayResult {
		switch ctx.Node.Context.Kind {
		case KindChanged:
			return DisplayResult{Decision: CustomColor, Color: diffcolor.Changed}
		case KindAdded:
			return DisplayResult{Decision: CustomColor, Color: diffcolor.Added}
		case KindRemoved:
			return DisplayResult{Decision: CustomColor, Color: diffcolor.Removed}
		default:
			return DisplayResult{Decision: Normal}
		}
	}
}

// HideUnchanged is a display filter that hides nodes with no change at all
// (neither content nor metadata), leaving ChildrenChanged directories
// visible so their changed descendants remain reachable.
func HideUnchanged() DisplayFilter {
	return func(ctx FilterContext) DisplayResult {
		c := ctx.Node.Context
		if c.Kind == KindUnchanged && c.MetaNew == nil {
			return DisplayResult{Decision: Ignore}
		}
		return DisplayResult{Decision: Normal}
	}
}

// ComposeDisplay applies filters in order and combines their decisions:
// a later Normal never overrides an earlier Ignore/CustomColor, but a later
// Ignore or CustomColor does override an earlier Normal or CustomColor.
// HardIgnore is sticky — once any filter returns it, it wins outright and
// no later filter is even consulted.
func ComposeDisplay(filters ...DisplayFilter) DisplayFilter {
	return func(ctx FilterContext) DisplayResult {
		result := DisplayResult{Decision: Normal}
		for _, f := range filters {
			r := f(ctx)
			if r.Decision == HardIgnore {
				return r
			}
			if r.Decision != Normal {
				result = r
			}
		}
		return result
	}
}
