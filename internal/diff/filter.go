package diff

import (
	"strings"

	"github.com/aticu/sniffdb/internal/database"
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/timestamp"
)

// FilterContext is what a Filter predicate is evaluated against: the
// node's name, the node itself, and (optionally) a database connection for
// predicates that need cross-snapshot provenance.
type FilterContext struct {
	Name string
	Node *Tree
	DB   *database.DB
}

// Filter is a predicate over a diff node. Filters are combined with And,
// which short-circuits left to right — callers should order cheap
// predicates first.
type Filter func(FilterContext) bool

// And combines filters into a conjunction; an empty list always matches.
func And(filters ...Filter) Filter {
	return func(ctx FilterContext) bool {
		for _, f := range filters {
			if !f(ctx) {
				return false
			}
		}
		return true
	}
}

// TimestampRange matches nodes whose relevant timestamp falls within
// [from, to]. When contentChangeOnly is true, only Changed nodes are
// evaluated against their new content's Modified timestamp (others always
// match); otherwise the node's own Modified timestamp is used whenever
// present.
func TimestampRange(from, to timestamp.Timestamp, contentChangeOnly bool) Filter {
	return func(ctx FilterContext) bool {
		n := ctx.Node
		if contentChangeOnly {
			if n.Context.Kind != KindChanged || n.Context.To == nil {
				return true
			}
			m := n.Context.To.Metadata.Modified
			if m == nil {
				return true
			}
			return !m.Before(from) && !m.After(to)
		}
		if n.Metadata.Modified == nil {
			return true
		}
		return !n.Metadata.Modified.Before(from) && !n.Metadata.Modified.After(to)
	}
}

// ChangesOnly matches nodes whose classification is Added, Removed, or
// Changed; when includeMetadataChanges is true, Unchanged/ChildrenChanged
// nodes carrying a non-nil MetaNew also match.
func ChangesOnly(includeMetadataChanges bool) Filter {
	return func(ctx FilterContext) bool {
		switch ctx.Node.Context.Kind {
		case KindAdded, KindRemoved, KindChanged:
			return true
		case KindUnchanged, KindChildrenChanged:
			return includeMetadataChanges && ctx.Node.Context.MetaNew != nil
		default:
			return false
		}
	}
}

// ExtensionAllowList matches only names whose extension (case-insensitive,
// without the dot) is in exts. Directories always match, since the filter
// applies to the files beneath them.
func ExtensionAllowList(exts []string) Filter {
	set := extSet(exts)
	return func(ctx FilterContext) bool {
		if ctx.Node.Entry.Kind == fstree.KindDirectory {
			return true
		}
		return set[extensionOf(ctx.Name)]
	}
}

// ExtensionDenyList matches names whose extension is NOT in exts.
func ExtensionDenyList(exts []string) Filter {
	set := extSet(exts)
	return func(ctx FilterContext) bool {
		if ctx.Node.Entry.Kind == fstree.KindDirectory {
			return true
		}
		return !set[extensionOf(ctx.Name)]
	}
}

func extSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return set
}

func extensionOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// NameSubstring matches nodes whose name contains substr, case-insensitive.
func NameSubstring(substr string) Filter {
	lower := strings.ToLower(substr)
	return func(ctx FilterContext) bool {
		return strings.Contains(strings.ToLower(ctx.Name), lower)
	}
}

// UnknownFileOnly matches regular files whose content hash the database
// does not recognize from any other snapshot. Non-file nodes always match
// (the filter is meant to be composed with ChangesOnly, not to gate
// directories out of a tree walk).
func UnknownFileOnly() Filter {
	return func(ctx FilterContext) bool {
		if ctx.Node.Entry.Kind != fstree.KindFile || ctx.DB == nil {
			return true
		}
		known, err := ctx.DB.FileIsKnown(ctx.Node.Entry.File)
		if err != nil {
			return true
		}
		return !known
	}
}
