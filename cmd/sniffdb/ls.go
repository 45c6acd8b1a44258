package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aticu/sniffdb/internal/database"
	"github.com/aticu/sniffdb/internal/diff"
	"github.com/aticu/sniffdb/internal/diffcolor"
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/metadata"
	"github.com/aticu/sniffdb/internal/snapshot"
	"github.com/aticu/sniffdb/internal/timestamp"
	"github.com/aticu/sniffdb/internal/treemap"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type lsOptions struct {
	compare           string
	before, after     string
	onlyChanges       bool
	showUnchanged     bool
	showKnown         bool
	summaryDepth      int
	raw               bool
	includeMetadata   bool
	showHashes        bool
	outputImage       string
	extensions        string
	ignoreExtensions  string
	sizeMetric        string
	grep              string
	database          string
}

func newLsCmd() *cobra.Command {
	opts := &lsOptions{showUnchanged: true}

	cmd := &cobra.Command{
		Use:   "ls <snapshot> [<entry>]",
		Short: "Display a snapshot, or its diff against --compare, as a filtered tree",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			entry := ""
			if len(args) == 2 {
				entry = args[1]
			}
			return runLs(args[0], entry, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.compare, "compare", "", "snapshot to diff against; omitted means show the snapshot alone")
	f.StringVar(&opts.before, "before", "", "only match nodes modified at or before this timestamp")
	f.StringVar(&opts.after, "after", "", "only match nodes modified at or after this timestamp")
	f.BoolVar(&opts.onlyChanges, "only-changes", false, "only display added, removed, or changed nodes")
	f.BoolVar(&opts.showUnchanged, "show-unchanged", true, "display nodes with no change at all")
	f.BoolVar(&opts.showKnown, "show-known", false, "also display files whose content is already known to --database")
	f.IntVar(&opts.summaryDepth, "summary-depth", -1, "collapse subtrees deeper than this into a one-line summary")
	f.BoolVar(&opts.raw, "raw", false, "print a flat list of added/removed paths instead of a tree")
	f.BoolVar(&opts.includeMetadata, "include-metadata", false, "also treat metadata-only deltas as changes")
	f.BoolVar(&opts.showHashes, "show-hashes", false, "print sha256/md5 next to file entries")
	f.StringVar(&opts.outputImage, "output-image", "", "render a tree-map PNG to this path instead of text")
	f.StringVar(&opts.extensions, "extensions", "", "comma-separated extension allow-list")
	f.StringVar(&opts.ignoreExtensions, "ignore-extensions", "", "comma-separated extension deny-list")
	f.StringVar(&opts.sizeMetric, "size-metric", "", "size metric used for tree-map weight (see diff.ParseSizeMetric)")
	f.StringVar(&opts.grep, "grep", "", "only match names containing this substring")
	f.StringVar(&opts.database, "database", "", "cross-snapshot database consulted for known-file/known-path annotations")

	return cmd
}

func runLs(mainPath, entryPath string, opts *lsOptions) error {
	main, err := snapshot.Read(mainPath)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	comparison := main
	if opts.compare != "" {
		comparison, err = snapshot.Read(opts.compare)
		if err != nil {
			return fmt.Errorf("reading comparison snapshot: %w", err)
		}
	}

	var db *database.DB
	if opts.database != "" {
		db, err = database.Open(opts.database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close() //nolint:errcheck
	}

	tree := diff.Compute(main.Root, comparison.Root)
	if entryPath != "" {
		scoped, ok := fstree.Lookup(tree, entryPath)
		if !ok {
			return fmt.Errorf("entry %q not found", entryPath)
		}
		tree = scoped
	}

	metric, ok := diff.ParseSizeMetric(opts.sizeMetric)
	if !ok {
		return fmt.Errorf("unknown --size-metric %q", opts.sizeMetric)
	}

	if opts.outputImage != "" {
		return renderTreeImage(tree, opts, metric)
	}

	if opts.raw {
		return printRawPaths(tree)
	}

	leafFilter, err := buildLeafFilter(opts, db)
	if err != nil {
		return err
	}

	included := map[string]bool{"": true}
	_ = fstree.Walk(tree, func(path string, node *diff.Tree) error {
		if path == "" {
			return nil
		}
		if leafFilter(diff.FilterContext{Name: leafName(path), Node: node, DB: db}) {
			markAncestors(included, path)
		}
		return nil
	})

	printer := &lsPrinter{opts: opts, db: db, included: included}
	printer.print(tree, "", 0)
	return nil
}

func leafName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func markAncestors(included map[string]bool, path string) {
	for {
		included[path] = true
		i := strings.LastIndexByte(path, '/')
		if i < 0 {
			return
		}
		path = path[:i]
	}
}

// buildLeafFilter assembles the per-node predicate chain from the CLI
// flags, ordering cheap string/extension checks before the database lookup.
func buildLeafFilter(opts *lsOptions, db *database.DB) (diff.Filter, error) {
	var filters []diff.Filter

	if exts := splitCSVFlag(opts.extensions); len(exts) > 0 {
		filters = append(filters, diff.ExtensionAllowList(exts))
	}
	if exts := splitCSVFlag(opts.ignoreExtensions); len(exts) > 0 {
		filters = append(filters, diff.ExtensionDenyList(exts))
	}
	if opts.grep != "" {
		filters = append(filters, diff.NameSubstring(opts.grep))
	}
	if opts.before != "" || opts.after != "" {
		from, to := timestamp.Timestamp{}, timestamp.Timestamp{Secs: 1 << 62}
		var err error
		if opts.after != "" {
			from, err = timestamp.Parse(opts.after)
			if err != nil {
				return nil, fmt.Errorf("parsing --after: %w", err)
			}
		}
		if opts.before != "" {
			to, err = timestamp.Parse(opts.before)
			if err != nil {
				return nil, fmt.Errorf("parsing --before: %w", err)
			}
		}
		filters = append(filters, diff.TimestampRange(from, to, false))
	}
	if opts.onlyChanges {
		filters = append(filters, diff.ChangesOnly(opts.includeMetadata))
	}
	if !opts.showUnchanged {
		filters = append(filters, notUnchanged)
	}
	if db != nil && !opts.showKnown {
		filters = append(filters, diff.UnknownFileOnly())
	}

	return diff.And(filters...), nil
}

func notUnchanged(ctx diff.FilterContext) bool {
	c := ctx.Node.Context
	return !(c.Kind == diff.KindUnchanged && c.MetaNew == nil)
}

// lsPrinter renders the diff tree as indented text, honoring the included
// path set (built from buildLeafFilter's prefix closure) and --summary-depth.
type lsPrinter struct {
	opts     *lsOptions
	db       *database.DB
	included map[string]bool
}

func (p *lsPrinter) print(node *diff.Tree, path string, depth int) {
	if path != "" {
		if !p.included[path] {
			return
		}
		p.printLine(node, path, depth)
	}

	if !node.IsDirectory() {
		return
	}

	if p.opts.summaryDepth >= 0 && depth >= p.opts.summaryDepth && path != "" {
		n := summaryCount(node)
		if n > 0 {
			fmt.Fprintf(os.Stdout, "%s... %d change(s) below\n", strings.Repeat("  ", depth+1), n)
		}
		return
	}

	for _, name := range node.SortedNames() {
		childPath := name
		if path != "" {
			childPath = path + "/" + name
		}
		p.print(node.Entry.Children[name], childPath, depth+1)
	}
}

func summaryCount(node *diff.Tree) uint64 {
	var total uint64
	_ = fstree.Walk(node, func(path string, n *diff.Tree) error {
		if path != "" {
			total += diff.Measure(n, diff.SizeNumberOfChanges)
		}
		return nil
	})
	return total
}

func (p *lsPrinter) printLine(node *diff.Tree, path string, depth int) {
	display := diff.ByClassification()
	result := display(diff.FilterContext{Name: leafName(path), Node: node, DB: p.db})

	indent := strings.Repeat("  ", depth)
	name := leafName(path)
	if node.IsDirectory() {
		name += "/"
	}

	line := indent + name
	if node.Entry.Kind == fstree.KindFile {
		line += fmt.Sprintf(" (%s)", humanize.Bytes(node.Metadata.Size))
	}
	if p.opts.showHashes && node.Entry.Kind == fstree.KindFile {
		line += fmt.Sprintf(" sha256=%x md5=%x", node.Entry.File.SHA256, node.Entry.File.MD5)
	}
	if p.opts.includeMetadata && node.Context.MetaNew != nil {
		line += " " + metadataDelta(node.Metadata, *node.Context.MetaNew)
	}
	if p.opts.showKnown && p.db != nil && node.Entry.Kind == fstree.KindFile {
		if occ, err := p.db.FileOccurrences(node.Entry.File); err == nil && len(occ) > 0 {
			line += " " + provenanceSummary(occ)
		}
	}

	fmt.Fprintln(os.Stdout, colorize(result, line))
}

// metadataDelta renders the size/modified-time deltas between oldMeta and
// newMeta; other metadata fields are forensic provenance, not summarized
// inline.
func metadataDelta(oldMeta, newMeta metadata.Metadata) string {
	var parts []string
	if oldMeta.Size != newMeta.Size {
		parts = append(parts, fmt.Sprintf("size %s->%s", humanize.Bytes(oldMeta.Size), humanize.Bytes(newMeta.Size)))
	}
	if oldMeta.Modified != nil && newMeta.Modified != nil && !(*oldMeta.Modified == *newMeta.Modified) {
		parts = append(parts, fmt.Sprintf("modified %s->%s", oldMeta.Modified.String(), newMeta.Modified.String()))
	}
	if len(parts) == 0 {
		return "(metadata changed)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func provenanceSummary(occ map[database.SnapshotRef][]string) string {
	refs := make([]string, 0, len(occ))
	for ref := range occ {
		refs = append(refs, ref.Date)
	}
	sort.Strings(refs)
	return fmt.Sprintf("(known, first seen %s)", refs[0])
}

func printRawPaths(tree *diff.Tree) error {
	paths := append(diff.Added(tree), diff.Removed(tree)...)
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintln(os.Stdout, p)
	}
	return nil
}

func renderTreeImage(tree *diff.Tree, opts *lsOptions, metric diff.SizeMetric) error {
	f, err := os.Create(opts.outputImage)
	if err != nil {
		return fmt.Errorf("creating image output: %w", err)
	}
	defer f.Close()

	if err := treemap.Render(f, tree, treemap.Options{Width: 1600, Height: 900, Metric: metric, Display: diff.ByClassification()}); err != nil {
		return fmt.Errorf("rendering tree-map: %w", err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", opts.outputImage)
	return nil
}

const ansiReset = "\033[0m"

func colorize(r diff.DisplayResult, line string) string {
	var code string
	switch r.Decision {
	case diff.CustomColor:
		code = ansiCode(r.Color)
	default:
		return line
	}
	if code == "" {
		return line
	}
	return code + line + ansiReset
}

func ansiCode(c diffcolor.Color) string {
	switch c.Kind {
	case diffcolor.Yellow:
		return "\033[33m"
	case diffcolor.Blue:
		return "\033[34m"
	case diffcolor.Red:
		return "\033[31m"
	case diffcolor.Gray:
		return "\033[90m"
	case diffcolor.Custom:
		return fmt.Sprintf("\033[38;2;%d;%d;%dm", c.R, c.G, c.B)
	default:
		return ""
	}
}
