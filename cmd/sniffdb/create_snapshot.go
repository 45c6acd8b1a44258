package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aticu/sniffdb/internal/cache"
	"github.com/aticu/sniffdb/internal/database"
	"github.com/aticu/sniffdb/internal/snapshot"
	"github.com/aticu/sniffdb/internal/vdimount"
	"github.com/spf13/cobra"
)

type createSnapshotOptions struct {
	database   string
	comment    string
	workers    int
	noProgress bool
	cacheFile  string
}

func newCreateSnapshotCmd() *cobra.Command {
	opts := &createSnapshotOptions{workers: runtime.NumCPU()}

	cmd := &cobra.Command{
		Use:   "create-snapshot <source> <out-dir>",
		Short: "Snapshot a directory or virtual disk image into out-dir",
		Long: `Scans source (a directory, or a .vdi virtual disk image that is mounted
read-only first) and writes the resulting snapshot as a versioned binary
file under out-dir. With --database, the snapshot is also inserted into
the cross-snapshot database under --comment.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runCreateSnapshot(args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVar(&opts.database, "database", "", "path to the cross-snapshot database to also insert into")
	cmd.Flags().StringVar(&opts.comment, "comment", "", "comment recorded alongside the database row")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "number of parallel scan workers")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "disable progress output")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "path to the scan content cache (enables caching)")

	return cmd
}

func runCreateSnapshot(source, outDir string, opts *createSnapshotOptions) error {
	snap, err := scanSource(source, opts.workers, !opts.noProgress, opts.cacheFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	outPath := filepath.Join(outDir, snapshotFileName(source, snap))
	if err := snapshot.Write(outPath, snap); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", outPath)

	if opts.database != "" {
		db, err := database.Open(opts.database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close() //nolint:errcheck

		id, err := db.InsertSnapshot(&snap, opts.comment)
		if err != nil {
			return fmt.Errorf("inserting snapshot into database: %w", err)
		}
		fmt.Fprintf(os.Stdout, "inserted snapshot id %d into %s\n", id, opts.database)
	}

	return nil
}

// scanSource performs the scan, mounting source first via vdimount if it
// looks like a virtual disk image, and tags the resulting snapshot's Source
// accordingly.
func scanSource(source string, workers int, showProgress bool, cacheFile string) (snapshot.Snapshot, error) {
	scanCache, err := cache.Open(cacheFile)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("opening scan cache: %w", err)
	}
	defer scanCache.Close() //nolint:errcheck

	errCh := make(chan error, 100)
	go drainErrors(errCh)
	defer close(errCh)

	opts := snapshot.Options{
		Workers:      workers,
		ShowProgress: showProgress,
		Cache:        scanCache,
		ErrCh:        errCh,
	}

	if isVDIPath(source) {
		mount, err := vdimount.ExternalToolProvider{}.Mount(source)
		if err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("mounting virtual image: %w", err)
		}
		defer mount.Close() //nolint:errcheck

		return snapshot.Scan(mount.Path(), snapshot.Source{Kind: snapshot.SourceVirtualImage, Path: source}, opts)
	}

	return snapshot.Scan(source, snapshot.Source{Kind: snapshot.SourceDirectory, Path: source}, opts)
}

func snapshotFileName(source string, snap snapshot.Snapshot) string {
	base := filepath.Base(strings.TrimSuffix(source, string(filepath.Separator)))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "snapshot"
	}
	stamp := strings.NewReplacer(" ", "_", ":", "-").Replace(snap.Timestamp.String())
	return fmt.Sprintf("%s-%s.snap", base, stamp)
}
