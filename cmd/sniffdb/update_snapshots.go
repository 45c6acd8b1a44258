package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aticu/sniffdb/internal/snapshot"
	"github.com/spf13/cobra"
)

func newUpdateSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-snapshots <source-dir> <target-dir>",
		Short: "Batch-migrate legacy-version snapshot files to the current format",
		Long: `Reads every snapshot file in source-dir (migrating older versions via the
version-dispatched reader) and re-writes each one, unchanged in content, in
the current format under target-dir. A snapshot already on the current
version is decoded and re-written the same way as a legacy one.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runUpdateSnapshots(args[0], args[1])
		},
	}
	return cmd
}

func runUpdateSnapshots(sourceDir, targetDir string) error {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return fmt.Errorf("reading source directory: %w", err)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	var failures int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		srcPath := filepath.Join(sourceDir, entry.Name())
		snap, err := snapshot.Read(srcPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", srcPath, err)
			failures++
			continue
		}

		dstPath := filepath.Join(targetDir, entry.Name())
		if err := snapshot.Write(dstPath, snap); err != nil {
			fmt.Fprintf(os.Stderr, "writing %s: %v\n", dstPath, err)
			failures++
			continue
		}
		fmt.Fprintf(os.Stdout, "migrated %s -> %s\n", srcPath, dstPath)
	}

	if failures > 0 {
		return fmt.Errorf("%d snapshot(s) failed to migrate", failures)
	}
	return nil
}
