// Command sniffdb is the forensic-triage CLI: it scans filesystems (or
// mounted virtual disk images) into versioned snapshot files, diffs two
// snapshots against each other, maintains a cross-snapshot database of
// file/path/autorun provenance, and evaluates autoruns entries against
// that database.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "sniffdb",
		Short:   "Snapshot, diff, and triage filesystem changes for forensic analysis",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newCreateSnapshotCmd())
	root.AddCommand(newLsCmd())
	root.AddCommand(newUpdateSnapshotsCmd())
	root.AddCommand(newInsertIntoDatabaseCmd())
	root.AddCommand(newAnalyzeAutorunsCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
