package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aticu/sniffdb/internal/database"
	"github.com/aticu/sniffdb/internal/snapshot"
	"github.com/spf13/cobra"
)

type insertIntoDatabaseOptions struct {
	database string
	comment  string
}

func newInsertIntoDatabaseCmd() *cobra.Command {
	opts := &insertIntoDatabaseOptions{}

	cmd := &cobra.Command{
		Use:   "insert-into-database <file-or-dir> --database <path> --comment <text>",
		Short: "Insert one or more existing snapshot files into the cross-snapshot database",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runInsertIntoDatabase(args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.database, "database", "", "path to the cross-snapshot database")
	cmd.Flags().StringVar(&opts.comment, "comment", "", "comment recorded alongside each inserted row")
	_ = cmd.MarkFlagRequired("database")

	return cmd
}

func runInsertIntoDatabase(target string, opts *insertIntoDatabaseOptions) error {
	paths, err := snapshotFilesUnder(target)
	if err != nil {
		return err
	}

	db, err := database.Open(opts.database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	for _, path := range paths {
		snap, err := snapshot.Read(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			continue
		}
		id, err := db.InsertSnapshot(&snap, opts.comment)
		if err != nil {
			return fmt.Errorf("inserting %s: %w", path, err)
		}
		fmt.Fprintf(os.Stdout, "inserted %s as snapshot id %d\n", path, id)
	}
	return nil
}

// snapshotFilesUnder returns target itself if it's a regular file, or every
// regular file directly inside it if it's a directory.
func snapshotFilesUnder(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", target, err)
	}
	if !info.IsDir() {
		return []string{target}, nil
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", target, err)
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() {
			out = append(out, filepath.Join(target, entry.Name()))
		}
	}
	return out, nil
}
