package main

import (
	"fmt"
	"os"

	"github.com/aticu/sniffdb/internal/autoruns"
	"github.com/aticu/sniffdb/internal/autorunscsv"
	"github.com/aticu/sniffdb/internal/database"
	"github.com/aticu/sniffdb/internal/snapshot"
	"github.com/spf13/cobra"
)

type analyzeAutorunsOptions struct {
	database            string
	ignoreUnknownHashes bool
}

func newAnalyzeAutorunsCmd() *cobra.Command {
	opts := &analyzeAutorunsOptions{}

	cmd := &cobra.Command{
		Use:   "analyze-autoruns <snapshot> [<baseline-snapshot>] --database <path>",
		Short: "Score every autoruns entry in a snapshot against a baseline and the database",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			baseline := ""
			if len(args) == 2 {
				baseline = args[1]
			}
			return runAnalyzeAutoruns(args[0], baseline, opts)
		},
	}

	cmd.Flags().StringVar(&opts.database, "database", "", "path to the cross-snapshot database")
	cmd.Flags().BoolVar(&opts.ignoreUnknownHashes, "ignore-unknown-hashes", false, "suppress entries whose only finding is an unrecognized content hash")
	_ = cmd.MarkFlagRequired("database")

	return cmd
}

func runAnalyzeAutoruns(suspectPath, baselinePath string, opts *analyzeAutorunsOptions) error {
	suspect, err := snapshot.Read(suspectPath)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if suspect.Autoruns == nil {
		return fmt.Errorf("%s carries no autoruns data", suspectPath)
	}

	var baseline *snapshot.Root
	if baselinePath != "" {
		base, err := snapshot.Read(baselinePath)
		if err != nil {
			return fmt.Errorf("reading baseline snapshot: %w", err)
		}
		baseline = base.Root
	}

	db, err := database.Open(opts.database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	var shown int
	for _, entry := range suspect.Autoruns.Entries {
		verdict := autoruns.Evaluate(entry, suspect.Root, baseline, db)
		if !autoruns.ShouldDisplay(verdict, opts.ignoreUnknownHashes) {
			continue
		}
		shown++
		printVerdict(verdict)
	}

	fmt.Fprintf(os.Stdout, "%d of %d autoruns entries flagged\n", shown, len(suspect.Autoruns.Entries))
	return nil
}

func printVerdict(v autoruns.Verdict) {
	imagePath := "(none)"
	if v.Entry.ImagePath != nil {
		imagePath = *v.Entry.ImagePath
	}
	fmt.Fprintf(os.Stdout, "%s [%s] signer=%s\n", v.Entry.Name, imagePath, signerString(v.Entry.SignerVerification))
	for _, f := range v.Findings {
		fmt.Fprintf(os.Stdout, "  - %s\n", findingString(f))
	}
}

func signerString(sv autorunscsv.SignerVerification) string {
	switch sv {
	case autorunscsv.SignerVerified:
		return "verified"
	case autorunscsv.SignerNotVerified:
		return "not verified"
	case autorunscsv.SignerOther:
		return "other"
	default:
		return "unknown"
	}
}

func findingString(f autoruns.Finding) string {
	switch f.Kind {
	case autoruns.MissingImagePath:
		return "missing image path"
	case autoruns.MissingFile:
		if f.IsMain {
			return "file missing from suspect snapshot"
		}
		return "file missing from baseline snapshot"
	case autoruns.EntryNotAFile:
		return "path resolves to a non-file entry"
	case autoruns.FileChanged:
		return "file differs between suspect and baseline"
	case autoruns.HashUnknown:
		return fmt.Sprintf("content hash unknown to database (md5=%x)", f.MD5)
	case autoruns.UnknownPath:
		return "path not previously seen as an autorun"
	default:
		return "unknown finding"
	}
}
