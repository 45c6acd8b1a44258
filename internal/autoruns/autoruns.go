// Package autoruns evaluates autostart persistence entries against a
// snapshot (and optionally a baseline snapshot) plus the cross-snapshot
// database, surfacing a short list of findings per entry so an analyst can
// triage which autoruns are worth a closer look.
package autoruns

import (
	"strings"

	"github.com/aticu/sniffdb/internal/autorunscsv"
	"github.com/aticu/sniffdb/internal/database"
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/snapshot"
)

// FindingKind discriminates the possible findings for one entry.
type FindingKind int

const (
	// MissingImagePath: the entry had no usable image path at all.
	MissingImagePath FindingKind = iota
	// MissingFile: the translated path resolves to nothing in a snapshot.
	MissingFile
	// EntryNotAFile: the translated path resolves to a non-file node.
	EntryNotAFile
	// FileChanged: the path resolved to a file on both sides, and they
	// differ.
	FileChanged
	// HashUnknown: the current file's content hash is not known to the
	// database from any other snapshot.
	HashUnknown
	// UnknownPath: the path is not a known autorun path in the database.
	UnknownPath
)

// Finding is one emitted result for an entry. IsMain and MD5 are only
// meaningful for the finding kinds that carry them (MissingFile, HashUnknown
// respectively).
type Finding struct {
	Kind   FindingKind
	IsMain bool
	MD5    [16]byte
}

// Verdict is the full set of findings for one autorun entry.
type Verdict struct {
	Entry    autorunscsv.Entry
	Findings []Finding
}

// TranslatePath converts a Windows-style autorun image path ("C:\Windows\
// System32\foo.exe") to the '/'-separated form used inside a snapshot tree,
// dropping a leading drive letter (case-insensitive) and converting
// backslashes to slashes.
func TranslatePath(winPath string) string {
	p := winPath
	if len(p) >= 2 && p[1] == ':' {
		p = p[2:]
	}
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimPrefix(p, "/")
}

// Evaluate runs the full rule chain for one entry against current (required)
// and baseline (optional, may be nil), consulting db (optional, may be nil)
// for the hash- and path-provenance checks.
func Evaluate(entry autorunscsv.Entry, current, baseline *snapshot.Root, db *database.DB) Verdict {
	v := Verdict{Entry: entry}

	if entry.ImagePath == nil {
		v.Findings = append(v.Findings, Finding{Kind: MissingImagePath})
		return v
	}

	path := TranslatePath(*entry.ImagePath)

	currentNode, currentOK := fstree.Lookup(current, path)
	switch {
	case !currentOK:
		v.Findings = append(v.Findings, Finding{Kind: MissingFile, IsMain: true})
	case currentNode.Entry.Kind != fstree.KindFile:
		v.Findings = append(v.Findings, Finding{Kind: EntryNotAFile})
	}

	var baselineNode *fstree.MetaNode[struct{}]
	var baselineOK bool
	if baseline != nil {
		baselineNode, baselineOK = fstree.Lookup(baseline, path)
		switch {
		case !baselineOK:
			v.Findings = append(v.Findings, Finding{Kind: MissingFile, IsMain: false})
		case baselineNode.Entry.Kind != fstree.KindFile:
			v.Findings = append(v.Findings, Finding{Kind: EntryNotAFile})
		}

		if currentOK && baselineOK && currentNode.Entry.Kind == fstree.KindFile && baselineNode.Entry.Kind == fstree.KindFile {
			if !fstree.Equal(currentNode, baselineNode) {
				v.Findings = append(v.Findings, Finding{Kind: FileChanged})
			}
		}
	}

	if currentOK && currentNode.Entry.Kind == fstree.KindFile && db != nil {
		known, err := db.FileIsKnown(currentNode.Entry.File)
		if err == nil && !known {
			v.Findings = append(v.Findings, Finding{Kind: HashUnknown, MD5: currentNode.Entry.File.MD5})
		}
	}

	if db != nil {
		isKnown, err := db.IsKnownAutorunPath(path)
		if err == nil && !isKnown {
			v.Findings = append(v.Findings, Finding{Kind: UnknownPath})
		}
	}

	return v
}

// ShouldDisplay applies the display-gating rule: an entry is worth printing
// if its signer is anything other than Verified, or its finding set is
// non-empty and not exactly the singleton UnknownPath finding (a known-good
// file at a new path is assumed benign). When ignoreUnknownHashes is true, a
// HashUnknown finding is stripped before the emptiness check, so an entry
// whose only finding was HashUnknown is also treated as benign.
func ShouldDisplay(v Verdict, ignoreUnknownHashes bool) bool {
	if v.Entry.SignerVerification != autorunscsv.SignerVerified {
		return true
	}

	findings := v.Findings
	if ignoreUnknownHashes {
		filtered := findings[:0:0]
		for _, f := range findings {
			if f.Kind != HashUnknown {
				filtered = append(filtered, f)
			}
		}
		findings = filtered
	}

	if len(findings) == 0 {
		return false
	}
	if len(findings) == 1 && findings[0].Kind == UnknownPath {
		return false
	}
	return true
}
