// Package snapshot ties the filesystem tree model, the scan orchestration,
// and the versioned on-disk container format together into the top-level
// Snapshot value the rest of the system operates on.
package snapshot

import (
	"github.com/aticu/sniffdb/internal/autorunscsv"
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/timestamp"
	"github.com/aticu/sniffdb/internal/updatescsv"
)

// SourceKind discriminates how a snapshot's filesystem was acquired.
type SourceKind int

const (
	SourceDirectory SourceKind = iota
	SourceVirtualImage
)

// Source records where a snapshot's filesystem came from.
type Source struct {
	Kind SourceKind
	Path string
}

// Root is the plain (non-diff) tree node type: a MetaNode carrying no
// per-node context.
type Root = fstree.MetaNode[struct{}]

// Snapshot is a complete, persisted view of a filesystem at a point in
// time.
type Snapshot struct {
	Root      *Root
	Source    Source
	Timestamp timestamp.Timestamp
	OSVersion *string

	Autoruns *autorunscsv.Autoruns
	Updates  *updatescsv.Updates
}
