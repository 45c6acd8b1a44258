package snapshot

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aticu/sniffdb/internal/filecontent"
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/metadata"
	"github.com/aticu/sniffdb/internal/timestamp"
)

// Version 1 of the on-disk format stored a non-optional Metadata shape (no
// pointers — an unknown timestamp was the zero Timestamp, not an absent
// optional) and carried no UNIX fields at all (UnixPerms/UID/GID/Nlink/Inode
// did not exist yet). This file owns the v1 shape and the lift into the
// current (v2) Snapshot; it must never be deleted, even once nothing writes
// v1 anymore, per the "do not remove old readers" design note.

type metadataV1 struct {
	Size uint64

	Created     timestamp.Timestamp
	Modified    timestamp.Timestamp
	Accessed    timestamp.Timestamp
	MFTModified timestamp.Timestamp
	NtfsAttrs   uint32

	ReparseData []byte
	ACL         []byte
	DosName     []byte
	ObjectID    []byte
	EFSInfo     []byte
	EA          []byte
	Streams     map[string][]byte
}

type treeNodeV1 struct {
	Kind fstree.Kind

	File     filecontent.FileContent
	Symlink  fstree.SymlinkContent
	Children map[string]*metaNodeV1
	Other    fstree.OtherKind
}

type metaNodeV1 struct {
	Entry    treeNodeV1
	Metadata metadataV1
}

type snapshotV1 struct {
	Root      *metaNodeV1
	Source    Source
	Timestamp timestamp.Timestamp
	OSVersion *string
}

func decodeV1(body []byte) (Snapshot, error) {
	var v1 snapshotV1
	dec := msgpack.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&v1); err != nil {
		return Snapshot{}, fmt.Errorf("decoding v1 snapshot body: %w", err)
	}
	if b, _ := io.ReadAll(dec.Buffered()); len(b) > 0 {
		return Snapshot{}, fmt.Errorf("%w: trailing bytes after v1 snapshot body", ErrBadFormat)
	}

	return Snapshot{
		Root:      migrateNodeV1(v1.Root),
		Source:    v1.Source,
		Timestamp: v1.Timestamp,
		OSVersion: v1.OSVersion,
	}, nil
}

// migrateNodeV1 lifts a v1 node into the current shape: every v1 scalar
// metadata field becomes a populated optional (since v1 never recorded
// "field acquisition failed", only "value unknown" via the zero value —
// which is itself indistinguishable from a legitimately-zero value, so the
// migration conservatively treats every v1 field as present), and every
// UNIX-only field is left absent.
func migrateNodeV1(n *metaNodeV1) *Root {
	if n == nil {
		return nil
	}

	out := &Root{
		Metadata: migrateMetadataV1(n.Metadata),
	}

	switch n.Entry.Kind {
	case fstree.KindDirectory:
		children := make(map[string]*Root, len(n.Entry.Children))
		for name, child := range n.Entry.Children {
			children[name] = migrateNodeV1(child)
		}
		out.Entry = fstree.TreeNode[struct{}]{Kind: fstree.KindDirectory, Children: children}
	case fstree.KindFile:
		out.Entry = fstree.TreeNode[struct{}]{Kind: fstree.KindFile, File: n.Entry.File}
	case fstree.KindSymlink:
		out.Entry = fstree.TreeNode[struct{}]{Kind: fstree.KindSymlink, Symlink: n.Entry.Symlink}
	case fstree.KindOther:
		out.Entry = fstree.TreeNode[struct{}]{Kind: fstree.KindOther, Other: n.Entry.Other}
	}

	return out
}

func migrateMetadataV1(m metadataV1) metadata.Metadata {
	created, modified, accessed, mftModified := m.Created, m.Modified, m.Accessed, m.MFTModified
	attrs := metadata.NtfsAttributes(m.NtfsAttrs)

	out := metadata.Metadata{
		Size:        m.Size,
		Created:     &created,
		Modified:    &modified,
		Accessed:    &accessed,
		MFTModified: &mftModified,
		NtfsAttrs:   &attrs,
		ReparseData: m.ReparseData,
		ACL:         m.ACL,
		DosName:     m.DosName,
		ObjectID:    m.ObjectID,
		EFSInfo:     m.EFSInfo,
		EA:          m.EA,
	}
	if m.Streams != nil {
		out.Streams = &metadata.AlternateDataStreams{Streams: m.Streams}
	}
	return out
}
