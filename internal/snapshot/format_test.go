package snapshot

import (
	"bytes"
	"compress/gzip"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/metadata"
	"github.com/aticu/sniffdb/internal/timestamp"
)

func sampleSnapshot() Snapshot {
	root := fstree.NewDirectory[struct{}]()
	fstree.Insert(root, fstree.SplitPath("a.txt"), &Root{
		Entry:    fstree.TreeNode[struct{}]{Kind: fstree.KindFile},
		Metadata: metadata.Metadata{Size: 5},
	})
	return Snapshot{
		Root:      root,
		Source:    Source{Kind: SourceDirectory, Path: "/tmp/scan-root"},
		Timestamp: timestamp.FromTime(timestamp.Now().ToTime()),
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.sniff")

	snap := sampleSnapshot()
	if err := Write(path, snap); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if !fstree.Equal(got.Root, snap.Root) {
		t.Error("round-tripped tree differs from original")
	}
	if got.Source != snap.Source {
		t.Errorf("Source = %+v, want %+v", got.Source, snap.Source)
	}
}

func TestReadBadMagic(t *testing.T) {
	var buf bytes.Buffer
	_ = msgpack.NewEncoder(&buf).EncodeString("nope!!")
	buf.WriteByte(2)

	if _, err := Decode(&buf); err == nil {
		t.Fatal("expected an error for bad magic")
	}
}

func TestReadUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	_ = msgpack.NewEncoder(&buf).EncodeString(magic)
	buf.WriteByte(99)
	gz := gzip.NewWriter(&buf)
	_ = gz.Close()

	if _, err := Decode(&buf); err == nil {
		t.Fatal("expected an error for unsupported version")
	}
}

func TestReadVersionZeroRejected(t *testing.T) {
	var buf bytes.Buffer
	_ = msgpack.NewEncoder(&buf).EncodeString(magic)
	buf.WriteByte(0)
	gz := gzip.NewWriter(&buf)
	_ = gz.Close()

	if _, err := Decode(&buf); err == nil {
		t.Fatal("expected version 0 to be rejected as obsolete")
	}
}

func TestMigrateV1ToV2(t *testing.T) {
	v1Root := &metaNodeV1{
		Entry: treeNodeV1{
			Kind: fstree.KindDirectory,
			Children: map[string]*metaNodeV1{
				"a.txt": {
					Entry:    treeNodeV1{Kind: fstree.KindFile},
					Metadata: metadataV1{Size: 7},
				},
			},
		},
	}
	v1 := snapshotV1{
		Root:      v1Root,
		Source:    Source{Kind: SourceDirectory, Path: "/tmp/legacy"},
		Timestamp: timestamp.Now(),
	}

	var body bytes.Buffer
	if err := msgpack.NewEncoder(&body).Encode(&v1); err != nil {
		t.Fatalf("encoding v1 body: %v", err)
	}

	got, err := decodeV1(body.Bytes())
	if err != nil {
		t.Fatalf("decodeV1: %v", err)
	}

	node, ok := fstree.Lookup(got.Root, "a.txt")
	if !ok {
		t.Fatal("expected a.txt to survive migration")
	}
	if node.Metadata.Size != 7 {
		t.Errorf("Size = %d, want 7", node.Metadata.Size)
	}
	if node.Metadata.UnixPerms != nil {
		t.Error("expected UNIX fields to be absent after v1 migration")
	}
	if node.Metadata.Created == nil {
		t.Error("expected Created to be lifted into a populated optional")
	}
}
