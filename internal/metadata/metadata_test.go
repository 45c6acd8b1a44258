package metadata

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromPathRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := FromPath(path)
	if err != nil {
		t.Fatalf("FromPath: %v", err)
	}

	if m.Size != 5 {
		t.Errorf("Size = %d, want 5", m.Size)
	}
	if m.UnixPerms == nil {
		t.Error("expected UnixPerms to be populated on a local filesystem")
	}
	if m.Nlink == nil || *m.Nlink != 1 {
		t.Errorf("Nlink = %v, want 1", m.Nlink)
	}
	// A plain tmpfs/ext4 file carries no NTFS attributes.
	if m.NtfsAttrs != nil {
		t.Error("did not expect NtfsAttrs on a non-NTFS filesystem")
	}
}

func TestMeaningless(t *testing.T) {
	m := Meaningless()
	if m.Size != 0 || m.Created != nil || m.UnixPerms != nil {
		t.Error("expected a Meaningless Metadata to be entirely zero-valued")
	}
}

func TestAlternateDataStreamsStreamNames(t *testing.T) {
	a := AlternateDataStreams{Streams: map[string][]byte{
		"zone.identifier": nil,
		"afp_resource":    []byte{1, 2, 3},
	}}
	names := a.StreamNames()
	if len(names) != 2 || names[0] != "afp_resource" || names[1] != "zone.identifier" {
		t.Errorf("StreamNames() = %v, want sorted [afp_resource zone.identifier]", names)
	}
}

func TestNtfsAttributeBits(t *testing.T) {
	a := AttrReadonly | AttrHidden | AttrDirectory
	if a&AttrReadonly == 0 || a&AttrHidden == 0 || a&AttrDirectory == 0 {
		t.Errorf("combined flags %#x missing expected bits", a)
	}
	if a&AttrEncrypted != 0 {
		t.Errorf("combined flags %#x unexpectedly has AttrEncrypted set", a)
	}
}

func TestBigEndianHelpers(t *testing.T) {
	if got := beUint32([]byte{0x00, 0x00, 0x10, 0x00}); got != 0x1000 {
		t.Errorf("beUint32 = %#x, want 0x1000", got)
	}
	if got := beInt64([]byte{0, 0, 0, 0, 0, 0, 0, 1}); got != 1 {
		t.Errorf("beInt64 = %d, want 1", got)
	}
}
