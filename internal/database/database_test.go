package database

import (
	"path/filepath"
	"testing"

	"github.com/aticu/sniffdb/internal/autorunscsv"
	"github.com/aticu/sniffdb/internal/filecontent"
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/metadata"
	"github.com/aticu/sniffdb/internal/snapshot"
	"github.com/aticu/sniffdb/internal/timestamp"
)

func sampleFile(b byte) filecontent.FileContent {
	var fc filecontent.FileContent
	fc.SHA256[0] = b
	fc.FirstBytes = []byte{b}
	fc.Entropy = 1
	return fc
}

func sampleSnapshot(version string, fileByte byte) *snapshot.Snapshot {
	leaf := &snapshot.Root{
		Entry:    fstree.TreeNode[struct{}]{Kind: fstree.KindFile, File: sampleFile(fileByte)},
		Metadata: metadata.Metadata{Size: 1},
	}
	root := &snapshot.Root{
		Entry: fstree.TreeNode[struct{}]{
			Kind:     fstree.KindDirectory,
			Children: map[string]*snapshot.Root{"a.txt": leaf},
		},
	}
	v := version
	return &snapshot.Snapshot{
		Root:      root,
		Source:    snapshot.Source{Kind: snapshot.SourceDirectory, Path: "/mnt"},
		Timestamp: timestamp.Now(),
		OSVersion: &v,
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertSnapshotIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	snap := sampleSnapshot("v1", 0x11)

	id1, err := db.InsertSnapshot(snap, "first")
	if err != nil {
		t.Fatalf("InsertSnapshot() failed: %v", err)
	}

	var recordCountBefore int
	if err := db.sql.QueryRow(`SELECT COUNT(*) FROM Records`).Scan(&recordCountBefore); err != nil {
		t.Fatalf("counting records: %v", err)
	}

	id2, err := db.InsertSnapshot(snap, "first")
	if err != nil {
		t.Fatalf("second InsertSnapshot() failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("re-insert returned id %d, want %d", id2, id1)
	}

	var recordCountAfter int
	if err := db.sql.QueryRow(`SELECT COUNT(*) FROM Records`).Scan(&recordCountAfter); err != nil {
		t.Fatalf("counting records: %v", err)
	}
	if recordCountAfter != recordCountBefore {
		t.Errorf("record count changed on re-insert: %d -> %d", recordCountBefore, recordCountAfter)
	}
}

func TestFileIsKnownExcludesCurrentSnapshots(t *testing.T) {
	db := openTestDB(t)
	old := sampleSnapshot("v1", 0x22)
	oldID, err := db.InsertSnapshot(old, "old")
	if err != nil {
		t.Fatalf("InsertSnapshot(old) failed: %v", err)
	}

	current := sampleSnapshot("v2", 0x22)
	currentID, err := db.InsertSnapshot(current, "current")
	if err != nil {
		t.Fatalf("InsertSnapshot(current) failed: %v", err)
	}

	known, err := db.FileIsKnown(sampleFile(0x22))
	if err != nil {
		t.Fatalf("FileIsKnown() failed: %v", err)
	}
	if !known {
		t.Fatalf("FileIsKnown() = false, want true (seen in %d)", oldID)
	}

	db.SetMainSnapshot(currentID)
	db.SetComparisonSnapshot(oldID) // both snapshots that hold the file are now excluded

	known, err = db.FileIsKnown(sampleFile(0x22))
	if err != nil {
		t.Fatalf("FileIsKnown() after SetMainSnapshot failed: %v", err)
	}
	if known {
		t.Errorf("FileIsKnown() = true after excluding both snapshots that have it")
	}
}

func TestFindPotentialRenameTargets(t *testing.T) {
	db := openTestDB(t)
	snap := sampleSnapshot("v1", 0x33)
	id, err := db.InsertSnapshot(snap, "")
	if err != nil {
		t.Fatalf("InsertSnapshot() failed: %v", err)
	}
	db.SetComparisonSnapshot(id)

	paths, err := db.FindPotentialRenameTargets(sampleFile(0x33))
	if err != nil {
		t.Fatalf("FindPotentialRenameTargets() failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "a.txt" {
		t.Errorf("FindPotentialRenameTargets() = %v, want [a.txt]", paths)
	}
}

func TestIsKnownAutorunPath(t *testing.T) {
	db := openTestDB(t)
	snap := sampleSnapshot("v1", 0x44)
	path := "a.txt"
	snap.Autoruns = &autorunscsv.Autoruns{
		Entries: []autorunscsv.Entry{{Name: "Startup", ImagePath: &path}},
	}
	if _, err := db.InsertSnapshot(snap, ""); err != nil {
		t.Fatalf("InsertSnapshot() failed: %v", err)
	}

	known, err := db.IsKnownAutorunPath("a.txt")
	if err != nil {
		t.Fatalf("IsKnownAutorunPath() failed: %v", err)
	}
	if !known {
		t.Errorf("IsKnownAutorunPath(%q) = false, want true", "a.txt")
	}

	known, err = db.IsKnownAutorunPath("A.TXT")
	if err != nil {
		t.Fatalf("IsKnownAutorunPath() failed: %v", err)
	}
	if !known {
		t.Errorf("IsKnownAutorunPath(%q) = false, want true via case-folded match", "A.TXT")
	}

	known, err = db.IsKnownAutorunPath("")
	if err != nil {
		t.Fatalf("IsKnownAutorunPath(\"\") failed: %v", err)
	}
	if known {
		t.Errorf("IsKnownAutorunPath(\"\") = true, want false")
	}
}
