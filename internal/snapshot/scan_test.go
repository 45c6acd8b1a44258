package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aticu/sniffdb/internal/fstree"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanBuildsTreeShape(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), "hi")
	writeFile(t, filepath.Join(root, "b/c"), "hi")

	snap, err := Scan(root, Source{Kind: SourceDirectory, Path: root}, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if _, ok := fstree.Lookup(snap.Root, "a"); !ok {
		t.Error("expected a to be present")
	}
	node, ok := fstree.Lookup(snap.Root, "b/c")
	if !ok {
		t.Fatal("expected b/c to be present")
	}
	if node.Entry.Kind != fstree.KindFile {
		t.Errorf("b/c kind = %v, want file", node.Entry.Kind)
	}
	if node.Entry.File.SHA256 == [32]byte{} {
		t.Error("expected a non-zero content hash")
	}
}

func TestScanTwiceSameRootYieldsEqualTrees(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), "hi")
	writeFile(t, filepath.Join(root, "b/c"), "hi")

	s1, err := Scan(root, Source{Kind: SourceDirectory, Path: root}, Options{})
	if err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	s2, err := Scan(root, Source{Kind: SourceDirectory, Path: root}, Options{})
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}

	if !fstree.Equal(s1.Root, s2.Root) {
		t.Error("expected two scans of an unchanged root to produce equal trees")
	}
}

func TestScanExcludesSniffSubtree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), "hi")
	writeFile(t, filepath.Join(root, "sniff/version"), "10.0.19041\n")

	snap, err := Scan(root, Source{Kind: SourceDirectory, Path: root}, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if _, ok := fstree.Lookup(snap.Root, "sniff"); ok {
		t.Error("expected sniff/ to be excluded from the tree")
	}
	if snap.OSVersion == nil || *snap.OSVersion != "10.0.19041" {
		t.Errorf("OSVersion = %v, want 10.0.19041", snap.OSVersion)
	}
}

func TestScanSymlinkRewrittenRootRelative(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "target.txt"), "hi")
	if err := os.Symlink(filepath.Join(root, "target.txt"), filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}

	snap, err := Scan(root, Source{Kind: SourceDirectory, Path: root}, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	node, ok := fstree.Lookup(snap.Root, "link")
	if !ok {
		t.Fatal("expected link to be present")
	}
	if node.Entry.Kind != fstree.KindSymlink {
		t.Fatalf("kind = %v, want symlink", node.Entry.Kind)
	}
	if node.Entry.Symlink.Target != "target.txt" {
		t.Errorf("Target = %q, want root-relative %q", node.Entry.Symlink.Target, "target.txt")
	}
}
