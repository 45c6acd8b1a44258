package autoruns

import (
	"testing"

	"github.com/aticu/sniffdb/internal/autorunscsv"
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/metadata"
)

func fileNode(b byte) *fstree.MetaNode[struct{}] {
	var fc fstree.TreeNode[struct{}]
	fc.Kind = fstree.KindFile
	fc.File.FirstBytes = []byte{b}
	return &fstree.MetaNode[struct{}]{Entry: fc, Metadata: metadata.Metadata{Size: 1}}
}

func rootWith(name string, node *fstree.MetaNode[struct{}]) *fstree.MetaNode[struct{}] {
	return &fstree.MetaNode[struct{}]{
		Entry: fstree.TreeNode[struct{}]{
			Kind:     fstree.KindDirectory,
			Children: map[string]*fstree.MetaNode[struct{}]{name: node},
		},
	}
}

func TestTranslatePathDropsDriveLetterAndBackslashes(t *testing.T) {
	got := TranslatePath(`C:\Windows\System32\foo.exe`)
	want := "Windows/System32/foo.exe"
	if got != want {
		t.Errorf("TranslatePath() = %q, want %q", got, want)
	}
}

func TestEvaluateMissingImagePath(t *testing.T) {
	entry := autorunscsv.Entry{Name: "Startup"}
	v := Evaluate(entry, rootWith("x", fileNode(1)), nil, nil)
	if len(v.Findings) != 1 || v.Findings[0].Kind != MissingImagePath {
		t.Errorf("Evaluate() findings = %v, want [MissingImagePath]", v.Findings)
	}
}

func TestEvaluateMissingFileInCurrent(t *testing.T) {
	path := `C:\missing.exe`
	entry := autorunscsv.Entry{Name: "Startup", ImagePath: &path}
	v := Evaluate(entry, rootWith("present.exe", fileNode(1)), nil, nil)

	found := false
	for _, f := range v.Findings {
		if f.Kind == MissingFile && f.IsMain {
			found = true
		}
	}
	if !found {
		t.Errorf("Evaluate() findings = %v, want a main-side MissingFile", v.Findings)
	}
}

func TestEvaluateFileChangedBetweenSnapshots(t *testing.T) {
	path := `C:\foo.exe`
	entry := autorunscsv.Entry{Name: "Startup", ImagePath: &path}
	current := rootWith("foo.exe", fileNode(0xAA))
	baseline := rootWith("foo.exe", fileNode(0xBB))

	v := Evaluate(entry, current, baseline, nil)

	found := false
	for _, f := range v.Findings {
		if f.Kind == FileChanged {
			found = true
		}
	}
	if !found {
		t.Errorf("Evaluate() findings = %v, want FileChanged", v.Findings)
	}
}

func TestShouldDisplaySkipsVerifiedWithOnlyUnknownPath(t *testing.T) {
	v := Verdict{
		Entry:    autorunscsv.Entry{SignerVerification: autorunscsv.SignerVerified},
		Findings: []Finding{{Kind: UnknownPath}},
	}
	if ShouldDisplay(v, false) {
		t.Errorf("ShouldDisplay() = true, want false for verified signer + singleton UnknownPath")
	}
}

func TestShouldDisplayShowsUnverifiedEvenWithNoFindings(t *testing.T) {
	v := Verdict{Entry: autorunscsv.Entry{SignerVerification: autorunscsv.SignerNotVerified}}
	if !ShouldDisplay(v, false) {
		t.Errorf("ShouldDisplay() = false, want true for an unverified signer")
	}
}

func TestShouldDisplayIgnoreUnknownHashesSuppressesSoleFinding(t *testing.T) {
	v := Verdict{
		Entry:    autorunscsv.Entry{SignerVerification: autorunscsv.SignerVerified},
		Findings: []Finding{{Kind: HashUnknown}},
	}
	if ShouldDisplay(v, true) {
		t.Errorf("ShouldDisplay() = true, want false when HashUnknown is the sole, ignored finding")
	}
	if !ShouldDisplay(v, false) {
		t.Errorf("ShouldDisplay() = false, want true when HashUnknown is not ignored")
	}
}
