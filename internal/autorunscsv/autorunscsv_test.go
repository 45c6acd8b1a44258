package autorunscsv

import (
	"bytes"
	"testing"

	"golang.org/x/text/encoding/unicode"

	"github.com/aticu/sniffdb/internal/timestamp"
)

func encodeUTF16LE(t *testing.T, s string) []byte {
	t.Helper()
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	b, err := enc.Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encoding test fixture: %v", err)
	}
	return b
}

func TestParseBasicEntry(t *testing.T) {
	csv := "Entry,Description,Signer,Image Path,Time,Category,Entry Location,Profile,Company,Version,Launch String\r\n" +
		"foo,Foo service,(Verified) Microsoft Corporation,C:\\Windows\\System32\\foo.exe,01/02/2020 03:04,Boot execute,HKLM,System,Microsoft,1.0,foo.exe\r\n"

	a, err := Parse(bytes.NewReader(encodeUTF16LE(t, csv)), timestamp.Timestamp{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(a.Entries))
	}
	e := a.Entries[0]
	if e.Name != "foo" || e.SignerName != "Microsoft Corporation" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.SignerVerification != SignerVerified {
		t.Errorf("SignerVerification = %v, want SignerVerified", e.SignerVerification)
	}
	if e.ImagePath == nil || *e.ImagePath != `C:\Windows\System32\foo.exe` {
		t.Errorf("ImagePath = %v", e.ImagePath)
	}
	if e.Time == nil {
		t.Error("expected a parsed time")
	}
}

func TestParseMissingFileImagePath(t *testing.T) {
	csv := "Entry,Description,Signer,Image Path,Time,Category,Entry Location,Profile,Company,Version,Launch String\r\n" +
		"foo,Foo,(Not verified) ,File not found: c:\\missing.exe,01/02/2020 03:04,Boot,HKLM,System,,,\r\n"

	a, err := Parse(bytes.NewReader(encodeUTF16LE(t, csv)), timestamp.Timestamp{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(a.Entries))
	}
	if a.Entries[0].ImagePath != nil {
		t.Errorf("ImagePath = %v, want nil", a.Entries[0].ImagePath)
	}
	if a.Entries[0].SignerVerification != SignerNotVerified {
		t.Errorf("SignerVerification = %v, want SignerNotVerified", a.Entries[0].SignerVerification)
	}
}

func TestParseMissingRequiredColumnFails(t *testing.T) {
	csv := "Entry,Description\r\nfoo,bar\r\n"
	if _, err := Parse(bytes.NewReader(encodeUTF16LE(t, csv)), timestamp.Timestamp{}); err == nil {
		t.Fatal("expected error for missing required columns")
	}
}
