package updatescsv

import (
	"strings"
	"testing"

	"github.com/aticu/sniffdb/internal/timestamp"
)

const header = "Title,Description,KB Number,Install Date,Update Operation,Operation Result," +
	"Information URL,Support URL,Uninstall Notes,Category,Client Application ID,Service ID," +
	"Update ID,Revision Number,Unmapped Result Code,Server Selection,hResult\n"

func TestParseWellFormedAndDroppedRow(t *testing.T) {
	good := "Security Update,Fixes stuff,KB123456,01/02/2020 03:04:05,Installation,Succeeded," +
		"http://info,http://support,,Security Updates,app1,svc1,upd1,1,0,3,0\n"
	// Missing the KB Number column value by truncating the row entirely.
	bad := "Another Update,Desc\n"

	csv := header + good + bad
	u, err := Parse(strings.NewReader(csv), timestamp.Timestamp{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(u.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(u.Entries))
	}
	if u.Entries[0].KBNumber != "KB123456" {
		t.Errorf("KBNumber = %q", u.Entries[0].KBNumber)
	}
	if u.Entries[0].InstallDate == nil {
		t.Error("expected a parsed InstallDate")
	}
}

func TestParseMissingRequiredColumnFailsWhole(t *testing.T) {
	if _, err := Parse(strings.NewReader("Title,Description\nfoo,bar\n"), timestamp.Timestamp{}); err == nil {
		t.Fatal("expected error for missing required columns")
	}
}
