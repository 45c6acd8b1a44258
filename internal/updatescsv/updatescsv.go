// Package updatescsv parses the UTF-8 Windows Update history export into
// typed records. Restored from original_source/src/updates.rs, which the
// distilled specification dropped but nothing in its Non-goals excludes.
package updatescsv

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/aticu/sniffdb/internal/timestamp"
)

// Update is one row of an updates.csv export. Every field is a string
// except InstallDate, matching the original's narrow "carry everything,
// interpret nothing" role: the value is provenance, not something this
// system reasons about.
type Update struct {
	Title             string
	Description       string
	KBNumber          string
	InstallDate       *timestamp.Timestamp
	UpdateOperation   string
	OperationResult   string
	InformationURL    string
	SupportURL        string
	UninstallNotes    string
	Category          string
	ClientApplicationID string
	ServiceID         string
	UpdateID          string
	RevisionNumber    string
	UnmappedResultCode string
	ServerSelection   string
	HResult           string
}

// Updates is the full parsed export plus the time it was recorded.
type Updates struct {
	Entries       []Update
	RecordingTime timestamp.Timestamp
}

var requiredColumns = []string{
	"Title", "Description", "KB Number", "Install Date", "Update Operation",
	"Operation Result", "Information URL", "Support URL", "Uninstall Notes",
	"Category", "Client Application ID", "Service ID", "Update ID",
	"Revision Number", "Unmapped Result Code", "Server Selection", "hResult",
}

// Parse reads a UTF-8 updates.csv export from r.
func Parse(r io.Reader, recordingTime timestamp.Timestamp) (Updates, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Updates{}, fmt.Errorf("reading updates.csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return Updates{}, fmt.Errorf("updates.csv missing required column %q", col)
		}
	}

	var out Updates
	out.RecordingTime = recordingTime

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		u, ok := parseRow(row, idx)
		if !ok {
			continue
		}
		out.Entries = append(out.Entries, u)
	}

	return out, nil
}

func cell(row []string, idx map[string]int, name string) (string, bool) {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return "", false
	}
	return row[i], true
}

func parseRow(row []string, idx map[string]int) (Update, bool) {
	var u Update
	var ok bool

	fields := []struct {
		name string
		dst  *string
	}{
		{"Title", &u.Title},
		{"Description", &u.Description},
		{"KB Number", &u.KBNumber},
		{"Update Operation", &u.UpdateOperation},
		{"Operation Result", &u.OperationResult},
		{"Information URL", &u.InformationURL},
		{"Support URL", &u.SupportURL},
		{"Uninstall Notes", &u.UninstallNotes},
		{"Category", &u.Category},
		{"Client Application ID", &u.ClientApplicationID},
		{"Service ID", &u.ServiceID},
		{"Update ID", &u.UpdateID},
		{"Revision Number", &u.RevisionNumber},
		{"Unmapped Result Code", &u.UnmappedResultCode},
		{"Server Selection", &u.ServerSelection},
		{"hResult", &u.HResult},
	}
	for _, f := range fields {
		*f.dst, ok = cell(row, idx, f.name)
		if !ok {
			return Update{}, false
		}
	}

	installDate, ok := cell(row, idx, "Install Date")
	if !ok {
		return Update{}, false
	}
	if t, err := timestamp.ParseLayout(installDate, "02/01/2006 15:04:05"); err == nil {
		u.InstallDate = &t
	}

	return u, true
}
