// Package autorunscsv parses the UTF-16LE CSV export produced by Microsoft's
// Autoruns tool into typed records. A row missing any required column is
// skipped rather than failing the whole parse, matching how forensic
// triage tooling tolerates partially-corrupt vendor exports.
package autorunscsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/aticu/sniffdb/internal/timestamp"
)

// SignerVerification is the Authenticode verification state Autoruns
// recorded for an entry's signer.
type SignerVerification int

const (
	SignerUnknown SignerVerification = iota
	SignerVerified
	SignerNotVerified
	SignerOther
)

// Entry is one row of an autoruns.csv export.
type Entry struct {
	Name        string
	Description string

	SignerName         string
	SignerVerification SignerVerification
	SignerOtherText    string // populated when SignerVerification == SignerOther

	ImagePath *string // nil when the image was reported missing or blank
	Time      *timestamp.Timestamp

	Category      string
	Location      string
	Profile       string
	Company       string
	Version       string
	LaunchString  string
}

// Autoruns is the full parsed export plus the time it was recorded.
type Autoruns struct {
	Entries       []Entry
	RecordingTime timestamp.Timestamp
}

var requiredColumns = []string{
	"Entry", "Description", "Signer", "Image Path", "Time",
	"Category", "Entry Location", "Profile", "Company", "Version", "Launch String",
}

// Parse reads a UTF-16LE-encoded autoruns.csv export from r, recording the
// given timestamp as the recording time for the resulting Autoruns value
// (the recording time is supplied by the caller, since Autoruns' own export
// carries no such field; snapshot.Scan uses the autoruns.csv file's own mtime).
func Parse(r io.Reader, recordingTime timestamp.Timestamp) (Autoruns, error) {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	utf8Reader := transform.NewReader(r, decoder)

	reader := csv.NewReader(utf8Reader)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Autoruns{}, fmt.Errorf("reading autoruns.csv header: %w", err)
	}
	columnIndex := indexColumns(header)

	for _, col := range requiredColumns {
		if _, ok := columnIndex[col]; !ok {
			return Autoruns{}, fmt.Errorf("autoruns.csv missing required column %q", col)
		}
	}

	var out Autoruns
	out.RecordingTime = recordingTime

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // a malformed row is dropped, not fatal
		}

		entry, ok := parseRow(row, columnIndex)
		if !ok {
			continue
		}
		out.Entries = append(out.Entries, entry)
	}

	return out, nil
}

func indexColumns(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

func cell(row []string, idx map[string]int, name string) (string, bool) {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return "", false
	}
	return row[i], true
}

func parseRow(row []string, idx map[string]int) (Entry, bool) {
	var e Entry
	var ok bool

	if e.Name, ok = cell(row, idx, "Entry"); !ok {
		return Entry{}, false
	}
	if e.Description, ok = cell(row, idx, "Description"); !ok {
		return Entry{}, false
	}
	signer, ok := cell(row, idx, "Signer")
	if !ok {
		return Entry{}, false
	}
	e.SignerVerification, e.SignerOtherText, e.SignerName = parseSigner(signer)

	imagePath, ok := cell(row, idx, "Image Path")
	if !ok {
		return Entry{}, false
	}
	e.ImagePath = parseImagePath(imagePath)

	timeCell, ok := cell(row, idx, "Time")
	if !ok {
		return Entry{}, false
	}
	if t, err := parseAutorunsTime(timeCell); err == nil {
		e.Time = &t
	}

	if e.Category, ok = cell(row, idx, "Category"); !ok {
		return Entry{}, false
	}
	if e.Location, ok = cell(row, idx, "Entry Location"); !ok {
		return Entry{}, false
	}
	if e.Profile, ok = cell(row, idx, "Profile"); !ok {
		return Entry{}, false
	}
	if e.Company, ok = cell(row, idx, "Company"); !ok {
		return Entry{}, false
	}
	if e.Version, ok = cell(row, idx, "Version"); !ok {
		return Entry{}, false
	}
	if e.LaunchString, ok = cell(row, idx, "Launch String"); !ok {
		return Entry{}, false
	}

	return e, true
}

// parseSigner splits a cell of the form "(Verified) Microsoft Corporation"
// into its verification state and signer name.
func parseSigner(cell string) (SignerVerification, string, string) {
	cell = strings.TrimSpace(cell)
	if !strings.HasPrefix(cell, "(") {
		return SignerUnknown, "", cell
	}
	closeParen := strings.Index(cell, ") ")
	name := ""
	switch {
	case closeParen >= 0:
		name = cell[closeParen+2:]
	case strings.HasSuffix(cell, ")"):
		// The trailing space after an empty signer name was trimmed above.
		closeParen = len(cell) - 1
	default:
		return SignerUnknown, "", cell
	}
	state := cell[1:closeParen]

	switch strings.ToLower(state) {
	case "verified":
		return SignerVerified, "", name
	case "not verified":
		return SignerNotVerified, "", name
	case "":
		return SignerUnknown, "", name
	default:
		return SignerOther, state, name
	}
}

func parseImagePath(cell string) *string {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.HasPrefix(cell, "File not found:") {
		return nil
	}
	return &cell
}

// parseAutorunsTime parses Autoruns' "DD/MM/YYYY HH:MM" export format in
// UTC.
func parseAutorunsTime(s string) (timestamp.Timestamp, error) {
	return timestamp.ParseLayout(s, "02/01/2006 15:04")
}
