// Package database implements the cross-snapshot SQLite index: every file
// ever seen (by content hash), every path it was seen at (raw and
// case-folded), which snapshot each occurrence belongs to, and the autorun
// entries ingested alongside. It answers the provenance and known-path
// queries the diff display and the autoruns evaluator need, driven by
// github.com/mattn/go-sqlite3.
package database

import (
	"database/sql"
	"fmt"

	"github.com/aticu/sniffdb/internal/casefold"
	"github.com/aticu/sniffdb/internal/filecontent"
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/snapshot"

	_ "github.com/mattn/go-sqlite3"
)

// schema is applied with CREATE TABLE/INDEX IF NOT EXISTS on every Open, so
// opening an existing database is a no-op beyond the session pragmas.
const schema = `
CREATE TABLE IF NOT EXISTS Snapshots (
	id      INTEGER PRIMARY KEY,
	date    TEXT NOT NULL,
	version TEXT,
	comment TEXT,
	UNIQUE(date, version)
);

CREATE TABLE IF NOT EXISTS Paths (
	id   INTEGER PRIMARY KEY,
	path BLOB NOT NULL,
	UNIQUE(path)
);

CREATE TABLE IF NOT EXISTS NormalizedPaths (
	id   INTEGER PRIMARY KEY,
	path TEXT NOT NULL,
	UNIQUE(path)
);

CREATE TABLE IF NOT EXISTS Files (
	id             INTEGER PRIMARY KEY,
	sha256         BLOB NOT NULL,
	md5            BLOB NOT NULL,
	size           INTEGER NOT NULL,
	first_bytes    BLOB NOT NULL,
	entropy        REAL NOT NULL,
	coff_header    BLOB,
	valid_utf8     INTEGER NOT NULL,
	valid_utf16be  INTEGER NOT NULL,
	valid_utf16le  INTEGER NOT NULL,
	valid_utf32be  INTEGER NOT NULL,
	valid_utf32le  INTEGER NOT NULL,
	UNIQUE(sha256, md5, size, first_bytes)
);
CREATE INDEX IF NOT EXISTS idx_files_sha256 ON Files(sha256);
CREATE INDEX IF NOT EXISTS idx_files_md5 ON Files(md5);

CREATE TABLE IF NOT EXISTS Records (
	id                 INTEGER PRIMARY KEY,
	snapshot_id        INTEGER NOT NULL REFERENCES Snapshots(id),
	path_id            INTEGER NOT NULL REFERENCES Paths(id),
	normalized_path_id INTEGER REFERENCES NormalizedPaths(id),
	file_id            INTEGER NOT NULL REFERENCES Files(id),
	UNIQUE(snapshot_id, path_id, file_id)
);
CREATE INDEX IF NOT EXISTS idx_records_normalized_path ON Records(normalized_path_id);
CREATE INDEX IF NOT EXISTS idx_records_file ON Records(file_id);

CREATE TABLE IF NOT EXISTS Autoruns (
	id                 INTEGER PRIMARY KEY,
	snapshot_id        INTEGER NOT NULL REFERENCES Snapshots(id),
	path_id            INTEGER NOT NULL REFERENCES Paths(id),
	normalized_path_id INTEGER REFERENCES NormalizedPaths(id),
	file_id            INTEGER REFERENCES Files(id),
	entry_name         TEXT NOT NULL,
	UNIQUE(snapshot_id, path_id)
);
CREATE INDEX IF NOT EXISTS idx_autoruns_normalized_path ON Autoruns(normalized_path_id);
`

// sessionPragmas reflect single-writer, crash-can-be-recovered-by-rebuild
// semantics: a crash mid-insert may leave the file corrupt, and re-ingest is
// the only recovery story.
const sessionPragmas = `
PRAGMA foreign_keys = ON;
PRAGMA journal_mode = OFF;
PRAGMA synchronous = OFF;
PRAGMA cache_size = -1000000;
PRAGMA locking_mode = EXCLUSIVE;
PRAGMA temp_store = MEMORY;
`

// DB is a single-owner connection to the cross-snapshot index. It is not
// safe to share across goroutines.
type DB struct {
	sql *sql.DB

	mainSnapshot       int64
	comparisonSnapshot int64
	haveMain           bool
	haveComparison     bool
}

// Open opens (creating if absent) the SQLite database at path, applies the
// schema, and sets the session pragmas.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := sqlDB.Exec(sessionPragmas); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting session pragmas: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &DB{sql: sqlDB}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.sql.Close() }

// SetMainSnapshot registers id as the "main" snapshot, excluded from
// provenance queries run by FileIsKnown.
func (db *DB) SetMainSnapshot(id int64) { db.mainSnapshot, db.haveMain = id, true }

// SetComparisonSnapshot registers id as the "comparison" snapshot, likewise
// excluded.
func (db *DB) SetComparisonSnapshot(id int64) { db.comparisonSnapshot, db.haveComparison = id, true }

func encBool(b bool) int {
	if b {
		return 1
	}
	return 0
}

// InsertSnapshot inserts snap (and, if present, its autoruns entries) under
// comment, inside a single transaction. Re-inserting an identical snapshot
// (same date/version, and whose Records row count already matches the
// snapshot's file count) is a no-op that returns the existing id.
func (db *DB) InsertSnapshot(snap *snapshot.Snapshot, comment string) (int64, error) {
	var version sql.NullString
	if snap.OSVersion != nil {
		version = sql.NullString{String: *snap.OSVersion, Valid: true}
	}
	date := snap.Timestamp.String()

	tx, err := db.sql.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	snapshotID, existed, err := upsertSnapshot(tx, date, version, comment)
	if err != nil {
		return 0, err
	}

	var nodeCount int
	_ = fstree.Walk(snap.Root, func(path string, node *snapshot.Root) error {
		if path != "" && node.Entry.Kind == fstree.KindFile {
			nodeCount++
		}
		return nil
	})

	if existed {
		var recordCount int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM Records WHERE snapshot_id = ?`, snapshotID).Scan(&recordCount); err != nil {
			return 0, fmt.Errorf("counting existing records: %w", err)
		}
		if recordCount == nodeCount {
			return snapshotID, tx.Commit()
		}
	}

	insertErr := fstree.Walk(snap.Root, func(path string, node *snapshot.Root) error {
		if path == "" || node.Entry.Kind == fstree.KindDirectory {
			return nil
		}
		pathID, normID, err := upsertPath(tx, path)
		if err != nil {
			return err
		}
		var fileID int64
		if node.Entry.Kind == fstree.KindFile {
			fileID, err = upsertFile(tx, node.Entry.File, node.Metadata.Size)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO Records(snapshot_id, path_id, normalized_path_id, file_id) VALUES (?, ?, ?, ?)`,
				snapshotID, pathID, normID, fileID,
			); err != nil {
				return fmt.Errorf("inserting record for %q: %w", path, err)
			}
		}
		return nil
	})
	if insertErr != nil {
		return 0, insertErr
	}

	if snap.Autoruns != nil {
		for _, entry := range snap.Autoruns.Entries {
			if entry.ImagePath == nil {
				continue
			}
			if err := insertAutorunEntry(tx, snapshotID, *entry.ImagePath, entry.Name, snap.Root); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing snapshot insert: %w", err)
	}
	return snapshotID, nil
}

func upsertSnapshot(tx *sql.Tx, date string, version sql.NullString, comment string) (id int64, existed bool, err error) {
	// Look up first: UNIQUE(date, version) never conflicts on a NULL version,
	// so INSERT OR IGNORE alone would add a duplicate row for such snapshots.
	err = tx.QueryRow(`SELECT id FROM Snapshots WHERE date = ? AND version IS ?`, date, version).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("looking up existing snapshot row: %w", err)
	}
	res, err := tx.Exec(`INSERT OR IGNORE INTO Snapshots(date, version, comment) VALUES (?, ?, ?)`, date, version, comment)
	if err != nil {
		return 0, false, fmt.Errorf("inserting snapshot row: %w", err)
	}
	id, err = res.LastInsertId()
	return id, false, err
}

func upsertPath(tx *sql.Tx, path string) (pathID int64, normID sql.NullInt64, err error) {
	raw := []byte(path)
	if _, err = tx.Exec(`INSERT OR IGNORE INTO Paths(path) VALUES (?)`, raw); err != nil {
		return 0, normID, fmt.Errorf("inserting path: %w", err)
	}
	if err = tx.QueryRow(`SELECT id FROM Paths WHERE path = ?`, raw).Scan(&pathID); err != nil {
		return 0, normID, fmt.Errorf("looking up path id: %w", err)
	}

	norm, ok := casefold.Fold(path)
	if !ok {
		return pathID, normID, nil
	}
	if _, err = tx.Exec(`INSERT OR IGNORE INTO NormalizedPaths(path) VALUES (?)`, norm); err != nil {
		return 0, normID, fmt.Errorf("inserting normalized path: %w", err)
	}
	var id int64
	if err = tx.QueryRow(`SELECT id FROM NormalizedPaths WHERE path = ?`, norm).Scan(&id); err != nil {
		return 0, normID, fmt.Errorf("looking up normalized path id: %w", err)
	}
	normID = sql.NullInt64{Int64: id, Valid: true}
	return pathID, normID, nil
}

func upsertFile(tx *sql.Tx, fc filecontent.FileContent, size uint64) (int64, error) {
	var coff any
	if fc.COFFHeader != nil {
		coff = fc.COFFHeader
	}
	_, err := tx.Exec(
		`INSERT OR IGNORE INTO Files(sha256, md5, size, first_bytes, entropy, coff_header,
			valid_utf8, valid_utf16be, valid_utf16le, valid_utf32be, valid_utf32le)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fc.SHA256[:], fc.MD5[:], size, fc.FirstBytes, fc.Entropy, coff,
		encBool(fc.Flags.Has(filecontent.UTF8)),
		encBool(fc.Flags.Has(filecontent.UTF16BE)),
		encBool(fc.Flags.Has(filecontent.UTF16LE)),
		encBool(fc.Flags.Has(filecontent.UTF32BE)),
		encBool(fc.Flags.Has(filecontent.UTF32LE)),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting file: %w", err)
	}
	var id int64
	err = tx.QueryRow(
		`SELECT id FROM Files WHERE sha256 = ? AND md5 = ? AND size = ? AND first_bytes = ?`,
		fc.SHA256[:], fc.MD5[:], size, fc.FirstBytes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("looking up file id: %w", err)
	}
	return id, nil
}

func insertAutorunEntry(tx *sql.Tx, snapshotID int64, imagePath, entryName string, root *snapshot.Root) error {
	pathID, normID, err := upsertPath(tx, imagePath)
	if err != nil {
		return err
	}

	var fileID sql.NullInt64
	if node, ok := fstree.Lookup(root, imagePath); ok && node.Entry.Kind == fstree.KindFile {
		id, err := upsertFile(tx, node.Entry.File, node.Metadata.Size)
		if err != nil {
			return err
		}
		fileID = sql.NullInt64{Int64: id, Valid: true}
	}

	_, err = tx.Exec(
		`INSERT OR IGNORE INTO Autoruns(snapshot_id, path_id, normalized_path_id, file_id, entry_name) VALUES (?, ?, ?, ?, ?)`,
		snapshotID, pathID, normID, fileID, entryName,
	)
	if err != nil {
		return fmt.Errorf("inserting autorun entry for %q: %w", imagePath, err)
	}
	return nil
}

// FileIsKnown reports whether fc's content hash appears in any Records row
// belonging to a snapshot other than the registered main/comparison ones.
func (db *DB) FileIsKnown(fc filecontent.FileContent) (bool, error) {
	args := []any{fc.SHA256[:], fc.MD5[:]}
	query := `
		SELECT COUNT(*) FROM Records r
		JOIN Files f ON f.id = r.file_id
		WHERE f.sha256 = ? AND (f.md5 = ? OR f.md5 = zeroblob(16))`
	query, args = excludeCurrent(db, query, args, "r.snapshot_id")

	var count int
	if err := db.sql.QueryRow(query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("checking file provenance: %w", err)
	}
	return count > 0, nil
}

func excludeCurrent(db *DB, query string, args []any, column string) (string, []any) {
	if db.haveMain {
		query += fmt.Sprintf(" AND %s != ?", column)
		args = append(args, db.mainSnapshot)
	}
	if db.haveComparison {
		query += fmt.Sprintf(" AND %s != ?", column)
		args = append(args, db.comparisonSnapshot)
	}
	return query, args
}

// SnapshotRef identifies a snapshot for provenance annotations.
type SnapshotRef struct {
	ID      int64
	Date    string
	Version string
}

// FileOccurrences returns every non-current snapshot at which fc's content
// was seen, mapped to the paths it was seen at.
func (db *DB) FileOccurrences(fc filecontent.FileContent) (map[SnapshotRef][]string, error) {
	query := `
		SELECT s.id, s.date, COALESCE(s.version, ''), p.path
		FROM Records r
		JOIN Files f ON f.id = r.file_id
		JOIN Snapshots s ON s.id = r.snapshot_id
		JOIN Paths p ON p.id = r.path_id
		WHERE f.sha256 = ? AND (f.md5 = ? OR f.md5 = zeroblob(16))`
	args := []any{fc.SHA256[:], fc.MD5[:]}
	query, args = excludeCurrent(db, query, args, "r.snapshot_id")

	rows, err := db.sql.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying file occurrences: %w", err)
	}
	defer rows.Close()

	out := make(map[SnapshotRef][]string)
	for rows.Next() {
		var ref SnapshotRef
		var path []byte
		if err := rows.Scan(&ref.ID, &ref.Date, &ref.Version, &path); err != nil {
			return nil, fmt.Errorf("scanning file occurrence: %w", err)
		}
		out[ref] = append(out[ref], string(path))
	}
	return out, rows.Err()
}

// FindPotentialRenameTargets returns paths in the registered comparison
// snapshot where fc's content hash also occurs.
func (db *DB) FindPotentialRenameTargets(fc filecontent.FileContent) ([]string, error) {
	if !db.haveComparison {
		return nil, nil
	}
	return db.pathsInSnapshot(fc, db.comparisonSnapshot)
}

// FindPotentialRenameSources returns paths in the registered main snapshot
// where fc's content hash also occurs.
func (db *DB) FindPotentialRenameSources(fc filecontent.FileContent) ([]string, error) {
	if !db.haveMain {
		return nil, nil
	}
	return db.pathsInSnapshot(fc, db.mainSnapshot)
}

func (db *DB) pathsInSnapshot(fc filecontent.FileContent, snapshotID int64) ([]string, error) {
	rows, err := db.sql.Query(`
		SELECT p.path FROM Records r
		JOIN Files f ON f.id = r.file_id
		JOIN Paths p ON p.id = r.path_id
		WHERE r.snapshot_id = ? AND f.sha256 = ? AND (f.md5 = ? OR f.md5 = zeroblob(16))`,
		snapshotID, fc.SHA256[:], fc.MD5[:],
	)
	if err != nil {
		return nil, fmt.Errorf("querying rename candidates: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path []byte
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scanning rename candidate: %w", err)
		}
		out = append(out, string(path))
	}
	return out, rows.Err()
}

// IsKnownAutorunPath reports whether path matches any Autoruns.path_id by
// raw bytes, or its case-folded form matches any Autoruns.normalized_path_id
// — with both sides required to be present, non-empty strings, so that a
// missing image path on either side never counts as a match (see the
// resolved design note on this query).
func (db *DB) IsKnownAutorunPath(path string) (bool, error) {
	if path == "" {
		return false, nil
	}

	var count int
	err := db.sql.QueryRow(`
		SELECT COUNT(*) FROM Autoruns a JOIN Paths p ON p.id = a.path_id WHERE p.path = ?`,
		[]byte(path),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking known autorun path: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	norm, ok := casefold.Fold(path)
	if !ok {
		return false, nil
	}
	err = db.sql.QueryRow(`
		SELECT COUNT(*) FROM Autoruns a
		JOIN NormalizedPaths n ON n.id = a.normalized_path_id
		WHERE n.path = ?`,
		norm,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking known normalized autorun path: %w", err)
	}
	return count > 0, nil
}
