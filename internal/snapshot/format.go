// Snapshot file format: a short uncompressed header (magic string + version
// byte) followed by a gzip-compressed, msgpack-encoded body. Readers
// dispatch on the version byte and own a migration path for every prior
// version; the current version is never the only one a reader accepts.
package snapshot

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const magic = "snpsht"

// CurrentVersion is the version written by Write.
const CurrentVersion = 2

// ErrBadFormat is returned when a file's magic prefix doesn't match.
var ErrBadFormat = errors.New("snapshot: bad format (magic mismatch)")

// ErrUnsupportedVersion is returned for a version byte with no registered
// reader (including the obsolete version 0).
var ErrUnsupportedVersion = errors.New("snapshot: unsupported version")

// Write serializes snap to path atomically: it is written in full to a
// temporary file in the same directory, then renamed into place, so a
// reader never observes a partially written snapshot.
func Write(path string, snap Snapshot) error {
	dir := dirOf(path)
	tmpPath := path + ".tmp-" + uuid.NewString()

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer os.Remove(tmpPath) //nolint:errcheck // no-op once the rename below succeeds

	if err := encode(f, snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	_ = dir
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func encode(w io.Writer, snap Snapshot) error {
	header := headerEncoder{}
	if err := header.writeString(w, magic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{CurrentVersion}); err != nil {
		return fmt.Errorf("writing version byte: %w", err)
	}

	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}

	enc := msgpack.NewEncoder(gz)
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("encoding snapshot body: %w", err)
	}

	return gz.Close()
}

type headerEncoder struct{}

// writeString writes s length-prefixed via msgpack's native string
// framing, matching the header's "variable-length string" requirement
// without hand-rolling a separate length prefix.
func (headerEncoder) writeString(w io.Writer, s string) error {
	return msgpack.NewEncoder(w).EncodeString(s)
}

// Read opens path, validates the header, and decodes the body, migrating
// older versions into the current Snapshot shape.
func Read(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a full snapshot container from r. The magic, version byte,
// and gzip body are all read through a single buffered reader so none of
// msgpack's, io's, or gzip's internal read-ahead can swallow bytes the
// next stage needs (a bare io.Reader without ReadByte/UnreadByte gets
// wrapped in its own throwaway bufio.Reader by msgpack, which slurps the
// rest of the stream before the version byte or gzip body is read).
func Decode(r io.Reader) (Snapshot, error) {
	br := bufio.NewReader(r)

	dec := msgpack.NewDecoder(br)
	gotMagic, err := dec.DecodeString()
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot header: %w", err)
	}
	if gotMagic != magic {
		return Snapshot{}, ErrBadFormat
	}

	var versionBuf [1]byte
	if _, err := io.ReadFull(br, versionBuf[:]); err != nil {
		return Snapshot{}, fmt.Errorf("reading version byte: %w", err)
	}
	version := versionBuf[0]

	gz, err := gzip.NewReader(br)
	if err != nil {
		return Snapshot{}, fmt.Errorf("opening gzip body: %w", err)
	}
	defer gz.Close()

	body, err := io.ReadAll(gz)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot body: %w", err)
	}

	switch version {
	case 0:
		return Snapshot{}, fmt.Errorf("%w: version 0 is obsolete", ErrUnsupportedVersion)
	case 1:
		return decodeV1(body)
	case 2:
		return decodeV2(body)
	default:
		return Snapshot{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

// decodeV2 decodes the current body shape, rejecting trailing bytes (the
// msgpack equivalent of the original's "varint encoding that rejects
// trailing bytes").
func decodeV2(body []byte) (Snapshot, error) {
	var snap Snapshot
	dec := msgpack.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decoding v2 snapshot body: %w", err)
	}
	if b, _ := io.ReadAll(dec.Buffered()); len(b) > 0 {
		return Snapshot{}, fmt.Errorf("%w: trailing bytes after snapshot body", ErrBadFormat)
	}
	return snap, nil
}
