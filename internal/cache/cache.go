// Package cache provides a self-cleaning on-disk cache of file-content
// descriptors, keyed by (path, size, mtime), so that rescanning an
// unchanged tree skips re-reading and re-hashing file bytes. It keeps two
// on-disk databases and swaps them by rename so a long scan never blocks
// readers on a single growing file.
package cache

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aticu/sniffdb/internal/filecontent"
)

const bucketName = "filecontent"

// Cache provides persistent caching of FileContent descriptors using
// BoltDB. Self-cleaning: each run creates a new database, only entries
// that are looked up (hit or freshly stored) survive into it.
type Cache struct {
	readDB  *bolt.DB // existing cache (read-only)
	writeDB *bolt.DB // new cache (write) - BoltDB locks this file
	path    string   // final path (for atomic swap)
	enabled bool
}

// Open opens the existing cache for reading and creates a new cache for
// writing. Returns a disabled (no-op) cache if path is empty.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	c := &Cache{path: path, enabled: true}

	if _, statErr := os.Stat(path); statErr == nil {
		readDB, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
		if err == nil {
			c.readDB = readDB
		}
	}

	newPath := path + ".new"
	writeDB, err := bolt.Open(newPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}
	c.writeDB = writeDB

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close closes both databases and atomically replaces the old cache file
// with the new one, but only if the write database closed cleanly.
func (c *Cache) Close() error {
	var firstErr error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if err := os.Rename(c.path+".new", c.path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

const keyVersion byte = 1

// makeKey builds a deterministic lookup key: version(1) + path + NUL +
// size(8) + mtime-unix-nanos(8). Any change to the file invalidates the
// key outright rather than risking a stale hit.
func makeKey(path string, size int64, mtime time.Time) []byte {
	buf := make([]byte, 0, 1+len(path)+1+8+8)
	buf = append(buf, keyVersion)
	buf = append(buf, path...)
	buf = append(buf, 0)
	var sizeBuf, mtimeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(size)) //nolint:gosec
	binary.BigEndian.PutUint64(mtimeBuf[:], uint64(mtime.UnixNano()))
	buf = append(buf, sizeBuf[:]...)
	buf = append(buf, mtimeBuf[:]...)
	return buf
}

// Lookup retrieves a cached FileContent for path at the given size/mtime.
// On a hit, the entry is copied into the new (write) database, which is
// what makes the cache self-cleaning: only entries touched by the current
// run survive into the replacement file.
func (c *Cache) Lookup(path string, size int64, mtime time.Time) (filecontent.FileContent, bool, error) {
	if !c.enabled || c.readDB == nil {
		return filecontent.FileContent{}, false, nil
	}

	key := makeKey(path, size, mtime)
	var data []byte
	err := c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return filecontent.FileContent{}, false, fmt.Errorf("cache lookup: %w", err)
	}
	if data == nil {
		return filecontent.FileContent{}, false, nil
	}

	var fc filecontent.FileContent
	if err := msgpack.Unmarshal(data, &fc); err != nil {
		return filecontent.FileContent{}, false, nil //nolint:nilerr // a corrupt entry is just a miss
	}

	_ = c.storeRaw(key, data)

	return fc, true, nil
}

// Store saves a FileContent descriptor for path at the given size/mtime
// into the new (write) database.
func (c *Cache) Store(path string, size int64, mtime time.Time, fc filecontent.FileContent) error {
	if !c.enabled || c.writeDB == nil {
		return nil
	}
	data, err := msgpack.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return c.storeRaw(makeKey(path, size, mtime), data)
}

func (c *Cache) storeRaw(key, data []byte) error {
	err := c.writeDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
