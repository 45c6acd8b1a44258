// Scan orchestration: a fan-out pool of worker goroutines compute the
// per-entry descriptor (kind, content hash/entropy/encoding, metadata) for
// every path discovered by a directory walk, while a single consumer
// goroutine owns the growing tree and performs every insert, so concurrent
// workers never touch the tree directly.
package snapshot

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aticu/sniffdb/internal/autorunscsv"
	"github.com/aticu/sniffdb/internal/cache"
	"github.com/aticu/sniffdb/internal/filecontent"
	"github.com/aticu/sniffdb/internal/fstree"
	"github.com/aticu/sniffdb/internal/metadata"
	"github.com/aticu/sniffdb/internal/progress"
	"github.com/aticu/sniffdb/internal/timestamp"
	"github.com/aticu/sniffdb/internal/updatescsv"
)

// scanResultChanCap bounds the producer/consumer channel. Nodes carry full
// file content descriptors, not bare FileInfo, so items are heavier and the
// buffer stays modest.
const scanResultChanCap = 100

// sniffSubtreeName is the auxiliary directory probed for side-channel files
// and excluded from the resulting tree.
const sniffSubtreeName = "sniff"

// Options configures a scan.
type Options struct {
	// Workers bounds the number of concurrent directory-walk/hash goroutines.
	// Defaults to runtime.NumCPU() equivalent chosen by the caller; 0 means 8.
	Workers int
	// ShowProgress enables a progress bar on stderr.
	ShowProgress bool
	// Cache, if non-nil, is consulted and updated for regular-file content
	// descriptors keyed by (path, size, mtime).
	Cache *cache.Cache
	// ErrCh, if non-nil, receives non-fatal per-path errors (permission
	// denied, vanished file, ...); the scan continues regardless.
	ErrCh chan error
}

type scanItem struct {
	components []string
	node       *fstree.MetaNode[struct{}]
}

// Scan walks root and produces a Snapshot tagged with the given source.
func Scan(root string, source Source, opts Options) (Snapshot, error) {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolving scan root: %w", err)
	}

	tree := fstree.NewDirectory[struct{}]()

	resultCh := make(chan scanItem, scanResultChanCap)
	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup

	bar := progress.New(opts.ShowProgress, -1)
	var scanned scanCounter
	bar.Describe(&scanned)

	var walk func(dir string)
	walk = func(dir string) {
		defer wg.Done()
		sem <- struct{}{}
		entries, err := os.ReadDir(dir)
		<-sem
		if err != nil {
			sendErr(opts.ErrCh, err)
			return
		}

		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			rel, err := filepath.Rel(absRoot, full)
			if err != nil {
				sendErr(opts.ErrCh, err)
				continue
			}
			relSlash := filepath.ToSlash(rel)

			if entry.IsDir() {
				if isSniffSubtree(relSlash) {
					continue // excluded from the tree; probed separately below
				}
				wg.Add(1)
				go walk(full)
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				sem <- struct{}{}
				node, err := buildLeaf(full, absRoot, opts.Cache)
				<-sem
				if err != nil {
					sendErr(opts.ErrCh, err)
					return
				}
				scanned.add(1)
				bar.Describe(&scanned)
				resultCh <- scanItem{components: fstree.SplitPath(relSlash), node: node}
			}()
		}
	}

	wg.Add(1)
	go walk(absRoot)

	done := make(chan struct{})
	go func() {
		for item := range resultCh {
			fstree.Insert(tree, item.components, item.node)
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	bar.Finish(&scanned)

	ensureMFTPresent(tree, absRoot)

	snap := Snapshot{
		Root:      tree,
		Source:    source,
		Timestamp: timestamp.Now(),
	}

	probeSniffSubtree(absRoot, &snap)

	return snap, nil
}

// scanCounter is a mutex-guarded count of scanned entries: every leaf
// goroutine calls add concurrently, and the progress bar reads it through
// String.
type scanCounter struct {
	mu sync.Mutex
	n  int64
}

func (c *scanCounter) add(n int64) {
	c.mu.Lock()
	c.n += n
	c.mu.Unlock()
}

func (c *scanCounter) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("scanned %d entries", c.n)
}

func sendErr(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

func isSniffSubtree(relSlash string) bool {
	return relSlash == sniffSubtreeName || strings.HasPrefix(relSlash, sniffSubtreeName+"/")
}

// buildLeaf classifies one filesystem entry and computes its descriptor:
// file content hash/entropy/encoding/COFF header for regular files,
// root-relative target rewriting for symlinks, or a bare OtherContent tag
// for everything else.
func buildLeaf(path, scanRoot string, c *cache.Cache) (*fstree.MetaNode[struct{}], error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}

	meta, err := metadata.FromPath(path)
	if err != nil {
		meta = metadata.Meaningless()
		meta.Size = uint64(info.Size()) //nolint:gosec
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return nil, err
		}
		return &fstree.MetaNode[struct{}]{
			Entry:    fstree.TreeNode[struct{}]{Kind: fstree.KindSymlink, Symlink: fstree.SymlinkContent{Target: rewriteSymlinkTarget(path, target, scanRoot)}},
			Metadata: meta,
		}, nil

	case info.Mode().IsRegular():
		fc, err := fileContentCached(path, info, c)
		if err != nil {
			return nil, err
		}
		return &fstree.MetaNode[struct{}]{
			Entry:    fstree.TreeNode[struct{}]{Kind: fstree.KindFile, File: fc},
			Metadata: meta,
		}, nil

	default:
		return &fstree.MetaNode[struct{}]{
			Entry:    fstree.TreeNode[struct{}]{Kind: fstree.KindOther, Other: classifyOther(info.Mode())},
			Metadata: meta,
		}, nil
	}
}

func classifyOther(mode fs.FileMode) fstree.OtherKind {
	switch {
	case mode&fs.ModeDevice != 0 && mode&fs.ModeCharDevice != 0:
		return fstree.OtherCharDevice
	case mode&fs.ModeDevice != 0:
		return fstree.OtherBlockDevice
	case mode&fs.ModeNamedPipe != 0:
		return fstree.OtherPipe
	case mode&fs.ModeSocket != 0:
		return fstree.OtherSocket
	default:
		return fstree.OtherUnknown
	}
}

// rewriteSymlinkTarget resolves target (a relative one against the link's
// own directory) and, when the result lies inside scanRoot, returns it as a
// root-relative path; every other target is returned untouched.
func rewriteSymlinkTarget(linkPath, target, scanRoot string) string {
	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(linkPath), target)
	}
	rel, err := filepath.Rel(scanRoot, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return target
	}
	return filepath.ToSlash(rel)
}

func fileContentCached(path string, info os.FileInfo, c *cache.Cache) (filecontent.FileContent, error) {
	if c != nil {
		if fc, ok, err := c.Lookup(path, info.Size(), info.ModTime()); err == nil && ok {
			return fc, nil
		}
	}

	fc, err := filecontent.FromPath(path)
	if err != nil {
		return filecontent.FileContent{}, err
	}

	if c != nil {
		_ = c.Store(path, info.Size(), info.ModTime(), fc)
	}

	return fc, nil
}

// ensureMFTPresent appends an explicit $MFT node if the directory walk
// didn't surface one itself (a bare-directory scan never will; a VDI-mount
// scan of an NTFS volume normally does, since $MFT is a regular, if
// hidden, file at the volume root).
func ensureMFTPresent(tree *fstree.MetaNode[struct{}], scanRoot string) {
	if _, ok := fstree.Lookup(tree, "$MFT"); ok {
		return
	}
	mftPath := filepath.Join(scanRoot, "$MFT")
	info, err := os.Lstat(mftPath)
	if err != nil {
		return
	}
	fc, err := filecontent.FromPath(mftPath)
	if err != nil {
		return
	}
	meta, err := metadata.FromPath(mftPath)
	if err != nil {
		meta = metadata.Meaningless()
		meta.Size = uint64(info.Size()) //nolint:gosec
	}
	fstree.Insert(tree, []string{"$MFT"}, &fstree.MetaNode[struct{}]{
		Entry:    fstree.TreeNode[struct{}]{Kind: fstree.KindFile, File: fc},
		Metadata: meta,
	})
}

// probeSniffSubtree reads the three optional side-channel files under
// sniff/ at the scan root, populating snap.OSVersion/Autoruns/Updates when
// present. Failures here are non-fatal: a missing sniff/ subtree is the
// common case for a plain directory scan.
func probeSniffSubtree(scanRoot string, snap *Snapshot) {
	sniffDir := filepath.Join(scanRoot, sniffSubtreeName)

	if versionPath := filepath.Join(sniffDir, "version"); fileExists(versionPath) {
		if v, err := readFirstLine(versionPath); err == nil {
			snap.OSVersion = &v
		}
	}

	if autorunsPath := filepath.Join(sniffDir, "autoruns.csv"); fileExists(autorunsPath) {
		if f, err := os.Open(autorunsPath); err == nil {
			defer f.Close()
			recordingTime := timestamp.Now()
			if st, err := f.Stat(); err == nil {
				recordingTime = timestamp.FromTime(st.ModTime())
			}
			if a, err := autorunscsv.Parse(f, recordingTime); err == nil {
				snap.Autoruns = &a
			}
		}
	}

	if updatesPath := filepath.Join(sniffDir, "updates.csv"); fileExists(updatesPath) {
		if f, err := os.Open(updatesPath); err == nil {
			defer f.Close()
			recordingTime := timestamp.Now()
			if st, err := f.Stat(); err == nil {
				recordingTime = timestamp.FromTime(st.ModTime())
			}
			if u, err := updatescsv.Parse(f, recordingTime); err == nil {
				snap.Updates = &u
			}
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	return "", scanner.Err()
}
