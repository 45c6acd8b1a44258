// Package vdimount mounts a VirtualBox disk image's largest NTFS partition
// onto a scratch directory via the external `vboximg-mount` and `ntfs-3g`
// tools, so the rest of the system can scan it like any other directory.
package vdimount

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// ExternalToolFailedError wraps a non-zero exit from one of the external
// mount tools, carrying its stderr for diagnostics.
type ExternalToolFailedError struct {
	Tool   string
	Stderr string
	Cause  error
}

func (e *ExternalToolFailedError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Tool, e.Stderr)
}

func (e *ExternalToolFailedError) Unwrap() error { return e.Cause }

// Provider mounts a VDI file and exposes the mounted path; it exists so
// tests can substitute a provider that returns a pre-populated local
// directory instead of shelling out to the real tools.
type Provider interface {
	Mount(vdiPath string) (Mount, error)
}

// Mount is an active mount; Close unmounts and removes its scratch
// directories.
type Mount interface {
	Path() string
	Close() error
}

// ExternalToolProvider shells out to vboximg-mount and ntfs-3g.
type ExternalToolProvider struct {
	// BaseDir is where scratch directories are created; defaults to
	// os.TempDir() when empty.
	BaseDir string
}

func (p ExternalToolProvider) Mount(vdiPath string) (Mount, error) {
	base := p.BaseDir
	if base == "" {
		base = os.TempDir()
	}

	devPath := filepath.Join(base, "sniffdb-vdi-dev-"+uuid.NewString())
	if err := os.Mkdir(devPath, 0o700); err != nil {
		return nil, fmt.Errorf("creating device dir: %w", err)
	}

	if out, err := exec.Command("vboximg-mount", "--image", vdiPath, devPath).CombinedOutput(); err != nil {
		os.RemoveAll(devPath)
		return nil, &ExternalToolFailedError{Tool: "vboximg-mount", Stderr: string(out), Cause: err}
	}

	partition, err := largestPartition(devPath)
	if err != nil {
		exec.Command("umount", devPath).Run() //nolint:errcheck
		os.RemoveAll(devPath)
		return nil, err
	}

	mountedPath := filepath.Join(base, "sniffdb-vdi-mount-"+uuid.NewString())
	if err := os.Mkdir(mountedPath, 0o700); err != nil {
		exec.Command("umount", devPath).Run() //nolint:errcheck
		os.RemoveAll(devPath)
		return nil, fmt.Errorf("creating mount dir: %w", err)
	}

	out, err := exec.Command("ntfs-3g", "-o", "no_def_opts,ro,show_sys_files,silent", partition, mountedPath).CombinedOutput()
	if err != nil {
		exec.Command("umount", devPath).Run() //nolint:errcheck
		os.RemoveAll(devPath)
		os.RemoveAll(mountedPath)
		return nil, &ExternalToolFailedError{Tool: "ntfs-3g", Stderr: string(out), Cause: err}
	}

	return &externalMount{devPath: devPath, mountedPath: mountedPath}, nil
}

// largestPartition returns the path to the largest "vol*" entry in devPath,
// matching the original's size-based partition selection heuristic.
func largestPartition(devPath string) (string, error) {
	entries, err := os.ReadDir(devPath)
	if err != nil {
		return "", fmt.Errorf("reading device dir: %w", err)
	}

	type candidate struct {
		name string
		size int64
	}
	var candidates []candidate
	for _, e := range entries {
		if len(e.Name()) < 3 || e.Name()[:3] != "vol" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{name: e.Name(), size: info.Size()})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no suitable partition found in %s", devPath)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].size > candidates[j].size })
	return filepath.Join(devPath, candidates[0].name), nil
}

type externalMount struct {
	devPath     string
	mountedPath string
}

func (m *externalMount) Path() string { return m.mountedPath }

// Close unmounts the mounted filesystem then the device directory (errors
// discarded, matching the inner-then-outer teardown order of the original),
// then removes both scratch directories.
func (m *externalMount) Close() error {
	exec.Command("umount", m.mountedPath).Run() //nolint:errcheck
	exec.Command("umount", m.devPath).Run()     //nolint:errcheck
	os.RemoveAll(m.mountedPath)
	os.RemoveAll(m.devPath)
	return nil
}
