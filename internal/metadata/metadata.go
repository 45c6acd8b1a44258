// Package metadata captures everything known about a filesystem entry beyond
// its content: size, the four timestamps NTFS tracks, UNIX ownership bits,
// and the handful of NTFS-specific byte blobs (ACL, reparse data, DOS name,
// object id, EFS info, extended attributes, alternate data streams) that
// surface as extended attributes when a captured NTFS volume is mounted
// read-only via ntfs-3g.
package metadata

import (
	"os"
	"sort"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/aticu/sniffdb/internal/timestamp"
)

// NtfsAttributes is the FILE_ATTRIBUTE_* bitset, persisted as a plain
// integer so the on-disk representation never depends on a flags library.
type NtfsAttributes uint32

const (
	AttrReadonly          NtfsAttributes = 0x0001
	AttrHidden            NtfsAttributes = 0x0002
	AttrSystem            NtfsAttributes = 0x0004
	AttrVolumeLabel       NtfsAttributes = 0x0008
	AttrDirectory         NtfsAttributes = 0x0010
	AttrArchive           NtfsAttributes = 0x0020
	AttrDevice            NtfsAttributes = 0x0040
	AttrNormal            NtfsAttributes = 0x0080
	AttrTemporary         NtfsAttributes = 0x0100
	AttrSparse            NtfsAttributes = 0x0200
	AttrReparsePoint      NtfsAttributes = 0x0400
	AttrCompressed        NtfsAttributes = 0x0800
	AttrOffline           NtfsAttributes = 0x1000
	AttrNotContentIndexed NtfsAttributes = 0x2000
	AttrEncrypted         NtfsAttributes = 0x4000
)

// AlternateDataStreams is the set of named secondary data streams attached
// to an NTFS file, keyed by stream name. A nil value means the stream's
// data could not be read (but its presence is still recorded).
type AlternateDataStreams struct {
	Streams map[string][]byte
}

// StreamNames returns the stream names in deterministic sorted order.
func (a AlternateDataStreams) StreamNames() []string {
	names := make([]string, 0, len(a.Streams))
	for name := range a.Streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata is the full set of filesystem metadata recorded for one entry.
// Every field except Size is optional: on a plain ext4/APFS/etc. mount none
// of the NTFS-specific fields will be populated, and even the UNIX fields
// are absent for a Meaningless placeholder.
type Metadata struct {
	Size uint64

	Created     *timestamp.Timestamp
	Modified    *timestamp.Timestamp
	Accessed    *timestamp.Timestamp
	MFTModified *timestamp.Timestamp
	NtfsAttrs   *NtfsAttributes

	UnixPerms *uint32
	UID       *uint32
	GID       *uint32
	Nlink     *uint64
	Inode     *uint64

	ReparseData []byte
	ACL         []byte
	DosName     []byte
	ObjectID    []byte
	EFSInfo     []byte
	EA          []byte
	Streams     *AlternateDataStreams
}

// Meaningless returns a placeholder Metadata with every field at its zero
// value, used while constructing a directory tree when a parent node must
// exist before its real metadata has been read.
func Meaningless() Metadata {
	return Metadata{}
}

// NTFS extended attribute names exposed by ntfs-3g on a mounted volume.
const (
	xattrAttrib      = "system.ntfs_attrib_be"
	xattrTimes       = "system.ntfs_times_be"
	xattrReparseData = "system.ntfs_reparse_data"
	xattrACL         = "system.ntfs_acl"
	xattrDosName     = "system.ntfs_dos_name"
	xattrObjectID    = "system.ntfs_object_id"
	xattrEFSInfo     = "system.ntfs_efsinfo"
	xattrEA          = "system.ntfs_ea"
)

// FromPath reads the metadata for path, preferring NTFS extended attributes
// (present when path is under an ntfs-3g mount) and falling back to plain
// UNIX stat fields otherwise.
func FromPath(path string) (Metadata, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Metadata{}, err
	}

	m := Metadata{Size: uint64(fi.Size())} //nolint:gosec // file sizes are never negative

	if attr, ok := getxattr(path, xattrAttrib); ok && len(attr) >= 4 {
		a := NtfsAttributes(beUint32(attr))
		m.NtfsAttrs = &a
	}

	if times, ok := getxattr(path, xattrTimes); ok && len(times) >= 32 {
		created := timestamp.FromNTFSTicks(beInt64(times[0:8]))
		modified := timestamp.FromNTFSTicks(beInt64(times[8:16]))
		accessed := timestamp.FromNTFSTicks(beInt64(times[16:24]))
		mftModified := timestamp.FromNTFSTicks(beInt64(times[24:32]))
		m.Created, m.Modified, m.Accessed, m.MFTModified = &created, &modified, &accessed, &mftModified
	} else {
		if t := modTimeOf(fi); t != nil {
			m.Modified = t
		}
	}

	if rd, ok := getxattr(path, xattrReparseData); ok {
		m.ReparseData = rd
	}
	if acl, ok := getxattr(path, xattrACL); ok {
		m.ACL = acl
	}
	if dn, ok := getxattr(path, xattrDosName); ok {
		m.DosName = dn
	}
	if oid, ok := getxattr(path, xattrObjectID); ok {
		m.ObjectID = oid
	}
	if efs, ok := getxattr(path, xattrEFSInfo); ok {
		m.EFSInfo = efs
	}
	if ea, ok := getxattr(path, xattrEA); ok {
		m.EA = ea
	}

	if streams, err := alternateDataStreamsFromPath(path); err == nil {
		m.Streams = &streams
	}

	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		perms := uint32(stat.Mode)
		nlink := uint64(stat.Nlink) //nolint:unconvert // platform-dependent width
		uid := stat.Uid
		gid := stat.Gid
		inode := stat.Ino
		m.UnixPerms, m.Nlink, m.UID, m.GID, m.Inode = &perms, &nlink, &uid, &gid, &inode
	}

	return m, nil
}

func modTimeOf(fi os.FileInfo) *timestamp.Timestamp {
	t := timestamp.FromTime(fi.ModTime())
	return &t
}

// alternateDataStreamsFromPath lists and reads every extended attribute on
// path; on a plain (non-NTFS) filesystem this is simply empty.
func alternateDataStreamsFromPath(path string) (AlternateDataStreams, error) {
	n, err := unix.Llistxattr(path, nil)
	if err != nil {
		return AlternateDataStreams{}, err
	}
	if n == 0 {
		return AlternateDataStreams{Streams: map[string][]byte{}}, nil
	}

	buf := make([]byte, n)
	n, err = unix.Llistxattr(path, buf)
	if err != nil {
		return AlternateDataStreams{}, err
	}

	streams := map[string][]byte{}
	for _, name := range splitNulTerminated(buf[:n]) {
		if val, ok := getxattr(path, name); ok {
			streams[name] = val
		} else {
			streams[name] = nil
		}
	}
	return AlternateDataStreams{Streams: streams}, nil
}

func splitNulTerminated(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}

// getxattr reads one extended attribute, returning ok=false if it is absent
// or unreadable (e.g. the filesystem doesn't support xattrs at all).
func getxattr(path, name string) ([]byte, bool) {
	n, err := unix.Lgetxattr(path, name, nil)
	if err != nil || n <= 0 {
		return nil, false
	}
	buf := make([]byte, n)
	n, err = unix.Lgetxattr(path, name, buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func beInt64(b []byte) int64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return int64(v) //nolint:gosec // intentional reinterpretation of NTFS's signed tick count
}
