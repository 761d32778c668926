// Package mtab reads the system mount table and unmounts vireofs mounts.
package mtab

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// DevicePrefix marks vireofs mounts in the mount table.
const DevicePrefix = "vireofs:"

// MountKind distinguishes the transports a checkout can be served over.
type MountKind string

const (
	KindFUSE MountKind = "fuse"
	KindNFS  MountKind = "nfs"
)

// MountInfo is one row of the mount table. Fields are raw bytes: mount
// points are not required to be valid UTF-8.
type MountInfo struct {
	Device     []byte
	MountPoint []byte
	VFSType    []byte
}

// MTStat is the subset of lstat results the stale-mount scan needs.
type MTStat struct {
	UID  uint32
	Dev  uint64
	Mode uint32
}

// MountTable is the system mount table plus the probe and unmount
// primitives used against it.
type MountTable interface {
	Read() ([]MountInfo, error)
	LStat(path string) (MTStat, error)
	// CheckPathAccess probes a path with the primitive appropriate for
	// the mount kind and returns the raw OS error, if any.
	CheckPathAccess(path string, kind MountKind) error
	// UnmountLazy and UnmountForce report whether the unmount succeeded.
	UnmountLazy(path string) bool
	UnmountForce(path string) bool
	// CanUnmount reports whether this process may unmount at all.
	CanUnmount() bool
}

// VFSTypeKind maps a mount-table vfstype to a mount kind.
func VFSTypeKind(vfstype []byte) (MountKind, bool) {
	switch string(vfstype) {
	case "fuse", "fuse.vireofs", "macfuse_vireo":
		return KindFUSE, true
	case "nfs":
		return KindNFS, true
	}
	if bytes.HasPrefix(vfstype, []byte(DevicePrefix)) {
		return KindNFS, true
	}
	return "", false
}

// LinuxMountTable reads /proc/self/mounts.
type LinuxMountTable struct{}

func New() *LinuxMountTable {
	return &LinuxMountTable{}
}

func (t *LinuxMountTable) Read() ([]MountInfo, error) {
	data, err := os.ReadFile("/proc/self/mounts")
	if err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	return parseMounts(data), nil
}

// parseMounts decodes the whitespace-separated mount table format.
// Fields use octal escapes for spaces, tabs, newlines and backslashes.
func parseMounts(data []byte) []MountInfo {
	var mounts []MountInfo
	for _, line := range bytes.Split(data, []byte("\n")) {
		fields := bytes.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mounts = append(mounts, MountInfo{
			Device:     decodeOctal(fields[0]),
			MountPoint: decodeOctal(fields[1]),
			VFSType:    decodeOctal(fields[2]),
		})
	}
	return mounts
}

func decodeOctal(field []byte) []byte {
	if !bytes.ContainsRune(field, '\\') {
		return field
	}
	out := make([]byte, 0, len(field))
	for i := 0; i < len(field); i++ {
		if field[i] == '\\' && i+3 < len(field) {
			if n, err := strconv.ParseUint(string(field[i+1:i+4]), 8, 8); err == nil {
				out = append(out, byte(n))
				i += 3
				continue
			}
		}
		out = append(out, field[i])
	}
	return out
}

func (t *LinuxMountTable) LStat(path string) (MTStat, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return MTStat{}, &os.PathError{Op: "lstat", Path: path, Err: err}
	}
	return MTStat{UID: st.Uid, Dev: uint64(st.Dev), Mode: uint32(st.Mode)}, nil
}

func (t *LinuxMountTable) CheckPathAccess(path string, kind MountKind) error {
	switch kind {
	case KindNFS:
		// NFS mounts answer lstat from cache even when the server is
		// gone; a directory listing forces a round trip.
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = f.Readdirnames(1)
		f.Close()
		if err != nil && err != io.EOF {
			return err
		}
		return nil
	default:
		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return &os.PathError{Op: "lstat", Path: path, Err: err}
		}
		return nil
	}
}

func (t *LinuxMountTable) UnmountLazy(path string) bool {
	return unix.Unmount(path, unix.MNT_DETACH) == nil
}

func (t *LinuxMountTable) UnmountForce(path string) bool {
	return unix.Unmount(path, unix.MNT_FORCE) == nil
}

func (t *LinuxMountTable) CanUnmount() bool {
	return os.Geteuid() == 0
}
