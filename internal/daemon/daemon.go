// Package daemon is the CLI's view of vireod: liveness, mount inventory,
// inode state dumps and the repair calls doctor issues against it.
package daemon

import "context"

// Status is the daemon lifecycle state.
type Status int

const (
	StatusDead Status = iota
	StatusStarting
	StatusAlive
	StatusStopping
)

func (s Status) String() string {
	switch s {
	case StatusDead:
		return "dead"
	case StatusStarting:
		return "starting"
	case StatusAlive:
		return "alive"
	case StatusStopping:
		return "stopping"
	}
	return "unknown"
}

// MountState is the daemon-side lifecycle state of one mount.
type MountState string

const (
	MountRunning      MountState = "RUNNING"
	MountInitializing MountState = "INITIALIZING"
	MountShuttingDown MountState = "SHUTTING_DOWN"
)

// MountInfo is one entry of the daemon's mount inventory.
type MountInfo struct {
	Path     string     `json:"path"`
	StateDir string     `json:"stateDir"`
	State    MountState `json:"state"`
	Device   uint64     `json:"device"`
}

// Flags for DebugInodeStatus.
const (
	// RequireMaterialized limits the dump to materialized trees.
	RequireMaterialized uint64 = 1 << iota
	// RequireLoaded limits the dump to trees loaded in memory.
	RequireLoaded
)

// InodeEntry is one child of a reported tree inode.
type InodeEntry struct {
	Name         string `json:"name"`
	InodeNumber  uint64 `json:"inodeNumber"`
	Mode         uint32 `json:"mode"`
	Materialized bool   `json:"materialized"`
	Loaded       bool   `json:"loaded"`
	Hash         string `json:"hash,omitempty"`
}

// TreeInodeInfo is one directory inode plus its children.
type TreeInodeInfo struct {
	Path         string       `json:"path"`
	Refcount     uint64       `json:"refcount"`
	Materialized bool         `json:"materialized"`
	Entries      []InodeEntry `json:"entries"`
}

// InodeCounts reports how many inodes a mount has in each state.
type InodeCounts struct {
	Loaded   uint64 `json:"loaded"`
	Unloaded uint64 `json:"unloaded"`
}

// Client is everything doctor asks of the daemon.
type Client interface {
	Status(ctx context.Context) (Status, error)
	Version(ctx context.Context) (string, error)
	ListMounts(ctx context.Context) ([]MountInfo, error)
	Mount(ctx context.Context, path string) error
	DebugInodeStatus(ctx context.Context, mount string, flags uint64) ([]TreeInodeInfo, error)
	// ResetParentCommits points the mount's working copy parent at the
	// given commit without touching file state.
	ResetParentCommits(ctx context.Context, mount string, parent []byte) error
	// MatchFilesystem asks the daemon to reconcile the named paths with
	// what is on disk, returning the paths it could not reconcile.
	MatchFilesystem(ctx context.Context, mount string, paths []string) ([]string, error)
	InvalidateNonMaterialized(ctx context.Context, mount string) error
	Counters(ctx context.Context) (map[string]int64, error)
	InodeCounts(ctx context.Context, mount string) (InodeCounts, error)
}
