// Package checkout models one mounted vireo working copy and the on-disk
// state the daemon and hg keep for it.
package checkout

import (
	"path/filepath"
	"strings"
)

// DotDir is the working copy's hg metadata directory name.
const DotDir = ".hg"

// RequiresMarker must appear in the metadata requires file of every
// vireo-backed working copy.
const RequiresMarker = "vireofs"

// Metadata file names under DotDir.
const (
	DirstateFile   = "dirstate"
	RequiresFile   = "requires"
	SharedPathFile = "sharedpath"
	SharedFile     = "shared"
	BookmarksFile  = "bookmarks"
	BranchFile     = "branch"
)

// MarkerDir is the synthetic directory vireod serves inside every mount.
const MarkerDir = ".vireo"

// Checkout is one configured working copy.
type Checkout struct {
	Path          string   // mount point
	StateDir      string   // per-checkout daemon state directory
	BackingRepo   string   // backing repository root
	CaseSensitive bool     // case sensitivity of the mounted filesystem
	Redirections  []string // repo-relative paths redirected to local storage
}

// MetadataDir returns the working copy's hg metadata directory.
func (c *Checkout) MetadataDir() string {
	return filepath.Join(c.Path, DotDir)
}

// MetadataPath returns the path of a file inside the metadata directory.
func (c *Checkout) MetadataPath(name string) string {
	return filepath.Join(c.Path, DotDir, name)
}

// SnapshotPath returns the daemon's SNAPSHOT file for this checkout.
func (c *Checkout) SnapshotPath() string {
	return filepath.Join(c.StateDir, "SNAPSHOT")
}

// RedirectionTarget returns where a redirected repo-relative path should
// point: a directory inside the per-checkout state.
func (c *Checkout) RedirectionTarget(rel string) string {
	return filepath.Join(c.StateDir, "redirections", rel)
}

// FoldCase normalizes an entry name for comparison. Case-only differences
// are not meaningful on case-insensitive mounts.
func (c *Checkout) FoldCase(name string) string {
	if c.CaseSensitive {
		return name
	}
	return strings.ToLower(name)
}
