package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/vireofs/vireo/internal/checkout"
	"github.com/vireofs/vireo/internal/daemon"
)

// DiskProbe returns the POSIX mode of a path as the filesystem reports
// it, or an error satisfying os.IsNotExist when the path is absent.
// Injected so the inode checks have a single notion of disk truth.
type DiskProbe func(path string) (uint32, error)

// LstatProbe is the production DiskProbe.
func LstatProbe(path string) (uint32, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, &os.PathError{Op: "lstat", Path: path, Err: err}
	}
	return uint32(st.Mode), nil
}

const modeTypeMask = 0xF000 // S_IFMT

// checkInodeConsistency compares the daemon's materialized directory
// trees for a checkout against what is actually on disk.
func checkInodeConsistency(ctx context.Context, tracker Tracker, co *checkout.Checkout, client daemon.Client, probe DiskProbe) {
	trees, err := client.DebugInodeStatus(ctx, co.Path, daemon.RequireMaterialized)
	if err != nil {
		tracker.AddProblem(ctx, newInodeStateUnavailable(co.Path, err))
		return
	}

	var missing, untracked, inaccessible []string
	type mismatch struct {
		path               string
		daemonMode, dskMod uint32
	}
	var mismatches []mismatch
	var duplicates []string

	for _, tree := range trees {
		if !tree.Materialized {
			continue
		}
		dirPath := filepath.Join(co.Path, tree.Path)

		known := make(map[string]bool, len(tree.Entries))
		for _, e := range tree.Entries {
			folded := co.FoldCase(e.Name)
			if known[folded] {
				duplicates = append(duplicates, filepath.Join(dirPath, e.Name))
				continue
			}
			known[folded] = true

			// Only materialized entries are expected to be backed by
			// real files; the rest exist solely in the daemon.
			if !e.Materialized {
				continue
			}
			entryPath := filepath.Join(dirPath, e.Name)
			mode, err := probe(entryPath)
			switch {
			case os.IsNotExist(err):
				missing = append(missing, entryPath)
			case err != nil:
				inaccessible = append(inaccessible, entryPath)
			case mode&modeTypeMask != e.Mode&modeTypeMask:
				mismatches = append(mismatches, mismatch{path: entryPath, daemonMode: e.Mode, dskMod: mode})
			}
		}

		names, err := os.ReadDir(dirPath)
		if err != nil {
			inaccessible = append(inaccessible, dirPath)
			continue
		}
		for _, de := range names {
			if tree.Path == "" && (de.Name() == checkout.DotDir || de.Name() == checkout.MarkerDir) {
				continue
			}
			if !known[co.FoldCase(de.Name())] {
				untracked = append(untracked, filepath.Join(tree.Path, de.Name()))
			}
		}
	}

	sort.Strings(missing)
	sort.Strings(untracked)
	sort.Strings(inaccessible)
	sort.Strings(duplicates)

	if len(missing) > 0 {
		tracker.AddProblem(ctx, &MissingOnDiskProblem{checkout: co, paths: missing, probe: probe})
	}
	if len(untracked) > 0 {
		tracker.AddProblem(ctx, &UntrackedOnDiskProblem{checkout: co, paths: untracked, client: client})
	}
	for _, m := range mismatches {
		tracker.AddProblem(ctx, &UnexpectedFileTypeProblem{
			checkout:   co,
			path:       m.path,
			daemonMode: m.daemonMode,
			diskMode:   m.dskMod,
			client:     client,
			probe:      probe,
		})
	}
	if len(duplicates) > 0 {
		tracker.AddProblem(ctx, newDuplicateInodesProblem(duplicates))
	}
	if len(inaccessible) > 0 {
		tracker.AddProblem(ctx, NewProblem(
			fmt.Sprintf("The following paths could not be inspected:\n  %s", strings.Join(inaccessible, "\n  ")),
			"Check the permissions on these paths and re-run vireo doctor.",
			SeverityPotentiallySerious,
		))
	}
}

// InodeStateUnavailable reports that the daemon could not dump inode
// state for a mount.
type InodeStateUnavailable struct {
	BaseProblem
}

func newInodeStateUnavailable(mount string, err error) *InodeStateUnavailable {
	return &InodeStateUnavailable{NewProblem(
		fmt.Sprintf("Failed to fetch inode state for %s: %v", mount, err),
		"Restart vireod and re-run vireo doctor.",
		SeverityPotentiallySerious,
	)}
}

// MissingOnDiskProblem reports files the daemon tracks as materialized
// that do not exist on disk.
type MissingOnDiskProblem struct {
	checkout *checkout.Checkout
	paths    []string
	probe    DiskProbe
}

func (p *MissingOnDiskProblem) Description() string {
	return fmt.Sprintf("%d file(s) tracked as materialized cannot be found on disk:\n  %s", len(p.paths), strings.Join(p.paths, "\n  "))
}

func (p *MissingOnDiskProblem) Severity() Severity  { return SeverityError }
func (p *MissingOnDiskProblem) Remediation() string { return "" }

func (p *MissingOnDiskProblem) DryRunMessage() string {
	return fmt.Sprintf("Would reset %d inconsistent inode(s) in %s", len(p.paths), p.checkout.Path)
}

func (p *MissingOnDiskProblem) StartMessage() string {
	return fmt.Sprintf("Resetting %d inconsistent inode(s) in %s", len(p.paths), p.checkout.Path)
}

// Fix recreates and removes each path so the daemon re-evaluates it,
// then confirms disk and daemon agree that the path is gone.
func (p *MissingOnDiskProblem) Fix(ctx context.Context) error {
	for _, path := range p.paths {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	var remaining []string
	for _, path := range p.paths {
		if _, err := p.probe(path); !os.IsNotExist(err) {
			remaining = append(remaining, path)
		}
	}
	if len(remaining) > 0 {
		return &RemediationError{Message: fmt.Sprintf("inode state is still inconsistent for:\n  %s", strings.Join(remaining, "\n  "))}
	}
	return nil
}

// UntrackedOnDiskProblem reports on-disk entries the daemon does not
// know about.
type UntrackedOnDiskProblem struct {
	checkout *checkout.Checkout
	paths    []string // mount-relative
	client   daemon.Client
}

func (p *UntrackedOnDiskProblem) Description() string {
	return fmt.Sprintf("%d on-disk file(s) in %s are unknown to vireod:\n  %s", len(p.paths), p.checkout.Path, strings.Join(p.paths, "\n  "))
}

func (p *UntrackedOnDiskProblem) Severity() Severity  { return SeverityError }
func (p *UntrackedOnDiskProblem) Remediation() string { return "" }

func (p *UntrackedOnDiskProblem) DryRunMessage() string {
	return fmt.Sprintf("Would reconcile %d untracked path(s) in %s", len(p.paths), p.checkout.Path)
}

func (p *UntrackedOnDiskProblem) StartMessage() string {
	return fmt.Sprintf("Reconciling %d untracked path(s) in %s", len(p.paths), p.checkout.Path)
}

func (p *UntrackedOnDiskProblem) Fix(ctx context.Context) error {
	if _, err := p.client.MatchFilesystem(ctx, p.checkout.Path, p.paths); err != nil {
		return err
	}
	failed, err := p.client.MatchFilesystem(ctx, p.checkout.Path, p.paths)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return &RemediationError{Message: fmt.Sprintf("vireod still does not track:\n  %s", strings.Join(failed, "\n  "))}
	}
	return nil
}

// UnexpectedFileTypeProblem reports a path whose on-disk file type
// disagrees with the daemon's record. One problem per path.
type UnexpectedFileTypeProblem struct {
	checkout   *checkout.Checkout
	path       string
	daemonMode uint32
	diskMode   uint32
	client     daemon.Client
	probe      DiskProbe
}

func (p *UnexpectedFileTypeProblem) Description() string {
	return fmt.Sprintf("%s has an unexpected file type: vireod reports mode %#o but disk reports %#o", p.path, p.daemonMode&modeTypeMask, p.diskMode&modeTypeMask)
}

func (p *UnexpectedFileTypeProblem) Severity() Severity  { return SeverityError }
func (p *UnexpectedFileTypeProblem) Remediation() string { return "" }

func (p *UnexpectedFileTypeProblem) DryRunMessage() string {
	return fmt.Sprintf("Would refresh the file type of %s", p.path)
}

func (p *UnexpectedFileTypeProblem) StartMessage() string {
	return fmt.Sprintf("Refreshing the file type of %s", p.path)
}

// Fix renames the path away and back so the daemon re-evaluates its
// type, then re-dumps inode state to confirm the records now agree.
func (p *UnexpectedFileTypeProblem) Fix(ctx context.Context) error {
	tmp := p.path + ".vireo-doctor"
	if err := os.Rename(p.path, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return err
	}

	diskMode, err := p.probe(p.path)
	if err != nil {
		return err
	}
	trees, err := p.client.DebugInodeStatus(ctx, p.checkout.Path, daemon.RequireMaterialized)
	if err != nil {
		return err
	}
	rel, relErr := filepath.Rel(p.checkout.Path, p.path)
	if relErr != nil {
		return relErr
	}
	dir, name := filepath.Split(rel)
	dir = filepath.Clean(dir)
	if dir == "." {
		dir = ""
	}
	for _, tree := range trees {
		if tree.Path != dir {
			continue
		}
		for _, e := range tree.Entries {
			if p.checkout.FoldCase(e.Name) != p.checkout.FoldCase(name) {
				continue
			}
			if e.Mode&modeTypeMask != diskMode&modeTypeMask {
				return &RemediationError{Message: fmt.Sprintf("%s still has mismatched file types after refresh", p.path)}
			}
			return nil
		}
	}
	// The entry dropping out of the materialized dump also means the
	// disagreement is gone.
	return nil
}

// DuplicateInodesProblem reports multiple entries with the same name
// under one parent. There is no safe automatic fix.
type DuplicateInodesProblem struct {
	BaseProblem
}

func newDuplicateInodesProblem(paths []string) *DuplicateInodesProblem {
	return &DuplicateInodesProblem{NewProblem(
		fmt.Sprintf("Found duplicate directory entries:\n  %s", strings.Join(paths, "\n  ")),
		"Restart vireod to rebuild its inode state.",
		SeverityPotentiallySerious,
	)}
}
