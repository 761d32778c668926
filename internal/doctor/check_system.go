package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/vireofs/vireo/internal/checkout"
	"github.com/vireofs/vireo/internal/daemon"
	"github.com/vireofs/vireo/internal/scm"
)

// slowImportCounter is the daemon counter holding the longest live
// import from the backing store, in microseconds.
const slowImportCounter = "store.hg.live_import.max_duration_us"

// checkVersionSkew compares the running daemon version against the
// installed CLI version.
func checkVersionSkew(ctx context.Context, tracker Tracker, client daemon.Client, cliVersion string) error {
	running, err := client.Version(ctx)
	if err != nil {
		return err
	}
	if cliVersion == "" || running == "" || running == cliVersion {
		return nil
	}
	tracker.AddProblem(ctx, NewProblem(
		fmt.Sprintf("The running vireod version (%s) differs from the installed version (%s).", running, cliVersion),
		"Run `vireo restart` to pick up the installed version.",
		SeverityAdvice,
	))
	return nil
}

// checkSlowImports reports when the daemon has seen pathologically slow
// imports from the backing store.
func checkSlowImports(ctx context.Context, tracker Tracker, client daemon.Client, threshold time.Duration) error {
	counters, err := client.Counters(ctx)
	if err != nil {
		return err
	}
	maxImport := time.Duration(counters[slowImportCounter]) * time.Microsecond
	if threshold <= 0 || maxImport <= threshold {
		return nil
	}
	tracker.AddProblem(ctx, NewProblem(
		fmt.Sprintf("Imports from the backing store are slow: the longest import took %s.", maxImport.Round(time.Millisecond)),
		"Slow imports usually indicate a saturated or distant backing store. Check its health and your network.",
		SeverityAdvice,
	))
	return nil
}

// checkInodeCounts offers to free memory on mounts tracking an excessive
// number of inodes.
func checkInodeCounts(ctx context.Context, tracker Tracker, client daemon.Client, mounts []daemon.MountInfo, threshold uint64) error {
	if threshold == 0 {
		return nil
	}
	for _, m := range mounts {
		counts, err := client.InodeCounts(ctx, m.Path)
		if err != nil {
			return err
		}
		total := counts.Loaded + counts.Unloaded
		if total <= threshold {
			continue
		}
		tracker.AddProblem(ctx, &HighInodeCount{
			mount:     m.Path,
			total:     total,
			threshold: threshold,
			client:    client,
		})
	}
	return nil
}

// HighInodeCount reports a mount tracking more inodes than the
// configured threshold and can invalidate the non-materialized ones.
type HighInodeCount struct {
	mount     string
	total     uint64
	threshold uint64
	client    daemon.Client
}

func (p *HighInodeCount) Description() string {
	return fmt.Sprintf("Mount point %s is tracking %d inodes, above the threshold of %d.", p.mount, p.total, p.threshold)
}

func (p *HighInodeCount) Severity() Severity  { return SeverityAdvice }
func (p *HighInodeCount) Remediation() string { return "" }

func (p *HighInodeCount) DryRunMessage() string {
	return fmt.Sprintf("Would invalidate non-materialized inodes in %s", p.mount)
}

func (p *HighInodeCount) StartMessage() string {
	return fmt.Sprintf("Invalidating non-materialized inodes in %s", p.mount)
}

func (p *HighInodeCount) Fix(ctx context.Context) error {
	if err := p.client.InvalidateNonMaterialized(ctx, p.mount); err != nil {
		return err
	}
	counts, err := p.client.InodeCounts(ctx, p.mount)
	if err != nil {
		return err
	}
	if total := counts.Loaded + counts.Unloaded; total > p.threshold {
		return &RemediationError{Message: fmt.Sprintf("%s is still tracking %d inodes after invalidation", p.mount, total)}
	}
	return nil
}

// ExtensionLists filters the hg extensions a checkout may enable.
type ExtensionLists struct {
	Allow []string
	Block []string
	Warn  []string
}

// checkExtensions compares the extensions enabled for a checkout's
// backing repository against the configured allow/block/warn lists.
func checkExtensions(ctx context.Context, tracker Tracker, co *checkout.Checkout, repo scm.Repo, lists ExtensionLists) error {
	enabled, err := repo.Extensions(ctx)
	if err != nil {
		return err
	}
	allowed := make(map[string]bool, len(lists.Allow))
	for _, name := range lists.Allow {
		allowed[name] = true
	}
	blocked := make(map[string]bool, len(lists.Block))
	for _, name := range lists.Block {
		blocked[name] = true
	}
	warned := make(map[string]bool, len(lists.Warn))
	for _, name := range lists.Warn {
		warned[name] = true
	}

	for _, name := range enabled {
		if allowed[name] {
			continue
		}
		switch {
		case blocked[name]:
			tracker.AddProblem(ctx, NewProblem(
				fmt.Sprintf("The hg extension %q is enabled for %s but is known to corrupt vireo checkouts.", name, co.Path),
				fmt.Sprintf("Disable it with `hg config --edit` (extensions.%s = !) before using this checkout.", name),
				SeverityError,
			))
		case warned[name]:
			tracker.AddProblem(ctx, NewProblem(
				fmt.Sprintf("The hg extension %q is enabled for %s and may behave poorly on virtual checkouts.", name, co.Path),
				fmt.Sprintf("Consider disabling extensions.%s for this checkout.", name),
				SeverityAdvice,
			))
		}
	}
	return nil
}
