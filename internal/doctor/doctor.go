package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vireofs/vireo/internal/checkout"
	"github.com/vireofs/vireo/internal/daemon"
	"github.com/vireofs/vireo/internal/mtab"
	"github.com/vireofs/vireo/internal/output"
	"github.com/vireofs/vireo/internal/scm"
	"github.com/vireofs/vireo/internal/style"
	"github.com/vireofs/vireo/internal/watcher"
)

// Options tune a doctor run.
type Options struct {
	DryRun              bool
	CLIVersion          string
	MinSeverity         Severity
	IgnoredKinds        []string
	InodeCountThreshold uint64
	SlowImportThreshold time.Duration
	Extensions          ExtensionLists

	// CWD and UID default to the calling process's values.
	CWD string
	UID int
}

// Collaborators are the external systems doctor inspects. All of them
// are injected; production wiring lives in cmd/vireo.
type Collaborators struct {
	Daemon     daemon.Client
	MountTable mtab.MountTable
	Watcher    watcher.Client
	// OpenRepo returns a handle on a backing repository root.
	OpenRepo func(root string) scm.Repo
	// Probe reports the on-disk mode of a path.
	Probe DiskProbe
	// Checkouts are the configured working copies, in any order.
	Checkouts []*checkout.Checkout
}

// Doctor runs one diagnostic pass.
type Doctor struct {
	opts   Options
	collab Collaborators
	out    *output.Printer
	styles *style.Renderer
	fixer  *ProblemFixer
}

func New(out *output.Printer, styles *style.Renderer, opts Options, collab Collaborators) *Doctor {
	fopts := FixerOptions{MinSeverity: opts.MinSeverity, IgnoredKinds: opts.IgnoredKinds}
	var fixer *ProblemFixer
	if opts.DryRun {
		fixer = NewDryRunFixer(out, styles, fopts)
	} else {
		fixer = NewFixer(out, styles, fopts)
	}
	if opts.CWD == "" {
		opts.CWD, _ = os.Getwd()
	}
	if opts.UID == 0 {
		opts.UID = os.Getuid()
	}
	return &Doctor{opts: opts, collab: collab, out: out, styles: styles, fixer: fixer}
}

// Fixer exposes the run's problem counters.
func (d *Doctor) Fixer() *ProblemFixer {
	return d.fixer
}

// Run performs one diagnostic pass and returns the process exit code.
// An error means a check failed before it could classify anything; fix
// failures never surface here.
func (d *Doctor) Run(ctx context.Context) (int, error) {
	status, err := d.collab.Daemon.Status(ctx)
	if err != nil {
		return 1, fmt.Errorf("failed to determine vireod status: %w", err)
	}
	switch status {
	case daemon.StatusDead:
		if len(d.collab.Checkouts) == 0 {
			d.out.Println("vireod is not in use.")
			return 0, nil
		}
		d.fixer.AddProblem(ctx, &DaemonNotRunning{NewProblem(
			"vireod is not running.",
			"Run `vireo start` to start it, then re-run vireo doctor.",
			SeverityError,
		)})
		d.summarize()
		return 1, nil
	case daemon.StatusStarting, daemon.StatusStopping:
		d.fixer.AddProblem(ctx, NewProblem(
			fmt.Sprintf("vireod is currently %s.", status),
			"Wait a few seconds and re-run vireo doctor.",
			SeverityPotentiallySerious,
		))
		d.summarize()
		return 1, nil
	}

	mounts, err := d.collab.Daemon.ListMounts(ctx)
	if err != nil {
		return 1, fmt.Errorf("failed to list mounts: %w", err)
	}

	d.checkStaleWorkingDirectory(ctx, mounts)

	checkouts := make([]*checkout.Checkout, len(d.collab.Checkouts))
	copy(checkouts, d.collab.Checkouts)
	sort.Slice(checkouts, func(i, j int) bool { return checkouts[i].Path < checkouts[j].Path })

	for _, co := range checkouts {
		if !checkMountState(ctx, d.fixer, co, mounts, d.collab.Daemon) {
			continue
		}
		repo := d.collab.OpenRepo(co.BackingRepo)
		checkVCSMetadata(ctx, d.fixer, co, repo, d.collab.Daemon)
		checkInodeConsistency(ctx, d.fixer, co, d.collab.Daemon, d.collab.Probe)
		checkRedirections(ctx, d.fixer, co)
		if d.collab.Watcher != nil {
			if err := checkWatcher(ctx, d.fixer, co, d.collab.Watcher); err != nil {
				return 1, fmt.Errorf("failed to check the watchman watch for %s: %w", co.Path, err)
			}
		}
	}

	if err := checkStaleMounts(ctx, d.fixer, d.collab.MountTable, uint32(d.opts.UID)); err != nil {
		return 1, fmt.Errorf("failed to scan for stale mounts: %w", err)
	}
	if err := checkVersionSkew(ctx, d.fixer, d.collab.Daemon, d.opts.CLIVersion); err != nil {
		return 1, fmt.Errorf("failed to compare versions: %w", err)
	}
	if err := checkSlowImports(ctx, d.fixer, d.collab.Daemon, d.opts.SlowImportThreshold); err != nil {
		return 1, fmt.Errorf("failed to read daemon counters: %w", err)
	}
	if err := checkInodeCounts(ctx, d.fixer, d.collab.Daemon, mounts, d.opts.InodeCountThreshold); err != nil {
		return 1, fmt.Errorf("failed to read inode counts: %w", err)
	}
	for _, co := range checkouts {
		if err := checkExtensions(ctx, d.fixer, co, d.collab.OpenRepo(co.BackingRepo), d.opts.Extensions); err != nil {
			return 1, fmt.Errorf("failed to list hg extensions for %s: %w", co.Path, err)
		}
	}

	d.summarize()
	return d.exitCode(), nil
}

// DaemonNotRunning reports a dead daemon with checkouts configured.
type DaemonNotRunning struct {
	BaseProblem
}

// checkStaleWorkingDirectory warns when the caller's cwd sits on a
// mount instance that has since been replaced.
func (d *Doctor) checkStaleWorkingDirectory(ctx context.Context, mounts []daemon.MountInfo) {
	if d.opts.CWD == "" {
		return
	}
	st, err := d.collab.MountTable.LStat(d.opts.CWD)
	if err != nil {
		if errors.Is(err, unix.ENOTCONN) {
			d.fixer.AddProblem(ctx, newStaleWorkingDirectory(d.opts.CWD))
		}
		return
	}
	for _, m := range mounts {
		if m.Device == 0 || !pathWithin(d.opts.CWD, m.Path) {
			continue
		}
		if st.Dev != m.Device {
			d.fixer.AddProblem(ctx, newStaleWorkingDirectory(d.opts.CWD))
		}
		return
	}
}

func pathWithin(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

// StaleWorkingDirectory reports that the caller's shell is sitting in a
// dead mount instance.
type StaleWorkingDirectory struct {
	BaseProblem
}

func newStaleWorkingDirectory(cwd string) *StaleWorkingDirectory {
	return &StaleWorkingDirectory{NewProblem(
		fmt.Sprintf("Your working directory %s appears to be on a stale mount instance.", cwd),
		"Run `cd / && cd -` to move your shell onto the live mount.",
		SeverityAdvice,
	)}
}

func (d *Doctor) summarize() {
	f := d.fixer
	switch {
	case f.NumProblems == 0:
		d.out.Println("No issues detected.")
	case f.DryRun():
		d.out.Println(d.styles.Warning(fmt.Sprintf("Discovered %s during --dry-run", plural(f.NumProblems, "problem"))))
	case f.NumManualFixes > 0 || f.NumFailedFixes > 0 || f.NumNoFixes > 0:
		n := f.NumManualFixes + f.NumFailedFixes + f.NumNoFixes
		if n == 1 {
			d.out.Println(d.styles.Warning("1 issue requires manual attention."))
		} else {
			d.out.Println(d.styles.Warning(fmt.Sprintf("%d issues require manual attention.", n)))
		}
	case f.NumFixed > 0:
		d.out.Println(d.styles.Success(fmt.Sprintf("Successfully fixed %s.", plural(f.NumFixed, "problem"))))
	default:
		d.out.Println(d.styles.Warning(fmt.Sprintf("%s with recommended fixes.", plural(f.NumAdvisoryFixes, "issue"))))
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func (d *Doctor) exitCode() int {
	f := d.fixer
	if f.NumProblems == 0 {
		return 0
	}
	if !f.DryRun() && f.NumFixed == f.NumProblems {
		return 0
	}
	return 1
}
