package doctor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/vireofs/vireo/internal/checkout"
	"github.com/vireofs/vireo/internal/log"
	"github.com/vireofs/vireo/internal/mtab"
)

// staleMount is one vireofs mount the daemon no longer serves.
type staleMount struct {
	path string
	kind mtab.MountKind
}

// scanStaleMounts probes every vireofs mount owned by the caller and
// classifies it as stale (transport gone), hanging (probe timed out) or
// active. Results come back sorted by path.
func scanStaleMounts(ctx context.Context, table mtab.MountTable, uid uint32) (stale, hanging []staleMount, err error) {
	mounts, err := table.Read()
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[staleMount]bool)
	var candidates []staleMount
	for _, m := range mounts {
		if !strings.HasPrefix(string(m.Device), mtab.DevicePrefix) {
			continue
		}
		kind, ok := mtab.VFSTypeKind(m.VFSType)
		if !ok {
			continue
		}
		c := staleMount{path: string(m.MountPoint), kind: kind}
		if seen[c] {
			continue
		}
		seen[c] = true
		candidates = append(candidates, c)
	}

	logger := log.FromContext(ctx)
	activeDevs := make(map[uint64]bool)
	type probed struct {
		mount    staleMount
		dev      uint64
		devKnown bool
		state    int // 0 active, 1 stale, 2 hanging
	}
	var results []probed
	for _, c := range candidates {
		p := probed{mount: c}
		st, statErr := table.LStat(c.path)
		if statErr == nil {
			if st.UID != uid {
				continue
			}
			p.dev, p.devKnown = st.Dev, true
		}

		switch perr := table.CheckPathAccess(filepath.Join(c.path, checkout.MarkerDir), c.kind); {
		case perr == nil:
			if p.devKnown {
				activeDevs[p.dev] = true
			}
		case errors.Is(perr, unix.ENOTCONN) || errors.Is(perr, unix.ENXIO):
			p.state = 1
		case errors.Is(perr, unix.ETIMEDOUT):
			p.state = 2
		default:
			logger.Printf("warning: unclear lifetime state for mount %s: %v\n", c.path, perr)
		}
		results = append(results, p)
	}

	for _, p := range results {
		switch p.state {
		case 1:
			// A device shared with a live mount means this row is a
			// bind-mount alias of something still being served. An
			// unstattable root has no device to share.
			if p.devKnown && activeDevs[p.dev] {
				continue
			}
			stale = append(stale, p.mount)
		case 2:
			hanging = append(hanging, p.mount)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].path < stale[j].path })
	sort.Slice(hanging, func(i, j int) bool { return hanging[i].path < hanging[j].path })
	return stale, hanging, nil
}

// checkStaleMounts reports stale and hanging vireofs mounts.
func checkStaleMounts(ctx context.Context, tracker Tracker, table mtab.MountTable, uid uint32) error {
	stale, hanging, err := scanStaleMounts(ctx, table, uid)
	if err != nil {
		return err
	}
	if len(hanging) > 0 {
		tracker.AddProblem(ctx, newHangingMountFound(hanging))
	}
	if len(stale) > 0 {
		tracker.AddProblem(ctx, &StaleMountsFound{
			mounts: stale,
			table:  table,
			uid:    uid,
		})
	}
	return nil
}

func mountList(mounts []staleMount) string {
	var b strings.Builder
	for _, m := range mounts {
		fmt.Fprintf(&b, "  %s (%s)\n", m.path, m.kind)
	}
	return b.String()
}

// HangingMountFound reports mounts whose probes time out. Forcing an
// unmount of a hung mount risks hanging the kernel, so there is no
// automatic fix.
type HangingMountFound struct {
	BaseProblem
}

func newHangingMountFound(mounts []staleMount) *HangingMountFound {
	return &HangingMountFound{NewProblem(
		fmt.Sprintf("Found %d hanging mount point(s):\n%sThis can indicate a wedged vireod instance.", len(mounts), mountList(mounts)),
		"Try restarting vireod. If the mount remains hung, rebooting is the only safe recovery.",
		SeverityPotentiallySerious,
	)}
}

// StaleMountsFound reports mounts left behind by a previous vireod
// instance and can unmount them.
type StaleMountsFound struct {
	mounts []staleMount
	table  mtab.MountTable
	uid    uint32
}

func (p *StaleMountsFound) Description() string {
	return fmt.Sprintf("Found %d stale vireofs mount point(s):\n%sStale mounts keep returning errors for every access.", len(p.mounts), mountList(p.mounts))
}

func (p *StaleMountsFound) Severity() Severity  { return SeverityPotentiallySerious }
func (p *StaleMountsFound) Remediation() string { return "" }

func (p *StaleMountsFound) DryRunMessage() string {
	return fmt.Sprintf("Would unmount %d stale vireofs mount point(s)", len(p.mounts))
}

func (p *StaleMountsFound) StartMessage() string {
	return fmt.Sprintf("Unmounting %d stale vireofs mount point(s)", len(p.mounts))
}

// Fix lazily unmounts every stale mount, then re-scans and force-unmounts
// anything still stale. Mounts surviving both passes fail the fix.
func (p *StaleMountsFound) Fix(ctx context.Context) error {
	if !p.table.CanUnmount() {
		return &RemediationError{Message: "Unmounting requires elevated privileges. Retry with sudo."}
	}
	for _, m := range p.mounts {
		p.table.UnmountLazy(m.path)
	}
	remaining, _, err := scanStaleMounts(ctx, p.table, p.uid)
	if err != nil {
		return err
	}
	var failed []string
	for _, m := range remaining {
		if !p.table.UnmountForce(m.path) {
			failed = append(failed, m.path)
		}
	}
	if len(failed) > 0 {
		return &RemediationError{Message: fmt.Sprintf("Failed to unmount %d mount point(s):\n  %s", len(failed), strings.Join(failed, "\n  "))}
	}
	return nil
}
