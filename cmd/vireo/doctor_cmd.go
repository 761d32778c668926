package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vireofs/vireo/internal/checkout"
	"github.com/vireofs/vireo/internal/daemon"
	"github.com/vireofs/vireo/internal/doctor"
	"github.com/vireofs/vireo/internal/mtab"
	"github.com/vireofs/vireo/internal/output"
	"github.com/vireofs/vireo/internal/scm"
	"github.com/vireofs/vireo/internal/style"
	"github.com/vireofs/vireo/internal/watcher"
)

func newDoctorCmd() *cobra.Command {
	var dryRun bool
	var minSeverity string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose and repair checkout issues",
		Args:  cobra.NoArgs,
		Long: `Diagnose and repair issues with vireo checkouts.

Checks:
- vireod is running and serving every configured checkout
- No stale or hanging vireofs mounts are left behind
- Working copy metadata (.hg) is intact and points at real commits
- The daemon's inode records match what is on disk
- Redirections, watchman watches, versions and hg extensions are sane

Examples:
  vireo doctor            # Check and fix issues
  vireo doctor --dry-run  # Report issues without changing anything`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if minSeverity == "" {
				minSeverity = cfg.Doctor.MinSeverity
			}
			severity, err := doctor.ParseSeverity(minSeverity)
			if err != nil {
				return err
			}

			var checkouts []*checkout.Checkout
			for mountPath, cc := range cfg.Checkouts {
				checkouts = append(checkouts, &checkout.Checkout{
					Path:          mountPath,
					StateDir:      cfg.CheckoutStateDir(mountPath),
					BackingRepo:   cc.BackingRepo,
					CaseSensitive: cc.CaseSensitive,
					Redirections:  cc.Redirections,
				})
			}

			opts := doctor.Options{
				DryRun:              dryRun,
				CLIVersion:          version,
				MinSeverity:         severity,
				IgnoredKinds:        cfg.Doctor.IgnoredProblemKinds,
				InodeCountThreshold: cfg.Doctor.InodeCountThreshold,
				SlowImportThreshold: time.Duration(cfg.Doctor.SlowImportMillis) * time.Millisecond,
				Extensions: doctor.ExtensionLists{
					Allow: cfg.Extensions.Allow,
					Block: cfg.Extensions.Block,
					Warn:  cfg.Extensions.Warn,
				},
			}
			collab := doctor.Collaborators{
				Daemon:     daemon.Connect(cfg.StateDir),
				MountTable: mtab.New(),
				Watcher:    watcher.New(),
				OpenRepo:   func(root string) scm.Repo { return scm.Open(root) },
				Probe:      doctor.LstatProbe,
				Checkouts:  checkouts,
			}

			d := doctor.New(output.FromContext(ctx), style.NewRenderer(os.Stdout), opts, collab)
			code, err := d.Run(ctx)
			if err != nil {
				return err
			}
			if code != 0 {
				return errIssues
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report issues without fixing them")
	cmd.Flags().StringVar(&minSeverity, "min-severity", "", "Minimum problem severity to report (all, advice, potentially-serious, error, meltdown)")

	return cmd
}
