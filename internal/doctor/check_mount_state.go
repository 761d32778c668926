package doctor

import (
	"context"
	"fmt"

	"github.com/vireofs/vireo/internal/checkout"
	"github.com/vireofs/vireo/internal/daemon"
)

// checkMountState verifies that a configured checkout is actually
// mounted and running. It returns whether the remaining per-checkout
// checks make sense for this mount.
func checkMountState(ctx context.Context, tracker Tracker, co *checkout.Checkout, mounts []daemon.MountInfo, client daemon.Client) bool {
	for _, m := range mounts {
		if m.Path != co.Path {
			continue
		}
		switch m.State {
		case daemon.MountRunning:
			return true
		default:
			tracker.AddProblem(ctx, NewProblem(
				fmt.Sprintf("Mount point %s is currently %s.", co.Path, m.State),
				"This is often transient. Wait a few seconds and re-run vireo doctor.",
				SeverityPotentiallySerious,
			))
			return false
		}
	}
	tracker.AddProblem(ctx, &CheckoutNotMounted{checkout: co, client: client})
	return false
}

// CheckoutNotMounted reports a configured checkout absent from the
// daemon's mount list.
type CheckoutNotMounted struct {
	checkout *checkout.Checkout
	client   daemon.Client
}

func (p *CheckoutNotMounted) Description() string {
	return fmt.Sprintf("%s is configured but not mounted.", p.checkout.Path)
}

func (p *CheckoutNotMounted) Severity() Severity  { return SeverityError }
func (p *CheckoutNotMounted) Remediation() string { return "" }

func (p *CheckoutNotMounted) DryRunMessage() string {
	return fmt.Sprintf("Would remount %s", p.checkout.Path)
}

func (p *CheckoutNotMounted) StartMessage() string {
	return fmt.Sprintf("Remounting %s", p.checkout.Path)
}

func (p *CheckoutNotMounted) Fix(ctx context.Context) error {
	if err := p.client.Mount(ctx, p.checkout.Path); err != nil {
		return err
	}
	mounts, err := p.client.ListMounts(ctx)
	if err != nil {
		return err
	}
	for _, m := range mounts {
		if m.Path == p.checkout.Path {
			return nil
		}
	}
	return &RemediationError{Message: fmt.Sprintf("%s is still not mounted", p.checkout.Path)}
}
