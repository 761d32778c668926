package doctor

import (
	"context"
	"fmt"

	"github.com/vireofs/vireo/internal/checkout"
	"github.com/vireofs/vireo/internal/watcher"
)

// checkWatcher verifies that watchman, when it watches the mount at all,
// uses the vireo watcher. An unwatched mount is not a problem.
func checkWatcher(ctx context.Context, tracker Tracker, co *checkout.Checkout, client watcher.Client) error {
	roots, err := client.WatchList(ctx)
	if err != nil {
		// No watchman installed, or it is not running. Either way
		// there is no watch to misbehave.
		return nil
	}
	watched := false
	for _, root := range roots {
		if root == co.Path {
			watched = true
			break
		}
	}
	if !watched {
		return nil
	}
	current, err := client.WatchProject(ctx, co.Path)
	if err != nil {
		return err
	}
	if current != watcher.VireoWatcher {
		tracker.AddProblem(ctx, &IncorrectWatcherType{
			checkout: co,
			current:  current,
			client:   client,
		})
	}
	return nil
}

// IncorrectWatcherType reports a watchman watch served by the wrong
// watcher. Non-vireo watchers fall back to filesystem crawling, which
// forces the entire checkout to be materialized.
type IncorrectWatcherType struct {
	checkout *checkout.Checkout
	current  string
	client   watcher.Client
}

func (p *IncorrectWatcherType) Description() string {
	return fmt.Sprintf("Watchman is watching %s with the wrong watcher type: %q instead of %q.", p.checkout.Path, p.current, watcher.VireoWatcher)
}

func (p *IncorrectWatcherType) Severity() Severity  { return SeverityPotentiallySerious }
func (p *IncorrectWatcherType) Remediation() string { return "" }

func (p *IncorrectWatcherType) DryRunMessage() string {
	return fmt.Sprintf("Would fix the watchman watch for %s", p.checkout.Path)
}

func (p *IncorrectWatcherType) StartMessage() string {
	return fmt.Sprintf("Fixing the watchman watch for %s", p.checkout.Path)
}

func (p *IncorrectWatcherType) Fix(ctx context.Context) error {
	if err := p.client.WatchDel(ctx, p.checkout.Path); err != nil {
		return err
	}
	got, err := p.client.WatchProject(ctx, p.checkout.Path)
	if err != nil {
		return err
	}
	if got != watcher.VireoWatcher {
		return &RemediationError{Message: fmt.Sprintf("watchman is still using the %q watcher for %s", got, p.checkout.Path)}
	}
	return nil
}
