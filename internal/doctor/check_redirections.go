package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vireofs/vireo/internal/checkout"
)

// checkRedirections verifies that every configured redirection is a
// symlink into the per-checkout redirection store.
func checkRedirections(ctx context.Context, tracker Tracker, co *checkout.Checkout) {
	for _, rel := range co.Redirections {
		link := filepath.Join(co.Path, rel)
		want := co.RedirectionTarget(rel)

		got, err := os.Readlink(link)
		if err == nil && got == want {
			continue
		}
		tracker.AddProblem(ctx, &MisconfiguredRedirection{
			checkout: co,
			rel:      rel,
			link:     link,
			target:   want,
		})
	}
}

// MisconfiguredRedirection reports a redirection whose symlink is
// missing or points somewhere else.
type MisconfiguredRedirection struct {
	checkout *checkout.Checkout
	rel      string
	link     string
	target   string
}

func (p *MisconfiguredRedirection) Description() string {
	return fmt.Sprintf("Redirection %s in %s does not point into the redirection store.", p.rel, p.checkout.Path)
}

func (p *MisconfiguredRedirection) Severity() Severity  { return SeverityPotentiallySerious }
func (p *MisconfiguredRedirection) Remediation() string { return "" }

func (p *MisconfiguredRedirection) DryRunMessage() string {
	return fmt.Sprintf("Would recreate the redirection symlink for %s", p.rel)
}

func (p *MisconfiguredRedirection) StartMessage() string {
	return fmt.Sprintf("Recreating the redirection symlink for %s", p.rel)
}

func (p *MisconfiguredRedirection) Fix(ctx context.Context) error {
	if err := os.MkdirAll(p.target, 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(p.link); err != nil {
		return err
	}
	if err := os.Symlink(p.target, p.link); err != nil {
		return err
	}
	got, err := os.Readlink(p.link)
	if err != nil {
		return err
	}
	if got != p.target {
		return &RemediationError{Message: fmt.Sprintf("%s still points at %s", p.link, got)}
	}
	return nil
}
