package doctor

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vireofs/vireo/internal/checkout"
	"github.com/vireofs/vireo/internal/daemon"
	"github.com/vireofs/vireo/internal/scm"
)

// metadataChecker validates one piece of a checkout's hg metadata.
// Check returns the problem lines it found; Repair rewrites the state so
// a subsequent Check passes.
type metadataChecker interface {
	Check(ctx context.Context) []string
	Repair(ctx context.Context) error
}

// checkVCSMetadata runs every metadata checker for a checkout and bundles
// all findings into a single fixable problem.
func checkVCSMetadata(ctx context.Context, tracker Tracker, co *checkout.Checkout, repo scm.Repo, client daemon.Client) {
	checkers := []metadataChecker{
		&dirstateChecker{checkout: co, repo: repo, client: client},
		newFileChecker(co, checkout.RequiresFile, nil, requiresValid),
		newFileChecker(co, checkout.SharedPathFile, []byte(scm.MetadataDir(co.BackingRepo)), nil),
		newFileChecker(co, checkout.SharedFile, []byte("bookmarks\n"), nil),
		newFileChecker(co, checkout.BookmarksFile, []byte{}, nil),
		newFileChecker(co, checkout.BranchFile, []byte("default\n"), nil),
		&abandonedTransactionChecker{repo: repo},
	}

	var lines []string
	var failed []metadataChecker
	for _, c := range checkers {
		if found := c.Check(ctx); len(found) > 0 {
			lines = append(lines, found...)
			failed = append(failed, c)
		}
	}
	if len(lines) == 0 {
		return
	}
	tracker.AddProblem(ctx, &CheckoutMetadataError{
		checkout: co,
		lines:    lines,
		failed:   failed,
	})
}

// CheckoutMetadataError bundles every metadata defect found in one
// checkout. Its fix repairs each failed checker and verifies the result.
type CheckoutMetadataError struct {
	checkout *checkout.Checkout
	lines    []string
	failed   []metadataChecker
}

func (p *CheckoutMetadataError) Description() string {
	return fmt.Sprintf("Found inconsistent/missing data in %s:\n  %s", p.checkout.MetadataDir(), strings.Join(p.lines, "\n  "))
}

func (p *CheckoutMetadataError) Severity() Severity  { return SeverityError }
func (p *CheckoutMetadataError) Remediation() string { return "" }

func (p *CheckoutMetadataError) DryRunMessage() string {
	return fmt.Sprintf("Would repair hg directory contents for %s", p.checkout.Path)
}

func (p *CheckoutMetadataError) StartMessage() string {
	return fmt.Sprintf("Repairing hg directory contents for %s", p.checkout.Path)
}

func (p *CheckoutMetadataError) Fix(ctx context.Context) error {
	if err := os.MkdirAll(p.checkout.MetadataDir(), 0o755); err != nil {
		return err
	}
	for _, c := range p.failed {
		if err := c.Repair(ctx); err != nil {
			return err
		}
	}
	var remaining []string
	for _, c := range p.failed {
		remaining = append(remaining, c.Check(ctx)...)
	}
	if len(remaining) > 0 {
		return &RemediationError{Message: fmt.Sprintf("%s still has errors after repair:\n  %s", p.checkout.MetadataDir(), strings.Join(remaining, "\n  "))}
	}
	return nil
}

// fileChecker validates one metadata file against expected contents, or
// against a predicate when the contents are not fixed.
type fileChecker struct {
	checkout *checkout.Checkout
	name     string
	want     []byte
	valid    func(data []byte) bool
}

func newFileChecker(co *checkout.Checkout, name string, want []byte, valid func([]byte) bool) *fileChecker {
	return &fileChecker{checkout: co, name: name, want: want, valid: valid}
}

func (c *fileChecker) path() string {
	return c.checkout.MetadataPath(c.name)
}

func (c *fileChecker) Check(ctx context.Context) []string {
	data, err := os.ReadFile(c.path())
	if err != nil {
		return []string{fmt.Sprintf("error reading %s: %v", c.path(), err)}
	}
	ok := false
	if c.valid != nil {
		ok = c.valid(data)
	} else {
		ok = bytes.Equal(data, c.want)
	}
	if !ok {
		return []string{fmt.Sprintf("unexpected contents in %s", c.path())}
	}
	return nil
}

func (c *fileChecker) Repair(ctx context.Context) error {
	want := c.want
	if c.valid != nil {
		want = defaultRequires()
	}
	return os.WriteFile(c.path(), want, 0o644)
}

// requiresValid accepts a requires file listing the vireofs extension.
func requiresValid(data []byte) bool {
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == checkout.RequiresMarker {
			return true
		}
	}
	return false
}

func defaultRequires() []byte {
	return []byte(checkout.RequiresMarker + "\nrevlogv1\nstore\n")
}

// abandonedTransactionChecker looks for an interrupted transaction in the
// backing repository.
type abandonedTransactionChecker struct {
	repo scm.Repo
}

func (c *abandonedTransactionChecker) Check(ctx context.Context) []string {
	journal := scm.JournalPath(c.repo.Root())
	if _, err := os.Lstat(journal); err == nil {
		return []string{fmt.Sprintf("%s contains an abandoned transaction", c.repo.Root())}
	}
	return nil
}

func (c *abandonedTransactionChecker) Repair(ctx context.Context) error {
	return c.repo.Recover(ctx)
}

// dirstateChecker validates the working copy parents recorded in the
// dirstate and the daemon's snapshot against the backing repository,
// which is the source of truth for which commits exist.
type dirstateChecker struct {
	checkout *checkout.Checkout
	repo     scm.Repo
	client   daemon.Client

	// set during Check, consumed by Repair
	winner      []byte
	winnerP2    []byte
	oldSnapshot []byte
	oldP1       []byte
	oldP2       []byte
}

func (c *dirstateChecker) Check(ctx context.Context) []string {
	var lines []string

	parents, err := c.checkout.DirstateParents()
	switch {
	case err == nil:
		c.oldP1, c.oldP2 = parents.P1, parents.P2
	default:
		var perr *checkout.ParseError
		if errors.As(err, &perr) {
			lines = append(lines, fmt.Sprintf("error parsing %s: %s", c.checkout.MetadataPath(checkout.DirstateFile), perr.Msg))
		} else {
			lines = append(lines, fmt.Sprintf("error reading %s: %v", c.checkout.MetadataPath(checkout.DirstateFile), err))
		}
	}

	snap, err := c.checkout.Snapshot()
	if err != nil {
		lines = append(lines, fmt.Sprintf("error parsing snapshot file for %s: %v", c.checkout.Path, err))
	} else {
		c.oldSnapshot = snap.P1
	}

	snapValid := c.oldSnapshot != nil && c.commitExists(ctx, c.oldSnapshot)
	p1Valid := c.oldP1 != nil && c.commitExists(ctx, c.oldP1)
	p2Valid := c.oldP2 == nil || scm.IsNull(c.oldP2) || c.commitExists(ctx, c.oldP2)

	if c.oldSnapshot != nil && !snapValid {
		lines = append(lines, fmt.Sprintf("snapshot file points to a bad commit: %s", scm.HexHash(c.oldSnapshot)))
	}
	if c.oldP1 != nil && !p1Valid {
		lines = append(lines, fmt.Sprintf("working copy parent points to a bad commit: %s", scm.HexHash(c.oldP1)))
	}
	if !p2Valid {
		lines = append(lines, fmt.Sprintf("second working copy parent points to a bad commit: %s", scm.HexHash(c.oldP2)))
	}

	switch {
	case snapValid:
		c.winner = c.oldSnapshot
		if p1Valid && !bytes.Equal(c.oldP1, c.oldSnapshot) {
			lines = append(lines, fmt.Sprintf("hg's parent commit is %s, but vireod's internal parent commit is %s", scm.HexHash(c.oldP1), scm.HexHash(c.oldSnapshot)))
		}
	case p1Valid:
		// The dirstate is the best surviving record; keep both parents
		// so an in-progress merge is not flattened.
		c.winner = c.oldP1
		if p2Valid && c.oldP2 != nil && !scm.IsNull(c.oldP2) {
			c.winnerP2 = c.oldP2
		}
	default:
		// Neither record is usable; fall back to the backing repo's
		// tip, and to the null commit when even that fails.
		c.winner = scm.NullHash
		if tip, err := c.repo.TipCommit(ctx); err == nil {
			if raw, err := hex.DecodeString(tip); err == nil && len(raw) == scm.HashLen {
				c.winner = raw
			}
		}
	}
	return lines
}

func (c *dirstateChecker) Repair(ctx context.Context) error {
	if c.winner == nil {
		return nil
	}
	if err := c.checkout.WriteDirstateParents(c.winner, c.winnerP2); err != nil {
		return err
	}
	if !bytes.Equal(c.winner, c.oldSnapshot) {
		if err := c.client.ResetParentCommits(ctx, c.checkout.Path, c.winner); err != nil {
			return err
		}
	}
	return nil
}

func (c *dirstateChecker) commitExists(ctx context.Context, hash []byte) bool {
	// The null revision always exists.
	if scm.IsNull(hash) {
		return true
	}
	ok, err := c.repo.CommitExists(ctx, scm.HexHash(hash))
	return err == nil && ok
}
