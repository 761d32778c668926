// Package scm provides access to the backing hg repositories that vireo
// checkouts are cloned from.
//
// The backing repository is the source of truth for commit information:
// commit validation queries it directly so that validation works even when
// the checkout's own metadata directory is corrupt.
package scm

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vireofs/vireo/internal/cmd"
)

// HashLen is the length of a raw commit hash in bytes.
const HashLen = 20

// NullHash is the all-zero commit hash. Do not mutate.
var NullHash = make([]byte, HashLen)

// IsNull reports whether h is the null commit hash.
func IsNull(h []byte) bool {
	return bytes.Equal(h, NullHash)
}

// HexHash returns the hex encoding of a raw commit hash.
func HexHash(h []byte) string {
	return hex.EncodeToString(h)
}

// Repo is a handle on a backing repository.
type Repo interface {
	// Root returns the repository root path.
	Root() string
	// CommitExists reports whether the commit exists in the repository.
	CommitExists(ctx context.Context, hexHash string) (bool, error)
	// TipCommit returns the hex hash of the repository's tip commit.
	TipCommit(ctx context.Context) (string, error)
	// Recover rolls back an interrupted transaction.
	Recover(ctx context.Context) error
	// Extensions returns the names of enabled hg extensions.
	Extensions(ctx context.Context) ([]string, error)
}

// HgRepo accesses a backing repository through the hg CLI.
type HgRepo struct {
	root string
}

// Open returns a handle on the backing repository at root.
func Open(root string) *HgRepo {
	return &HgRepo{root: root}
}

// Root returns the repository root path.
func (r *HgRepo) Root() string { return r.root }

// MetadataDir returns a repository's .hg directory.
func MetadataDir(root string) string {
	return filepath.Join(root, ".hg")
}

// JournalPath returns the interrupted-transaction marker location.
func JournalPath(root string) string {
	return filepath.Join(root, ".hg", "store", "journal")
}

// CommitExists reports whether the commit exists. An "unknown revision"
// response is a clean false; any other failure is an error.
func (r *HgRepo) CommitExists(ctx context.Context, hexHash string) (bool, error) {
	_, err := cmd.OutputContext(ctx, r.root, "hg", "log", "-r", hexHash, "-T", "{node}")
	if err != nil {
		if strings.Contains(err.Error(), "unknown revision") {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up commit %s: %w", hexHash, err)
	}
	return true, nil
}

// TipCommit returns the hex hash of the tip commit.
func (r *HgRepo) TipCommit(ctx context.Context) (string, error) {
	out, err := cmd.OutputContext(ctx, r.root, "hg", "log", "-r", "tip", "-T", "{node}")
	if err != nil {
		return "", fmt.Errorf("failed to resolve tip: %w", err)
	}
	tip := strings.TrimSpace(string(out))
	if len(tip) != 2*HashLen {
		return "", fmt.Errorf("unexpected tip commit %q", tip)
	}
	return tip, nil
}

// Recover rolls back an interrupted transaction with `hg recover`.
func (r *HgRepo) Recover(ctx context.Context) error {
	return cmd.RunContext(ctx, r.root, "hg", "recover")
}

// Extensions returns the enabled hg extension names.
func (r *HgRepo) Extensions(ctx context.Context) ([]string, error) {
	out, err := cmd.OutputContext(ctx, r.root, "hg", "config", "extensions")
	if err != nil {
		// No extensions section configured at all.
		return nil, nil
	}

	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || !strings.HasPrefix(key, "extensions.") {
			continue
		}
		// A leading "!" disables the extension.
		if strings.HasPrefix(strings.TrimSpace(value), "!") {
			continue
		}
		names = append(names, strings.TrimPrefix(key, "extensions."))
	}
	return names, nil
}
