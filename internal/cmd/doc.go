// Package cmd provides helpers for executing shell commands with proper error handling.
//
// This package wraps [os/exec.Cmd] to capture stderr and include it in error
// messages, making command failures more informative for users.
//
// # Usage
//
//	if err := cmd.RunContext(ctx, repoDir, "hg", "recover"); err != nil {
//	    // err contains stderr output if available
//	    return fmt.Errorf("hg recover failed: %w", err)
//	}
//
//	// For commands that return output:
//	out, err := cmd.OutputContext(ctx, "", "watchman", "watch-list")
//
// # Design Notes
//
// vireo shells out to the hg and watchman CLIs rather than using Go
// libraries. This approach is simpler, more reliable, and ensures
// compatibility with user configurations (extensions, shared repos,
// credential helpers, etc.).
package cmd
