// Package doctor provides diagnostic and repair functionality for vireo
// checkouts.
//
// A run inspects the live system against a catalog of known failure
// modes and, unless started in dry-run mode, applies verified fixes:
//
//   - Mount health: stale or hanging vireofs mounts left behind by a
//     previous daemon instance, and configured checkouts that are not
//     mounted at all.
//
//   - Working copy metadata: corrupt or missing files under .hg,
//     dirstate parents or snapshot records pointing at commits the
//     backing repository does not know, and abandoned transactions.
//
//   - Inode consistency: disagreements between the daemon's materialized
//     inode records and what is actually on disk.
//
//   - Environment: misconfigured redirections, wrong watchman watcher
//     types, daemon/CLI version skew, slow backing-store imports,
//     excessive inode counts and problematic hg extensions.
//
// # Usage
//
//	d := doctor.New(out, styles, opts, collab)
//	code, err := d.Run(ctx)
//
// Every detected issue flows through a [ProblemFixer], which reports it,
// applies the fix when one exists, and keeps outcome counters. Fix
// failures are reported and counted but never abort the run.
package doctor
