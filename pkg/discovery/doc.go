// Package discovery enumerates candidate evidence files under scan roots and
// hands them to processing through a bounded channel.
//
// # Policy
//
// Each file is checked against the discovery policy in a fixed order:
//
//  1. Exclusion: rejected if an excluded path is a prefix of it (whole path
//     components only)
//  2. Extension: rejected if an allow-list is configured and the file's
//     extension is not on it (case-insensitive; empty list allows all)
//  3. Size: rejected if larger than the ceiling. The size comes from the
//     directory entry already read by the walk, so no second stat pass is made
//
// Excluded directories are pruned without being read.
//
// # Queue Contract
//
// Discover pushes accepted files one at a time and blocks while the channel is
// full. It never closes the channel; the producer's caller does that after
// Discover returns. The returned Result.Accepted always equals the number of
// values sent.
//
// # Recoverable Problems
//
// Permission-denied subtrees, entries that vanish mid-walk and symlink cycles
// are recorded as warnings and skipped. They never fail the pass.
//
// # Continuous Mode
//
// Watch uses github.com/fsnotify/fsnotify to emit files created or modified
// after the initial pass, debounced per path.
package discovery
