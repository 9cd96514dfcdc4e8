// Package processing consumes discovered files, extracts their identity and
// persists evidence records with their chain-of-custody entries.
//
// # Queue Contract
//
// Processor.Run starts Workers goroutines that read from a single channel
// until it is closed and drained. The channel may be fed concurrently by a
// live discovery pass or pre-populated and closed before Run starts; both
// work the same way.
//
// # Per-File Outcomes
//
//   - Collected: the record and its evidence_collected entry were committed
//   - AlreadyCollected: an identical record exists (same case, path and
//     content), so re-runs are idempotent
//   - Failed: the file could not be read or stored; a collection_failed
//     custody entry describes why
//
// There is no retry loop. A failure is reported once per file.
//
// # Cancellation
//
// The context is checked between files. Records already committed stay
// valid and Run returns the partial Stats with ctx.Err().
//
// A sealed case stops the run with evidence.ErrCaseSealed.
package processing
