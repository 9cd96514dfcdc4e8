// Package pipeline wires discovery and processing into a collection run.
//
//	Discovery ──▶ bounded queue ──▶ Processing (N workers) ──▶ Store
//
// Discovery is the single producer; it closes the queue when its walk is
// done. Processing workers exit after the queue is closed and drained, so
// Collect returns only when every accepted file has been recorded or has a
// collection_failed custody entry.
//
// Packaging is not part of the pipeline. Call packaging.Packager only after
// Collect has returned for the case.
package pipeline
