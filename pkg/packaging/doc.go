// Package packaging exports cases and seals them into hash-anchored archives.
//
// # Package Layout
//
// CreatePackage writes <case>_package_<NNN>.zip to the output directory:
//
//	manifest.json                  case, scan snapshot, member digests
//	evidence.csv                   CSV export, records sorted by ID
//	evidence.json                  JSON export, same order
//	custody.json                   chain of custody at sealing time
//	evidence/<record id>/<path>    original content, re-hashed on copy
//
// NNN counts up from the number of earlier package_created entries and never
// reuses an existing file name. Re-packaging produces a new archive and a new
// custody entry; earlier packages are never touched.
//
// # Sealing
//
// The archive is written to a temp file, fsynced and renamed into place. Its
// digest is computed from the final file and recorded in a package_created
// custody entry before CreatePackage returns. The case is then marked sealed,
// which makes later inserts fail with evidence.ErrCaseSealed. Sealing never
// deletes records or custody.
//
// Only cases the store knows can be packaged; any other ID fails with
// evidence.ErrUnknownCase. With RequireNonEmpty set, a case without records
// fails with evidence.ErrEmptyCase.
//
// A source file that is missing or no longer matches its recorded digest
// fails the attempt with evidence.ErrPackaging and leaves no archive behind.
//
// # Verification
//
// VerifyPackage recomputes the archive digest, matches it to a
// package_created entry and re-hashes every member. The outcome is itself a
// custody entry.
package packaging
