// Package identity computes the verifiable identity of a file: its SHA-256
// digest, a content-sniffed media type and the metadata snapshot that makes
// up an evidence record.
//
// # Digest
//
// ComputeDigest streams the file through SHA-256 in ChunkSize reads, so memory
// use is constant for arbitrarily large files. Identical bytes always produce
// the same 64-character lowercase hex digest.
//
// # Media Type
//
// ClassifyType inspects file content with github.com/gabriel-vasile/mimetype,
// never the extension alone. Inconclusive content yields
// application/octet-stream; classification never fails.
//
// # Metadata
//
// Extractor.ExtractMetadata reads the file once, hashing it while capturing
// the head for type detection and signature rules, and builds a complete
// evidence.EvidenceRecord. Discovery and extraction are not atomic with
// respect to the filesystem, so a file that vanished in between surfaces as
// evidence.ErrUnreadablePath for that file only.
//
// Owner and birth time come from statx(2) on Linux and stat(2) on Darwin.
// Where the platform does not expose a birth time, the inode change time is
// used.
package identity
