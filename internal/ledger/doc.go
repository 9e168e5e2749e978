// Package ledger records which source items have been migrated and where they went.
//
// # Model
//
// A [Ledger] is a map from source key to an [Entry]: the destination reference and when it was
// recorded. It is loaded once through a
// [Backend] and shared by everything in the process. Each Set or Delete rewrites the full document
// synchronously, so a crash never loses a completed upload's entry. If a write fails, memory is
// rolled back and the ledger refuses further writes until [Ledger.Reload].
//
// # Backends
//
//   - [SentinelBackend]: a marker item on the source service whose description holds the document
//   - [ObjectBackend]: one object in an S3-compatible bucket
//   - the sqlite repository in package repositories
//
// # Document Format
//
// The document is a JSON object indented by two spaces. Values are {"url": "...", "created_at": "..."}
// with an RFC 3339 time, or a bare reference string for entries recorded without one.
package ledger
