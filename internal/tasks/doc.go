// Package tasks drives a migration from the source library to the destination with real-time progress reporting.
//
// # Core Operation
//
// [MigrationEngine.Run] lists the source page by page. For every item:
//
//  1. [ledger.Ledger.Contains] : already migrated items are skipped
//  2. [TargetProvider] : builds title, description, tags and visibility, or declines the item
//  3. probe size and open the download stream, both retried
//  4. [upload.Session] : chunked resumable upload over an [upload.ChunkCursor]
//  5. [ledger.Ledger.Set] : only after the destination returned the video id
//
// A failed item is reported as an [ItemError] and enumeration continues. [RunResult.Err]
// collects every item failure.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Concurrency
//
// With more than one worker the items of a page are migrated by a worker pool whose item
// starts are rate limited. Pages are still processed one at a time and ledger writes are
// serialized by the ledger.
package tasks
