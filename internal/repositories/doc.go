// Package repositories implements SQLite persistence for run history and the sqlite ledger backend.
//
// Key Implementations:
//   - [RunRepository] : migration runs with per-item outcomes, soft deletes and status queries
//   - [LedgerRepository] : ledger.Backend over the ledger_entries table
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #15) independent of UUIDs and creation timestamps.
// Counters live in dedicated <table>_sequence tables; [RunRepository.Create] advances the counter in the
// transaction that inserts the run.
package repositories
