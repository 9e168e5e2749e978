package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/desertthunder/gpyt/internal/ledger"
)

// LedgerRepository is a ledger backend over the ledger_entries table.
// It implements ledger.Backend; Commit replaces all rows in one transaction.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a new LedgerRepository with the given database connection
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Load returns every entry with its created_at.
func (r *LedgerRepository) Load(ctx context.Context) (map[string]ledger.Entry, error) {
	return loadEntries(ctx, r.db)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadEntries(ctx context.Context, q queryer) (map[string]ledger.Entry, error) {
	rows, err := q.QueryContext(ctx, `SELECT source_key, destination_ref, created_at FROM ledger_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	entries := map[string]ledger.Entry{}
	for rows.Next() {
		var key string
		var entry ledger.Entry
		if err := rows.Scan(&key, &entry.Ref, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries[key] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Commit makes the table equal to entries. Entries without a creation time are stored with the current
// time, or keep the stored one when their reference did not change.
func (r *LedgerRepository) Commit(ctx context.Context, entries map[string]ledger.Entry) error {
	return withTx(r.db, "ledger", func(tx *sql.Tx) error {
		existing, err := loadEntries(ctx, tx)
		if err != nil {
			return err
		}

		for key := range existing {
			if _, ok := entries[key]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE source_key = ?`, key); err != nil {
				return fmt.Errorf("failed to delete ledger entry: %w", err)
			}
		}

		upsert, err := tx.PrepareContext(ctx, `
			INSERT INTO ledger_entries (source_key, destination_ref, created_at) VALUES (?, ?, ?)
			ON CONFLICT(source_key) DO UPDATE SET destination_ref = excluded.destination_ref, created_at = excluded.created_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer upsert.Close()

		now := time.Now().UTC()
		for _, key := range slices.Sorted(maps.Keys(entries)) {
			entry := entries[key]
			prev, ok := existing[key]
			if entry.CreatedAt.IsZero() {
				entry.CreatedAt = now
				if ok && prev.Ref == entry.Ref {
					continue
				}
			}
			if ok && prev.Ref == entry.Ref && prev.CreatedAt.Equal(entry.CreatedAt) {
				continue
			}

			if _, err := upsert.ExecContext(ctx, key, entry.Ref, entry.CreatedAt.UTC()); err != nil {
				return fmt.Errorf("failed to write ledger entry: %w", err)
			}
		}
		return nil
	})
}
