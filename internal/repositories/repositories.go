package repositories

import (
	"database/sql"
	"fmt"
	"slices"

	"github.com/desertthunder/gpyt/internal/shared"
)

// sequenceTables are the tables with a <table>_sequence counter.
var sequenceTables = []string{"migration_runs"}

// withTx runs fn in a transaction and commits when fn returns nil.
func withTx(db *sql.DB, what string, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", what, err)
	}
	return nil
}

// NextSequence increments and returns the counter of table in its own transaction.
func NextSequence(db *sql.DB, table string) (int, error) {
	var sequence int
	err := withTx(db, "sequence", func(tx *sql.Tx) error {
		var err error
		sequence, err = nextSequence(tx, table)
		return err
	})
	return sequence, err
}

// nextSequence increments the counter of table inside tx, so it only advances when tx commits.
func nextSequence(tx *sql.Tx, table string) (int, error) {
	if !slices.Contains(sequenceTables, table) {
		return 0, fmt.Errorf("%w: no sequence for table %q", shared.ErrInvalidInput, table)
	}

	var sequence int
	query := fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)
	if err := tx.QueryRow(query).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}
	return sequence, nil
}
