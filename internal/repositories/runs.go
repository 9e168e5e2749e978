package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/shared"
)

const runColumns = `
	id, sequence, status, ledger_backend, pages, items_seen, skipped,
	migrated, failed, bytes_uploaded, last_page_token, error_message,
	started_at, completed_at, created_at, updated_at, deleted_at
`

// RunRepository implements models.Repository[*models.MigrationRun] for run history.
//
// Handles run CRUD operations with soft delete support and status-based queries.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run, assigning its ID and the next sequence number in the same transaction.
func (r *RunRepository) Create(run *models.MigrationRun) error {
	return withTx(r.db, "run", func(tx *sql.Tx) error {
		sequence, err := nextSequence(tx, "migration_runs")
		if err != nil {
			return fmt.Errorf("failed to generate sequence: %w", err)
		}

		run.SetID(shared.GenerateID())
		run.SetSequence(sequence)

		if err := run.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		query := `INSERT INTO migration_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = tx.Exec(query,
			run.ID(),
			sequence,
			run.Status(),
			run.LedgerBackend(),
			run.Pages(),
			run.ItemsSeen(),
			run.Skipped(),
			run.Migrated(),
			run.Failed(),
			run.BytesUploaded(),
			nullable(run.LastPageToken()),
			nullable(run.ErrorMessage()),
			run.StartedAt(),
			run.CompletedAt(),
			run.CreatedAt(),
			run.UpdatedAt(),
			run.DeletedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		return nil
	})
}

// Get retrieves a run by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.MigrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM migration_runs WHERE id = ? AND deleted_at IS NULL`

	run, err := scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", shared.ErrRecordNotFound, id)
	}
	return run, err
}

// Latest returns the most recent run.
func (r *RunRepository) Latest() (*models.MigrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM migration_runs WHERE deleted_at IS NULL ORDER BY sequence DESC LIMIT 1`

	run, err := scanRun(r.db.QueryRow(query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no runs", shared.ErrRecordNotFound)
	}
	return run, err
}

// Update modifies an existing run in the database
func (r *RunRepository) Update(run *models.MigrationRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE migration_runs
		SET status = ?, pages = ?, items_seen = ?, skipped = ?, migrated = ?,
			failed = ?, bytes_uploaded = ?, last_page_token = ?, error_message = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		run.Status(),
		run.Pages(),
		run.ItemsSeen(),
		run.Skipped(),
		run.Migrated(),
		run.Failed(),
		run.BytesUploaded(),
		nullable(run.LastPageToken()),
		nullable(run.ErrorMessage()),
		run.StartedAt(),
		run.CompletedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	return expectRow(result, "run", run.ID())
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	query := `UPDATE migration_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	return expectRow(result, "run", id)
}

// List retrieves all runs matching the given criteria, newest first, excluding soft-deleted runs.
// Supported criteria: "status" (string) and "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.MigrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM migration_runs WHERE deleted_at IS NULL`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.MigrationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// AddItems stores item outcomes for a run in one transaction.
func (r *RunRepository) AddItems(runID string, items []models.RunItem) error {
	return withTx(r.db, "run items", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO run_items (id, run_id, source_key, status, destination_ref, bytes, error_message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now()
		for _, item := range items {
			if item.SourceKey == "" {
				return fmt.Errorf("%w: run item without source key", shared.ErrInvalidInput)
			}
			if _, err := stmt.Exec(
				shared.GenerateID(),
				runID,
				item.SourceKey,
				item.Status,
				nullable(item.DestinationRef),
				item.Bytes,
				nullable(item.ErrorMessage),
				now,
			); err != nil {
				return fmt.Errorf("failed to insert run item: %w", err)
			}
		}
		return nil
	})
}

// Items returns the item outcomes of a run in insertion order.
func (r *RunRepository) Items(runID string) ([]models.RunItem, error) {
	rows, err := r.db.Query(`
		SELECT id, run_id, source_key, status, destination_ref, bytes, error_message, created_at
		FROM run_items
		WHERE run_id = ?
		ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run items: %w", err)
	}
	defer rows.Close()

	var items []models.RunItem
	for rows.Next() {
		var (
			item   models.RunItem
			status string
			ref    sql.NullString
			errMsg sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.RunID, &item.SourceKey, &status, &ref, &item.Bytes, &errMsg, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run item: %w", err)
		}
		item.Status = models.RunItemStatus(status)
		item.DestinationRef = ref.String
		item.ErrorMessage = errMsg.String
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

// scanner is satisfied by [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a [models.MigrationRun]
func scanRun(row scanner) (*models.MigrationRun, error) {
	var (
		id            string
		sequence      int
		status        string
		backend       string
		pages         int
		seen          int
		skipped       int
		migrated      int
		failed        int
		bytesUploaded int64
		lastToken     sql.NullString
		errorMessage  sql.NullString
		startedAt     sql.NullTime
		completedAt   sql.NullTime
		createdAt     time.Time
		updatedAt     time.Time
		deletedAt     sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &status, &backend, &pages, &seen, &skipped,
		&migrated, &failed, &bytesUploaded, &lastToken, &errorMessage,
		&startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := models.NewMigrationRun(sequence, backend)
	run.SetID(id)
	run.SetStatus(models.RunStatus(status))
	run.SetCounts(pages, seen, skipped, migrated, failed)
	run.SetBytesUploaded(bytesUploaded)
	run.SetLastPageToken(lastToken.String)
	run.SetErrorMessage(errorMessage.String)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)

	if startedAt.Valid {
		run.SetStartedAt(&startedAt.Time)
	}
	if completedAt.Valid {
		run.SetCompletedAt(&completedAt.Time)
	}
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}

	return run, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func expectRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s not found or already deleted", shared.ErrRecordNotFound, kind, id)
	}
	return nil
}
