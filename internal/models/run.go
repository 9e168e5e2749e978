package models

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a [MigrationRun].
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "completed_with_errors"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

func (s RunStatus) valid() bool {
	switch s {
	case RunPending, RunRunning, RunCompleted, RunPartial, RunFailed, RunCancelled:
		return true
	}
	return false
}

// MigrationRun records one invocation of the migration driver.
type MigrationRun struct {
	id            string
	sequence      int
	status        RunStatus
	ledgerBackend string
	pages         int
	itemsSeen     int
	skipped       int
	migrated      int
	failed        int
	bytesUploaded int64
	lastPageToken string
	errorMessage  string
	startedAt     *time.Time
	completedAt   *time.Time
	createdAt     time.Time
	updatedAt     time.Time
	deletedAt     *time.Time
}

// NewMigrationRun creates a pending run for the given ledger backend.
func NewMigrationRun(sequence int, ledgerBackend string) *MigrationRun {
	now := time.Now()
	return &MigrationRun{
		sequence:      sequence,
		status:        RunPending,
		ledgerBackend: ledgerBackend,
		createdAt:     now,
		updatedAt:     now,
	}
}

func (r *MigrationRun) ID() string              { return r.id }
func (r *MigrationRun) Sequence() int           { return r.sequence }
func (r *MigrationRun) Status() RunStatus       { return r.status }
func (r *MigrationRun) LedgerBackend() string   { return r.ledgerBackend }
func (r *MigrationRun) Pages() int              { return r.pages }
func (r *MigrationRun) ItemsSeen() int          { return r.itemsSeen }
func (r *MigrationRun) Skipped() int            { return r.skipped }
func (r *MigrationRun) Migrated() int           { return r.migrated }
func (r *MigrationRun) Failed() int             { return r.failed }
func (r *MigrationRun) BytesUploaded() int64    { return r.bytesUploaded }
func (r *MigrationRun) LastPageToken() string   { return r.lastPageToken }
func (r *MigrationRun) ErrorMessage() string    { return r.errorMessage }
func (r *MigrationRun) StartedAt() *time.Time   { return r.startedAt }
func (r *MigrationRun) CompletedAt() *time.Time { return r.completedAt }
func (r *MigrationRun) CreatedAt() time.Time    { return r.createdAt }
func (r *MigrationRun) UpdatedAt() time.Time    { return r.updatedAt }
func (r *MigrationRun) DeletedAt() *time.Time   { return r.deletedAt }

func (r *MigrationRun) SetID(id string)               { r.id = id }
func (r *MigrationRun) SetStatus(s RunStatus)         { r.status = s }
func (r *MigrationRun) SetLastPageToken(token string) { r.lastPageToken = token }
func (r *MigrationRun) SetErrorMessage(msg string)    { r.errorMessage = msg }
func (r *MigrationRun) SetStartedAt(t *time.Time)     { r.startedAt = t }
func (r *MigrationRun) SetCompletedAt(t *time.Time)   { r.completedAt = t }
func (r *MigrationRun) SetCreatedAt(t time.Time)      { r.createdAt = t }
func (r *MigrationRun) SetUpdatedAt(t time.Time)      { r.updatedAt = t }
func (r *MigrationRun) SetDeletedAt(t *time.Time)     { r.deletedAt = t }
func (r *MigrationRun) SetBytesUploaded(n int64)      { r.bytesUploaded = n }
func (r *MigrationRun) SetLedgerBackend(b string)     { r.ledgerBackend = b }
func (r *MigrationRun) SetSequence(sequence int)      { r.sequence = sequence }

// SetCounts stores the tallies reported by the driver.
func (r *MigrationRun) SetCounts(pages, seen, skipped, migrated, failed int) {
	r.pages, r.itemsSeen, r.skipped, r.migrated, r.failed = pages, seen, skipped, migrated, failed
}

// Start marks the run as running.
func (r *MigrationRun) Start() {
	now := time.Now()
	r.status = RunRunning
	r.startedAt = &now
}

// Finish sets the terminal status from the outcome: err wins, then item failures.
func (r *MigrationRun) Finish(err error, cancelled bool) {
	now := time.Now()
	r.completedAt = &now

	switch {
	case cancelled:
		r.status = RunCancelled
	case err != nil:
		r.status = RunFailed
	case r.failed > 0:
		r.status = RunPartial
	default:
		r.status = RunCompleted
	}
	if err != nil {
		r.errorMessage = err.Error()
	}
}

// Validate checks counters and status.
func (r *MigrationRun) Validate() error {
	if !r.status.valid() {
		return fmt.Errorf("invalid run status %q", r.status)
	}
	if r.pages < 0 || r.itemsSeen < 0 || r.skipped < 0 || r.migrated < 0 || r.failed < 0 {
		return fmt.Errorf("run counters must not be negative")
	}
	if r.skipped+r.migrated+r.failed > r.itemsSeen {
		return fmt.Errorf("run outcomes exceed items seen")
	}
	return nil
}

// RunItemStatus is the per-item outcome stored with a run.
type RunItemStatus string

const (
	ItemMigrated RunItemStatus = "migrated"
	ItemSkipped  RunItemStatus = "skipped"
	ItemFailed   RunItemStatus = "failed"
	ItemPending  RunItemStatus = "pending" // listed by a dry run
)

// RunItem is one item outcome within a run.
type RunItem struct {
	ID             string
	RunID          string
	SourceKey      string
	Status         RunItemStatus
	DestinationRef string
	Bytes          int64
	ErrorMessage   string
	CreatedAt      time.Time
}
