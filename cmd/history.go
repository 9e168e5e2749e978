package main

import (
	"context"
	"database/sql"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/repositories"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/desertthunder/gpyt/internal/tasks"
)

// runHistory records a migration run in the database. A nil *runHistory records nothing, so a
// missing or unwritable database never blocks a migration.
type runHistory struct {
	db     *sql.DB
	repo   *repositories.RunRepository
	run    *models.MigrationRun
	logger *log.Logger
}

// beginRun stores a running MigrationRun, or returns nil with a warning when the database is unavailable.
func (r *Runner) beginRun(backend string) *runHistory {
	db, err := r.openDatabase()
	if err != nil {
		r.logger.Warn("run history disabled", "err", err)
		return nil
	}

	repo := repositories.NewRunRepository(db)
	run := models.NewMigrationRun(0, backend)
	run.Start()
	if err := repo.Create(run); err != nil {
		r.logger.Warn("run history disabled", "err", err)
		db.Close()
		return nil
	}

	return &runHistory{db: db, repo: repo, run: run, logger: shared.WithLogger(r.logger, "run", run.ID())}
}

// ID is the run id attached to published events.
func (h *runHistory) ID() string {
	if h == nil {
		return shared.GenerateID()
	}
	return h.run.ID()
}

// finish stores totals, terminal status and per-item outcomes.
func (h *runHistory) finish(result *tasks.RunResult, runErr error) {
	if h == nil {
		return
	}
	defer h.db.Close()

	if result != nil {
		h.run.SetCounts(result.Pages, result.Seen(), result.Skipped, result.Migrated, result.Failed)
		h.run.SetBytesUploaded(result.Bytes)
		h.run.SetLastPageToken(result.NextPageToken)
	}
	h.run.Finish(runErr, errors.Is(runErr, context.Canceled))

	if err := h.repo.Update(h.run); err != nil {
		h.logger.Warn("failed to update run", "err", err)
		return
	}
	if result == nil {
		return
	}
	if err := h.repo.AddItems(h.run.ID(), runItems(result)); err != nil {
		h.logger.Warn("failed to store run items", "err", err)
	}
}

// runItems converts item results. Items declined in the form are left out; they were neither
// migrated nor failed.
func runItems(result *tasks.RunResult) []models.RunItem {
	items := make([]models.RunItem, 0, len(result.Items))
	for _, res := range result.Items {
		item := models.RunItem{SourceKey: res.Key, DestinationRef: res.Reference, Bytes: res.Bytes}
		switch {
		case res.Err != nil:
			item.Status = models.ItemFailed
			item.ErrorMessage = res.Err.Error()
		case res.Skipped:
			item.Status = models.ItemSkipped
		case res.Pending:
			item.Status = models.ItemPending
		case res.Declined:
			continue
		default:
			item.Status = models.ItemMigrated
		}
		items = append(items, item)
	}
	return items
}
