package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/gpyt/internal/formatter"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/repositories"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/urfave/cli/v3"
)

// RunsList prints recorded migration runs, newest first.
func (r *Runner) RunsList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewRunRepository(db).List(map[string]any{
		"status": cmd.String("status"),
		"limit":  cmd.Int("limit"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		rows := make([]map[string]any, 0, len(runs))
		for _, run := range runs {
			rows = append(rows, map[string]any{
				"id":              run.ID(),
				"sequence":        run.Sequence(),
				"status":          run.Status(),
				"ledger_backend":  run.LedgerBackend(),
				"pages":           run.Pages(),
				"items_seen":      run.ItemsSeen(),
				"migrated":        run.Migrated(),
				"skipped":         run.Skipped(),
				"failed":          run.Failed(),
				"bytes_uploaded":  run.BytesUploaded(),
				"last_page_token": run.LastPageToken(),
				"error":           run.ErrorMessage(),
				"created_at":      run.CreatedAt(),
			})
		}
		return r.writeJSON(rows, true)
	}

	return r.writePlain("%s", formatter.RunsToText(runs))
}

// RunsShow prints one run and the outcome of every item it looked at.
func (r *Runner) RunsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewRunRepository(db)
	run, err := repo.Get(id)
	if err != nil {
		return err
	}
	items, err := repo.Items(id)
	if err != nil {
		return err
	}

	r.writePlainHeader(fmt.Sprintf("Run #%d (%s)", run.Sequence(), run.ID()))
	r.writePlain("%s", formatter.RunsToText([]*models.MigrationRun{run}))
	r.writePlain("\n")
	for _, item := range items {
		r.writePlain("%-9s %s", item.Status, item.SourceKey)
		if item.DestinationRef != "" {
			r.writePlain(" -> %s", item.DestinationRef)
		}
		if item.Bytes > 0 {
			r.writePlain(" (%s)", formatter.FormatBytes(item.Bytes))
		}
		if item.ErrorMessage != "" {
			r.writePlain("\n          error: %s", item.ErrorMessage)
		}
		r.writePlain("\n")
	}
	return nil
}
