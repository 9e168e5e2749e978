package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/gpyt/internal/events"
	"github.com/desertthunder/gpyt/internal/formatter"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/retry"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/desertthunder/gpyt/internal/tasks"
	"github.com/desertthunder/gpyt/internal/tracing"
	"github.com/desertthunder/gpyt/internal/ui"
	"github.com/urfave/cli/v3"
)

// MigrateRun moves every video not yet recorded in the ledger from Google Photos to YouTube.
//
// Progress is printed as it happens, or shown in the terminal UI with --interactive, where each upload's
// metadata can be edited before it starts.
func (r *Runner) MigrateRun(ctx context.Context, cmd *cli.Command) error {
	interactive := cmd.Bool("interactive")
	if interactive {
		fileLogger, err := shared.NewFileLogger(r.config.Log.File)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		r.SetLogger(fileLogger)
	}

	shutdown, err := tracing.Init(ctx, r.config.Tracing, map[string]string{"ledger.backend": r.backendName(cmd)})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			r.logger.Warn("failed to flush traces", "err", err)
		}
	}()

	publisher, err := events.New(r.config.Events)
	if err != nil {
		return err
	}
	defer publisher.Close()

	photos, err := r.photosService(ctx)
	if err != nil {
		return err
	}
	youtube, err := r.youtubeService(ctx)
	if err != nil {
		return err
	}

	l, release, err := r.openLedger(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	defaults, err := r.defaultTargets(cmd)
	if err != nil {
		return err
	}
	var targets tasks.TargetProvider = defaults
	var prompter *ui.Prompter
	if interactive {
		prompter = ui.NewPrompter(defaults)
		targets = prompter
	}

	workers := r.config.Migration.Workers
	if cmd.IsSet("workers") {
		workers = cmd.Int("workers")
	}

	engine, err := tasks.NewMigrationEngine(tasks.EngineOpts{
		Source:      photos,
		Destination: youtube,
		Ledger:      l,
		Targets:     targets,
		Retry: retry.New(
			retry.WithMaxRetries(r.config.Migration.MaxRetries),
			retry.WithMaxDelay(r.config.Migration.MaxDelay),
			retry.WithLogger(shared.WithLogger(r.logger, "component", "retry")),
		),
		Logger:    shared.WithLogger(r.logger, "component", "engine"),
		Events:    publisher,
		ChunkSize: r.config.Migration.EffectiveChunkSize(),
		PageSize:  r.config.Migration.PageSize,
		Workers:   workers,
		RateLimit: r.config.Migration.RateLimit,
	})
	if err != nil {
		return err
	}

	history := r.beginRun(r.backendName(cmd))
	opts := tasks.RunOpts{
		RunID:      history.ID(),
		StartToken: cmd.String("start-token"),
		MaxPages:   cmd.Int("max-pages"),
		MaxItems:   cmd.Int("max-items"),
		DryRun:     cmd.Bool("dry-run"),
	}
	r.logger.Info("starting migration", "run", opts.RunID, "ledger", l.Len(), "dry_run", opts.DryRun)

	var result *tasks.RunResult
	if interactive {
		result, err = r.runInteractive(ctx, engine, prompter, opts)
	} else {
		result, err = r.runPlain(ctx, engine, opts)
	}
	history.finish(result, err)

	r.writeSummary(result, opts)
	return err
}

// runPlain prints progress lines while the engine runs.
func (r *Runner) runPlain(ctx context.Context, engine *tasks.MigrationEngine, opts tasks.RunOpts) (*tasks.RunResult, error) {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progressCh {
			switch update.Phase {
			case tasks.ListPage:
				r.writePlain("\n📥 %s\n", update.Message)
			case tasks.UploadChunk:
				r.logger.Debug(update.Message)
			case tasks.FailItem:
				r.writePlain("   ✗ %s\n", update.Message)
			default:
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	result, err := engine.Run(ctx, progressCh, opts)
	close(progressCh)
	wg.Wait()
	return result, err
}

// runInteractive hands the terminal to the UI until the run completes and the user quits.
func (r *Runner) runInteractive(ctx context.Context, engine *tasks.MigrationEngine, prompter *ui.Prompter, opts tasks.RunOpts) (*tasks.RunResult, error) {
	model := ui.NewModel(ctx, engine, prompter, opts)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	if result == nil && err == nil {
		err = fmt.Errorf("%w: %w", shared.ErrMigrationAborted, context.Canceled)
	}
	return result, err
}

func (r *Runner) writeSummary(result *tasks.RunResult, opts tasks.RunOpts) {
	if result == nil {
		return
	}

	r.writePlain("\n")
	r.writePlainHeader("Migration Summary")
	r.writePlain("Run: %s\n", opts.RunID)
	r.writePlain("Pages listed: %d\n", result.Pages)
	r.writePlain("Videos seen: %d\n", result.Seen())
	r.writePlain("Migrated: %d (%s)\n", result.Migrated, formatter.FormatBytes(result.Bytes))
	r.writePlain("Already migrated: %d\n", result.Skipped)
	if result.Declined > 0 {
		r.writePlain("Skipped by you: %d\n", result.Declined)
	}
	if opts.DryRun {
		r.writePlain("Pending: %d\n", result.Pending)
	}
	r.writePlain("Failed: %d\n", result.Failed)

	if result.Failed > 0 {
		r.writePlain("\nFailed videos:\n")
		for _, item := range result.Items {
			if item.Err != nil {
				r.writePlain("  - %s: %v\n", item.Item.Filename, errors.Unwrap(item.Err))
			}
		}
	}
	if result.NextPageToken != "" {
		r.writePlain("\nResume with: gpyt migrate run --start-token %s\n", result.NextPageToken)
	}
}

// defaultTargets applies --visibility and --tags over the configured metadata.
func (r *Runner) defaultTargets(cmd *cli.Command) (tasks.DefaultTargets, error) {
	raw := r.config.Migration.Visibility
	if cmd.IsSet("visibility") {
		raw = cmd.String("visibility")
	}
	visibility, err := models.ParseVisibility(raw)
	if err != nil {
		return tasks.DefaultTargets{}, fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}

	tags := r.config.Migration.Tags
	if cmd.IsSet("tags") {
		tags = models.ParseTags(cmd.String("tags"))
	}
	return tasks.DefaultTargets{Visibility: visibility, Tags: tags}, nil
}

func (r *Runner) backendName(cmd *cli.Command) string {
	if name := cmd.String("backend"); name != "" {
		return name
	}
	return r.config.Ledger.Backend
}

// TUI runs an interactive migration.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if err := cmd.Set("interactive", "true"); err != nil {
		return err
	}
	return r.MigrateRun(ctx, cmd)
}
