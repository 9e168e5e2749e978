package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gpyt/internal/events"
	"github.com/desertthunder/gpyt/internal/ledger"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/retry"
	"github.com/desertthunder/gpyt/internal/services"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/desertthunder/gpyt/internal/upload"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPageSize = 50
	tracerName      = "github.com/desertthunder/gpyt/internal/tasks"
)

// Source lists videos and streams their bytes. [services.PhotosService] implements it.
type Source interface {
	ListVideos(ctx context.Context, pageToken string, pageSize int) (*models.Page, error)
	ProbeSize(ctx context.Context, item models.MediaItem) (int64, error)
	OpenStream(ctx context.Context, item models.MediaItem) (*services.Stream, error)
}

// EngineOpts wires a [MigrationEngine]. Source, Destination and Ledger are required.
type EngineOpts struct {
	Source      Source
	Destination upload.Destination
	Ledger      *ledger.Ledger
	Targets     TargetProvider    // DefaultTargets{} when nil
	Retry       *retry.Controller // unbounded retries when nil
	Logger      *log.Logger
	Events      events.Publisher
	Tracer      trace.Tracer
	ChunkSize   int     // upload.DefaultChunkSize when zero
	PageSize    int     // DefaultPageSize when zero
	Workers     int     // items of a page migrated concurrently, 1 when zero
	RateLimit   float64 // item starts per second, unlimited when zero
}

// MigrationEngine moves every video of a source library not yet in the ledger to the destination.
type MigrationEngine struct {
	source    Source
	dest      upload.Destination
	ledger    *ledger.Ledger
	targets   TargetProvider
	retry     *retry.Controller
	logger    *log.Logger
	events    events.Publisher
	tracer    trace.Tracer
	chunkSize int
	pageSize  int
	workers   int
	rateLimit float64
}

// NewMigrationEngine validates opts and fills in defaults.
func NewMigrationEngine(opts EngineOpts) (*MigrationEngine, error) {
	switch {
	case opts.Source == nil:
		return nil, fmt.Errorf("%w: source not initialized", shared.ErrServiceUnavailable)
	case opts.Destination == nil:
		return nil, fmt.Errorf("%w: destination not initialized", shared.ErrServiceUnavailable)
	case opts.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger not opened", shared.ErrInvalidInput)
	}

	e := &MigrationEngine{
		source:    opts.Source,
		dest:      opts.Destination,
		ledger:    opts.Ledger,
		targets:   opts.Targets,
		retry:     opts.Retry,
		logger:    opts.Logger,
		events:    opts.Events,
		tracer:    opts.Tracer,
		chunkSize: opts.ChunkSize,
		pageSize:  opts.PageSize,
		workers:   max(opts.Workers, 1),
		rateLimit: opts.RateLimit,
	}
	if e.targets == nil {
		e.targets = DefaultTargets{}
	}
	if e.retry == nil {
		e.retry = retry.New()
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}
	if e.events == nil {
		e.events = events.Noop{}
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.chunkSize <= 0 {
		e.chunkSize = upload.DefaultChunkSize
	}
	if e.pageSize <= 0 {
		e.pageSize = DefaultPageSize
	}
	return e, nil
}

// RunOpts bounds a single run.
type RunOpts struct {
	RunID      string // attached to published events
	StartToken string // continuation token to resume listing from
	MaxPages   int    // zero lists every page
	MaxItems   int    // zero processes every item
	DryRun     bool   // report pending items without uploading
}

// ItemError attaches a failure to the ledger key of the item it happened on.
type ItemError struct {
	Key string
	Err error
}

func (e *ItemError) Error() string { return fmt.Sprintf("%s: %v", e.Key, e.Err) }
func (e *ItemError) Unwrap() error { return e.Err }

// ItemResult is the outcome for one listed item.
type ItemResult struct {
	Item      models.MediaItem
	Key       string
	Reference string // destination permalink; for skipped items the recorded one
	Skipped   bool   // already in the ledger
	Declined  bool   // the target provider skipped it
	Pending   bool   // dry run only
	Bytes     int64
	Exchanges int
	Err       error // *ItemError
}

// RunResult summarizes a run.
type RunResult struct {
	Items         []ItemResult
	Pages         int
	Skipped       int
	Declined      int
	Pending       int
	Migrated      int
	Failed        int
	Bytes         int64
	NextPageToken string // empty when the library was listed to the end
}

// Seen counts every item the run looked at.
func (r *RunResult) Seen() int { return len(r.Items) }

// Err collects the item failures, nil when there were none.
func (r *RunResult) Err() error {
	var errs *multierror.Error
	for _, item := range r.Items {
		if item.Err != nil {
			errs = multierror.Append(errs, item.Err)
		}
	}
	return errs.ErrorOrNil()
}

func (r *RunResult) add(items []ItemResult) {
	for _, item := range items {
		r.Items = append(r.Items, item)
		switch {
		case item.Err != nil:
			r.Failed++
		case item.Skipped:
			r.Skipped++
		case item.Declined:
			r.Declined++
		case item.Pending:
			r.Pending++
		default:
			r.Migrated++
			r.Bytes += item.Bytes
		}
	}
}

// Run lists the source page by page and migrates every item whose key is not in the ledger.
//
// A page is processed completely before the next one is requested. Item failures are reported in the
// result and never stop enumeration; a listing that still fails after retries ends the run with an error.
// Cancellation is checked between items, and the returned result always reflects the work done so far.
func (e *MigrationEngine) Run(ctx context.Context, prog chan<- ProgressUpdate, opts RunOpts) (*RunResult, error) {
	result := &RunResult{}
	token := opts.StartToken

	for {
		if opts.MaxPages > 0 && result.Pages >= opts.MaxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w: %w", shared.ErrMigrationAborted, err)
		}

		e.sendProgress(prog, listPageUpdate(result.Pages+1, token))
		page, err := retry.Do(ctx, e.retry, "list videos", func(ctx context.Context) (*models.Page, error) {
			return e.source.ListVideos(ctx, token, e.pageSize)
		})
		if err != nil {
			return result, fmt.Errorf("failed to list page %d: %w", result.Pages+1, err)
		}
		result.Pages++

		items := page.Items
		truncated := false
		if opts.MaxItems > 0 {
			if left := opts.MaxItems - result.Seen(); len(items) > left {
				items, truncated = items[:left], true
			}
		}

		results := e.processPage(ctx, prog, items, opts)
		result.add(results)

		if err := ctx.Err(); err != nil {
			result.NextPageToken = token
			return result, fmt.Errorf("%w: %w", shared.ErrMigrationAborted, err)
		}

		if truncated {
			// the rest of this page was not looked at, so resume from the same page
			result.NextPageToken = token
			break
		}
		token = page.NextPageToken
		result.NextPageToken = token
		if token == "" || (opts.MaxItems > 0 && result.Seen() >= opts.MaxItems) {
			break
		}
	}

	e.logger.Info("migration run finished",
		"pages", result.Pages,
		"migrated", result.Migrated,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// processPage migrates items in order, or through the worker pool when more than one worker is configured.
func (e *MigrationEngine) processPage(ctx context.Context, prog chan<- ProgressUpdate, items []models.MediaItem, opts RunOpts) []ItemResult {
	if e.workers > 1 && len(items) > 1 {
		return e.processConcurrently(ctx, prog, items, opts)
	}

	results := make([]ItemResult, 0, len(items))
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		results = append(results, e.migrateItem(ctx, prog, i+1, len(items), item, opts))
	}
	return results
}

// migrateItem runs one item through lookup, probe, stream, upload and commit.
func (e *MigrationEngine) migrateItem(ctx context.Context, prog chan<- ProgressUpdate, step, total int, item models.MediaItem, opts RunOpts) ItemResult {
	key := item.Key()
	res := ItemResult{Item: item, Key: key}
	logger := shared.WithLogger(e.logger, "item", key)

	if ref, ok := e.ledger.Get(key); ok {
		res.Skipped, res.Reference = true, ref
		logger.Debug("already migrated", "ref", ref)
		e.sendProgress(prog, skipItemUpdate(step, total, item, ref))
		return res
	}
	if opts.DryRun {
		res.Pending = true
		e.sendProgress(prog, pendingItemUpdate(step, total, item))
		return res
	}

	ctx, span := e.tracer.Start(ctx, "migrate.item", trace.WithAttributes(
		attribute.String("gpyt.item.key", key),
		attribute.String("gpyt.item.filename", item.Filename),
	))
	defer span.End()

	fail := func(err error) ItemResult {
		res.Err = &ItemError{Key: key, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("migration failed", "err", err)
		e.sendProgress(prog, failItemUpdate(step, total, item, err))
		e.publish(ctx, events.Failed(opts.RunID, key, err))
		return res
	}

	if e.ledger.Stale() {
		return fail(shared.ErrLedgerStale)
	}

	target, err := e.targets.Target(ctx, item)
	if errors.Is(err, shared.ErrSkipItem) {
		res.Declined = true
		e.sendProgress(prog, declinedItemUpdate(step, total, item))
		return res
	}
	if err != nil {
		return fail(fmt.Errorf("failed to build upload target: %w", err))
	}

	e.sendProgress(prog, probeItemUpdate(step, total, item))
	size, err := retry.Do(ctx, e.retry, "probe size", func(ctx context.Context) (int64, error) {
		return e.source.ProbeSize(ctx, item)
	})
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.Int64("gpyt.item.size", size))

	stream, err := retry.Do(ctx, e.retry, "open stream", func(ctx context.Context) (*services.Stream, error) {
		return e.source.OpenStream(ctx, item)
	})
	if err != nil {
		return fail(err)
	}
	defer stream.Body.Close()

	contentType := stream.ContentType
	if contentType == "" {
		contentType = item.MimeType
	}
	cursor, err := upload.NewChunkCursor(stream.Body, size, contentType, e.chunkSize)
	if err != nil {
		return fail(err)
	}

	session := upload.NewSession(e.dest, cursor, target,
		upload.WithRetry(e.retry),
		upload.WithLogger(logger),
		upload.WithTracer(e.tracer),
		upload.WithObserver(upload.ObserverFunc(func(confirmed, total int64) {
			e.sendProgress(prog, uploadChunkUpdate(key, confirmed, total))
		})),
	)
	ref, err := session.Run(ctx)
	res.Exchanges = session.Exchanges()
	if err != nil {
		return fail(err)
	}

	if err := e.ledger.Set(ctx, key, ref); err != nil {
		logger.Error("uploaded but not recorded", "ref", ref)
		return fail(fmt.Errorf("uploaded as %s: %w", ref, err))
	}

	res.Reference, res.Bytes = ref, size
	logger.Info("migrated", "ref", ref, "bytes", size, "exchanges", res.Exchanges)
	e.sendProgress(prog, commitItemUpdate(step, total, item, ref))
	e.publish(ctx, events.Completed(opts.RunID, key, ref, size))
	return res
}

// publish never fails the item.
func (e *MigrationEngine) publish(ctx context.Context, ev events.Event) {
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn("failed to publish event", "type", ev.Type, "key", ev.SourceKey, "err", err)
	}
}

// sendProgress sends a progress update if the channel is not nil (non-blocking)
func (e *MigrationEngine) sendProgress(ch chan<- ProgressUpdate, update ProgressUpdate) {
	if ch == nil {
		return
	}
	select {
	case ch <- update:
	default:
	}
}
