package tasks

import (
	"context"
	"sync"

	"github.com/desertthunder/gpyt/internal/models"
	"golang.org/x/time/rate"
)

const maxWorkers = 10

// itemJob is one item of a page handed to a worker.
type itemJob struct {
	index int
	item  models.MediaItem
}

// processConcurrently migrates the items of one page with a worker pool, rate limiting item starts.
// Results keep page order. Ledger writes are serialized by the ledger itself.
func (e *MigrationEngine) processConcurrently(ctx context.Context, prog chan<- ProgressUpdate, items []models.MediaItem, opts RunOpts) []ItemResult {
	workers := min(e.workers, maxWorkers, len(items))

	limit := rate.Inf
	if e.rateLimit > 0 {
		limit = rate.Limit(e.rateLimit)
	}
	limiter := rate.NewLimiter(limit, 1)

	jobs := make(chan itemJob, len(items))
	slots := make([]*ItemResult, len(items))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go e.itemWorker(ctx, &wg, prog, jobs, slots, len(items), opts)
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			jobs <- itemJob{index: i, item: item}
		}
	}()

	wg.Wait()

	results := make([]ItemResult, 0, len(items))
	for _, res := range slots {
		if res != nil {
			results = append(results, *res)
		}
	}
	return results
}

// itemWorker migrates items from the jobs channel until it is closed or ctx is done.
func (e *MigrationEngine) itemWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	prog chan<- ProgressUpdate,
	jobs <-chan itemJob,
	slots []*ItemResult,
	total int,
	opts RunOpts,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res := e.migrateItem(ctx, prog, job.index+1, total, job.item, opts)
		slots[job.index] = &res
	}
}
