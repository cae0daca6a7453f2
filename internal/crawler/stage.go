package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// StageRunner executes one crawl stage: a worker function applied to a list
// of pending items under a bounded pool, with the successful results
// flattened into a single slice.
//
// Design decision: We use errgroup.SetLimit rather than a hand-rolled worker
// pool because it's simpler and errgroup handles the concurrency correctly.
// Each item gets its own goroutine, but only 'workers' goroutines run
// simultaneously.
type StageRunner struct {
	// workers is the pool bound. 1 means sequential execution.
	workers int

	// logger receives per-item failure reports.
	logger *slog.Logger
}

// NewStageRunner creates a StageRunner with the given pool size.
// A non-positive worker count falls back to 1 (sequential).
func NewStageRunner(workers int, logger *slog.Logger) *StageRunner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StageRunner{workers: workers, logger: logger}
}

// Run applies worker to every item and returns the concatenated results.
//
// Results are appended in completion order, not submission order; callers
// must not depend on ordering. A worker error is logged with the offending
// item's identity and contributes an empty result -- it never aborts the
// pool or the other in-flight items. Run only stops early when the parent
// context is cancelled, in which case not-yet-dispatched items are skipped.
//
// Generic because stages are heterogeneous: the semester stage maps Semester
// records to course URLs while the course and user stages map URLs to URLs,
// all through the same pool-and-flatten logic.
func Run[I, R any](ctx context.Context, r *StageRunner, stage string, items []I, worker func(context.Context, I) ([]R, error)) []R {
	r.logger.Info("stage started", "stage", stage, "items", len(items), "workers", r.workers)

	var (
		mu      sync.Mutex
		results []R
	)

	// Plain errgroup, not errgroup.WithContext: a per-item failure must
	// not cancel the siblings, and no worker ever returns an error to the
	// group.
	var g errgroup.Group
	g.SetLimit(r.workers)

	for _, item := range items {
		item := item
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			found, err := worker(ctx, item)
			if err != nil {
				r.logger.Error("stage item failed",
					"stage", stage,
					"item", fmt.Sprintf("%v", item),
					"error", err,
				)
				return nil
			}
			if len(found) > 0 {
				mu.Lock()
				results = append(results, found...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Workers never return errors to the group

	r.logger.Info("stage finished", "stage", stage, "items", len(items), "results", len(results))
	return results
}

// RunBatched partitions items into fixed-size chunks and runs each chunk
// through the same pool-and-flatten logic sequentially. After every chunk,
// afterBatch runs before the next chunk starts; the orchestrator uses it to
// checkpoint accumulated records and clear the in-memory buffers.
//
// This exists for very large brute-force runs: it bounds peak memory and
// limits data loss on interruption to one batch, trading away pipelining
// across batches. Batched and unbatched execution produce the same result
// set, differing only in checkpoint timing.
//
// An afterBatch failure is logged and the run continues; records stay in the
// buffers and ride along to the next checkpoint attempt.
func RunBatched[I, R any](
	ctx context.Context,
	r *StageRunner,
	stage string,
	items []I,
	batchSize int,
	worker func(context.Context, I) ([]R, error),
	afterBatch func() error,
) []R {
	if batchSize < 1 {
		batchSize = 1
	}

	total := len(items)
	r.logger.Info("batched stage started",
		"stage", stage,
		"items", total,
		"batch_size", batchSize,
	)

	var results []R
	for start, batchNum := 0, 1; start < total; start, batchNum = start+batchSize, batchNum+1 {
		if ctx.Err() != nil {
			break
		}

		end := min(start+batchSize, total)
		r.logger.Info("processing batch",
			"stage", stage,
			"batch", batchNum,
			"from", start+1,
			"to", end,
			"total", total,
		)

		batchResults := Run(ctx, r, fmt.Sprintf("%s/batch-%d", stage, batchNum), items[start:end], worker)
		results = append(results, batchResults...)

		if afterBatch != nil {
			if err := afterBatch(); err != nil {
				r.logger.Error("batch checkpoint failed", "stage", stage, "batch", batchNum, "error", err)
			}
		}
	}

	r.logger.Info("batched stage finished", "stage", stage, "items", total, "results", len(results))
	return results
}
