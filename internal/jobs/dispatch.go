package jobs

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/ports"
	"github.com/forPelevin/shortify/internal/types"
)

// LocalDispatcher runs jobs on goroutines of this process, at most
// `concurrency` at a time.
type LocalDispatcher struct {
	ctx    context.Context
	runner *Runner
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	log    *logger.Logger
}

var _ ports.Dispatcher = (*LocalDispatcher)(nil)

// NewLocalDispatcher binds job execution to ctx rather than to the
// submitting request.
func NewLocalDispatcher(ctx context.Context, r *Runner, concurrency int, log *logger.Logger) *LocalDispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LocalDispatcher{
		ctx:    ctx,
		runner: r,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		log:    logger.OrNop(log).With("service", "LocalDispatcher"),
	}
}

func (d *LocalDispatcher) Dispatch(_ context.Context, rec types.JobRecord) error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			return
		}
		defer d.sem.Release(1)
		if _, err := d.runner.Execute(d.ctx, rec); err != nil {
			d.log.Error("job execution failed", "job_id", rec.ID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (d *LocalDispatcher) Wait() { d.wg.Wait() }
