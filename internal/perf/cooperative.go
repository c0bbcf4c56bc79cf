package perf

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// runCooperative executes logical requests as permit-gated tasks. The
// admission loop acquires a permit before spawning each task, so admission
// is strictly FIFO in logical-request order and at most Spec.Concurrency
// tasks exist at once. A task holds its permit for the logical request's
// entire lifetime, backoff waits included, and releases it on every exit
// path.
func (r *Runner) runCooperative(ctx context.Context, outcomes []Outcome) {
	callOpts := r.callOptions()
	sem := semaphore.NewWeighted(int64(r.opt.Spec.Concurrency))

	var wg sync.WaitGroup
	for i := range outcomes {
		if err := r.limiter.Wait(ctx); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				err = cerr
			}
			r.resolveUnstarted(err, outcomes, i)
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			r.resolveUnstarted(err, outcomes, i)
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = r.execute(ctx, callOpts)
		}(i)
	}
	wg.Wait()
}
