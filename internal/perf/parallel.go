package perf

import (
	"context"
	"sync"
)

// runParallel executes logical requests on a fixed pool of worker
// goroutines. A single scheduler goroutine feeds request indexes in order
// over an unbuffered channel, so admission is FIFO and at most
// Spec.Concurrency logical requests are in flight at once. Retries of a
// logical request stay inside the worker that picked it up; they never
// re-enter the queue and never consume a second slot.
func (r *Runner) runParallel(ctx context.Context, outcomes []Outcome) {
	callOpts := r.callOptions()
	tasks := make(chan int)

	// Scheduler: serializes pacing so workers cannot overshoot the rate,
	// and resolves indexes it never handed out when the run is cancelled.
	go func() {
		defer close(tasks)
		for i := range outcomes {
			if err := r.limiter.Wait(ctx); err != nil {
				if cerr := ctx.Err(); cerr != nil {
					err = cerr
				}
				r.resolveUnstarted(err, outcomes, i)
				return
			}
			select {
			case tasks <- i:
			case <-ctx.Done():
				r.resolveUnstarted(ctx.Err(), outcomes, i)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(r.opt.Spec.Concurrency)
	for w := 0; w < r.opt.Spec.Concurrency; w++ {
		go func() {
			defer wg.Done()
			for i := range tasks {
				// Each index is received by exactly one worker, so this
				// write is the slot's only writer.
				outcomes[i] = r.execute(ctx, callOpts)
			}
		}()
	}
	wg.Wait()
}
