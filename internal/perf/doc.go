// Package perf provides the probe execution engine for volley.
//
// The perf package issues a fixed number of logical requests against one
// request descriptor, bounds how many are in flight at once, retries failed
// attempts with exponential backoff, and hands back exactly one outcome per
// logical request:
//
//	runner, err := perf.New(perf.Options{
//		Spec: perf.Spec{
//			Repeat:      100,
//			Concurrency: 10,
//			Mode:        perf.ModeParallel,
//		},
//		Request:  &perf.Request{Method: "GET", URL: url, Expected: []int{200}},
//		Executor: executor,
//		Retry:    retry.DefaultConfig(),
//	})
//	if err != nil {
//		return err
//	}
//	outcomes := runner.Run(ctx)
//
// # Scheduling Modes
//
// Two strategies share identical observable semantics:
//   - [ModeParallel]: a fixed pool of worker goroutines, one logical request
//     per worker at a time; retries and backoff sleeps stay inside the
//     owning worker.
//   - [ModeCooperative]: permit-gated tasks behind a FIFO weighted
//     semaphore; a permit is held for the whole logical request, backoff
//     included.
//
// In both modes admission is FIFO, the in-flight count never exceeds
// Spec.Concurrency, and outcome completion order is unspecified.
//
// # Executor Interface
//
// The [Executor] interface is the transport boundary:
//
//	type Executor interface {
//		Execute(ctx context.Context, req *Request, opts CallOptions) Observation
//	}
//
// An [Observation] carries (status, elapsed, error); the engine decides
// retry and pass/fail, the executor only performs the call.
//
// # Retry Semantics
//
// Each logical request consults [retry.Policy]: transient failures (statuses
// in the retry set, transport errors) are retried up to the budget with
// exponentially growing, capped delays; the final attempt's status and
// elapsed time make up the outcome. Failures never abort a run; every
// logical request resolves to an [Outcome], and only invalid configuration
// (rejected synchronously by [New]) is fatal.
package perf
