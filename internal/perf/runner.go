package perf

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/volleyhq/volley/internal/retry"
)

// Runner drives one probe run: Spec.Repeat logical requests through the
// configured scheduling strategy, each logical request retried per the
// retry policy, one Outcome per logical request.
type Runner struct {
	opt     Options
	policy  *retry.Policy
	expect  map[int]struct{}
	limiter *rate.Limiter
}

// New validates opt synchronously and returns a ready Runner. Configuration
// errors are the only fatal error class; they are reported before any
// request is issued, as a ValidationError collecting every violation.
func New(opt Options) (*Runner, error) {
	opt.normalize()

	issues := opt.validate()
	policy, err := retry.NewPolicy(opt.Retry)
	if err != nil {
		var verr retry.ValidationError
		if errors.As(err, &verr) {
			for _, issue := range verr.Issues() {
				issues = append(issues, "retry: "+issue)
			}
		} else {
			issues = append(issues, "retry: "+err.Error())
		}
	}
	if len(issues) > 0 {
		return nil, ValidationError{issues: issues}
	}

	expected := []int{http.StatusOK}
	if opt.Request != nil && len(opt.Request.Expected) > 0 {
		expected = opt.Request.Expected
	}
	expect := make(map[int]struct{}, len(expected))
	for _, code := range expected {
		expect[code] = struct{}{}
	}

	return &Runner{
		opt:     opt,
		policy:  policy,
		expect:  expect,
		limiter: opt.LimiterFactory(opt.Spec.Rate),
	}, nil
}

// Run executes the probe and returns exactly Spec.Repeat outcomes, one per
// logical request, in logical-request order. Completion order across logical
// requests is not deterministic; consumers must not depend on it. On context
// cancellation the scheduler stops admitting, in-flight attempts abort, and
// every unfinished logical request resolves to an outcome carrying the
// cancellation error, so the outcome count still matches Spec.Repeat.
func (r *Runner) Run(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, r.opt.Spec.Repeat)
	switch r.opt.Spec.Mode {
	case ModeCooperative:
		r.runCooperative(ctx, outcomes)
	default:
		r.runParallel(ctx, outcomes)
	}
	return outcomes
}

func (r *Runner) expected(status int) bool {
	_, ok := r.expect[status]
	return ok
}

func (r *Runner) callOptions() CallOptions {
	if r.opt.Spec.Mode == ModeCooperative {
		return CallOptions{
			Timeout:        r.opt.Spec.Timeout,
			ConnectTimeout: r.opt.Spec.ConnectTimeout,
		}
	}
	return CallOptions{}
}

// execute drives one logical request to its terminal outcome. Attempts are
// strictly sequential: a failed attempt is either retried after the policy's
// backoff delay or accepted as final. The backoff wait happens inside the
// task, so the admission slot stays held for the logical request's entire
// lifetime.
func (r *Runner) execute(ctx context.Context, callOpts CallOptions) Outcome {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return r.finish(Outcome{Retries: attempt, Err: err})
		}

		callOpts.Attempt = attempt
		obs := r.opt.Executor.Execute(ctx, r.opt.Request, callOpts)
		if obs.Err == nil && r.expected(obs.StatusCode) {
			return r.finish(Outcome{
				StatusCode: obs.StatusCode,
				Elapsed:    obs.Elapsed,
				Passed:     true,
				Retries:    attempt,
			})
		}

		if ctx.Err() == nil && r.policy.Decide(attempt+1, obs.StatusCode, obs.Err) == retry.Retry {
			select {
			case <-time.After(r.policy.Delay(attempt)):
				attempt++
				continue
			case <-ctx.Done():
			}
		}

		out := Outcome{StatusCode: obs.StatusCode, Elapsed: obs.Elapsed, Retries: attempt}
		if obs.Err != nil {
			out.Err = obs.Err
		} else {
			out.Err = &HTTPError{StatusCode: obs.StatusCode}
		}
		return r.finish(out)
	}
}

// finish is the single exit point for a logical request: failure logging and
// the outcome observer both fire exactly once per logical request.
func (r *Runner) finish(out Outcome) Outcome {
	if out.Err != nil && r.opt.Logger != nil {
		r.opt.Logger.LogFailure(out.Err)
	}
	if r.opt.OnOutcome != nil {
		r.opt.OnOutcome(out)
	}
	return out
}

// resolveUnstarted assigns a terminal outcome to every logical request the
// scheduler never handed out, keeping the one-outcome-per-request invariant
// intact on early termination.
func (r *Runner) resolveUnstarted(err error, outcomes []Outcome, from int) {
	for i := from; i < len(outcomes); i++ {
		outcomes[i] = r.finish(Outcome{Err: err})
	}
}
