package perf

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/volleyhq/volley/internal/retry"
)

// Mode selects the scheduling strategy for a run.
type Mode string

const (
	// ModeParallel executes logical requests on a fixed pool of worker
	// goroutines sized to the concurrency limit.
	ModeParallel Mode = "parallel"
	// ModeCooperative executes logical requests as permit-gated tasks that
	// suspend only at I/O and backoff boundaries.
	ModeCooperative Mode = "cooperative"
)

// ParseMode converts a configuration string into a Mode. The empty string
// maps to ModeParallel.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeParallel:
		return ModeParallel, nil
	case ModeCooperative:
		return ModeCooperative, nil
	default:
		return "", fmt.Errorf("mode %q is not supported", s)
	}
}

// Spec fixes the shape of one probe run. It is constructed before the run
// and shared read-only by all tasks.
type Spec struct {
	// Repeat is the total number of logical requests to issue.
	Repeat int
	// Concurrency bounds how many logical requests may be in flight at once.
	Concurrency int
	// Mode picks the scheduling strategy. Empty means ModeParallel.
	Mode Mode
	// Threshold is a soft latency SLA. Outcomes slower than it are counted,
	// never failed. 0 disables the counter.
	Threshold time.Duration
	// Timeout and ConnectTimeout are per-attempt limits passed to the
	// executor in cooperative mode only; parallel mode delegates timeouts to
	// the executor's own client.
	Timeout        time.Duration
	ConnectTimeout time.Duration
	// Rate paces admissions per second. 0 means unpaced. Pacing delays when
	// a logical request starts; it never raises the concurrency bound.
	Rate float64
}

// Request is the immutable request descriptor the engine hands to the
// executor. All per-call variability (placeholders, variables) is resolved
// before a Request is built.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// Expected lists the statuses that count as passed. Empty means {200}.
	Expected []int
}

// CallOptions carries per-attempt limits and the attempt ordinal to the
// executor. Zero-valued limits mean the executor's own client configuration
// governs.
type CallOptions struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	// Attempt is the zero-based ordinal of this physical attempt within its
	// logical request. Retries observe 1, 2, ...
	Attempt int
}

// Observation is the raw result of one physical attempt: the response status
// when one arrived (0 otherwise), the attempt's wall time, and the transport
// error when the attempt failed before producing a response. StatusCode and
// Err are mutually exclusive.
type Observation struct {
	StatusCode int
	Elapsed    time.Duration
	Err        error
}

// Executor performs one physical HTTP attempt. Implementations must be safe
// for concurrent use from multiple tasks; the engine treats transport as a
// black box.
type Executor interface {
	Execute(ctx context.Context, req *Request, opts CallOptions) Observation
}

// Outcome is the terminal record of one logical request.
type Outcome struct {
	// StatusCode is the final attempt's response status, 0 when no response
	// was ever received.
	StatusCode int
	// Elapsed is the wall time of the final attempt only, not cumulative
	// across retries.
	Elapsed time.Duration
	// Passed reports whether the final status is in the expected set.
	Passed bool
	// Retries counts attempts beyond the first.
	Retries int
	// Err is set iff the logical request ultimately failed: retries
	// exhausted, a non-retryable failure, or cancellation.
	Err error
}

// HTTPError marks a logical request that ended on an unexpected HTTP status.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, text)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// FailureLogger receives the error of every failed logical request.
type FailureLogger interface {
	LogFailure(err error)
}

// ValidationError reports every problem found in a runner's Options.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "performance spec validation failed"
	}
	return fmt.Sprintf("performance spec validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns the individual validation failures.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Options configure a Runner.
type Options struct {
	Spec     Spec
	Request  *Request
	Executor Executor
	// Retry governs per-request retry behavior. The zero value is invalid;
	// start from retry.DefaultConfig.
	Retry retry.Config
	// OnOutcome, when set, observes every finished logical request. It is
	// called from worker goroutines and must be safe for concurrent use.
	OnOutcome func(Outcome)
	// Logger, when set, receives the error of every failed logical request.
	Logger FailureLogger
	// LimiterFactory is an injection point for tests.
	LimiterFactory func(rps float64) *rate.Limiter
}

func (o *Options) normalize() {
	if o.Spec.Mode == "" {
		o.Spec.Mode = ModeParallel
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps float64) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of about one second of budget smooths pacing under
			// concurrency.
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			return rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

func (o *Options) validate() []string {
	var issues []string

	if o.Executor == nil {
		issues = append(issues, "executor is required")
	}
	if o.Request == nil {
		issues = append(issues, "request is required")
	} else if strings.TrimSpace(o.Request.URL) == "" {
		issues = append(issues, "request url is required")
	}
	if o.Spec.Repeat <= 0 {
		issues = append(issues, "repeat must be > 0")
	}
	if o.Spec.Concurrency <= 0 {
		issues = append(issues, "concurrency must be > 0")
	}
	switch o.Spec.Mode {
	case ModeParallel, ModeCooperative:
	default:
		issues = append(issues, fmt.Sprintf("mode %q is not supported", o.Spec.Mode))
	}
	if o.Spec.Threshold < 0 {
		issues = append(issues, "threshold must be >= 0")
	}
	if o.Spec.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if o.Spec.ConnectTimeout < 0 {
		issues = append(issues, "connect_timeout must be >= 0")
	}
	if o.Spec.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}

	return issues
}
