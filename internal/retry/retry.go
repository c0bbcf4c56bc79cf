// Package retry provides the retry decision and backoff delay logic for
// probe execution. A Policy is a pure function of its immutable Config and
// is safe for concurrent use from any number of tasks without
// synchronization.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 30 * time.Second
)

// DefaultRetryStatuses are the HTTP statuses retried when Config.RetryStatuses
// is nil: transient upstream failures.
var DefaultRetryStatuses = []int{500, 502, 503, 504}

// Decision is the outcome of a retry check for one attempt.
type Decision int

const (
	// Accept ends the logical request with the attempt's result.
	Accept Decision = iota
	// Retry schedules another attempt after the backoff delay.
	Retry
)

func (d Decision) String() string {
	if d == Retry {
		return "retry"
	}
	return "accept"
}

// Config holds retry behavior for one run. It is constructed by the caller
// before the run and shared read-only by all tasks.
type Config struct {
	// MaxRetries is the number of retry attempts after the first try.
	// 0 disables retries.
	MaxRetries int
	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration
	// BackoffMax caps the exponential backoff delay.
	BackoffMax time.Duration
	// RetryStatuses lists the HTTP statuses considered transient. A nil
	// slice means DefaultRetryStatuses; an empty non-nil slice disables
	// status-based retries (transport errors are still retried).
	RetryStatuses []int
}

// DefaultConfig returns the stock retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    DefaultMaxRetries,
		BackoffBase:   DefaultBackoffBase,
		BackoffMax:    DefaultBackoffMax,
		RetryStatuses: append([]int(nil), DefaultRetryStatuses...),
	}
}

// ValidationError reports every problem found in a Config.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "retry config validation failed"
	}
	return fmt.Sprintf("retry config validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns the individual validation failures.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the configuration, collecting all issues rather than
// stopping at the first.
func (c Config) Validate() error {
	var issues []string

	if c.MaxRetries < 0 {
		issues = append(issues, "max_retries must be >= 0")
	}
	if c.BackoffBase <= 0 {
		issues = append(issues, "backoff_base must be > 0")
	}
	if c.BackoffMax < c.BackoffBase {
		issues = append(issues, "backoff_max must be >= backoff_base")
	}
	for i, status := range c.RetryStatuses {
		if status < 100 || status > 599 {
			issues = append(issues, fmt.Sprintf("retry_statuses[%d]: %d is not a valid HTTP status", i, status))
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Policy decides whether a failed attempt is retried and how long to back
// off before the next attempt.
type Policy struct {
	cfg      Config
	statuses map[int]struct{}
}

// NewPolicy validates cfg and returns a Policy over it.
func NewPolicy(cfg Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	statuses := cfg.RetryStatuses
	if statuses == nil {
		statuses = DefaultRetryStatuses
	}
	set := make(map[int]struct{}, len(statuses))
	for _, status := range statuses {
		set[status] = struct{}{}
	}
	return &Policy{cfg: cfg, statuses: set}, nil
}

// MaxRetries returns the configured retry budget.
func (p *Policy) MaxRetries() int {
	return p.cfg.MaxRetries
}

// RetryableStatus reports whether an HTTP status is configured as transient.
func (p *Policy) RetryableStatus(code int) bool {
	_, ok := p.statuses[code]
	return ok
}

// Decide returns Retry when a failed attempt should be tried again: the
// retry budget must not be spent (attempts is the number of attempts already
// made) and the failure must be transient, meaning either a transport error
// or a status in the retryable set. Context cancellation is never retried.
// Successful attempts never reach Decide; callers accept them outright.
func (p *Policy) Decide(attempts, status int, err error) Decision {
	if attempts > p.cfg.MaxRetries {
		return Accept
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Accept
		}
		return Retry
	}
	if p.RetryableStatus(status) {
		return Retry
	}
	return Accept
}

// Delay returns the backoff pause before retry i, counting from 0 for the
// retry after the first failed attempt: backoff_base doubled per retry,
// capped at backoff_max. The sequence is deterministic and monotonically
// non-decreasing.
func (p *Policy) Delay(i int) time.Duration {
	if i < 0 {
		i = 0
	}
	if i >= 63 {
		return p.cfg.BackoffMax
	}
	if p.cfg.BackoffBase > p.cfg.BackoffMax>>uint(i) {
		return p.cfg.BackoffMax
	}
	return p.cfg.BackoffBase << uint(i)
}
