package metrics

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/volleyhq/volley/internal/perf"
)

// Aggregator folds request outcomes into a Report. Add is commutative and
// associative over outcome order: every permutation of the same outcome set
// yields an identical report, which the engine's non-deterministic completion
// order requires. Internal accumulation is integer-exact; floats appear only
// in the snapshot.
type Aggregator struct {
	mu                sync.Mutex
	threshold         time.Duration
	hist              *hdrhistogram.Histogram
	passed            int64
	failed            int64
	minLatency        time.Duration
	maxLatency        time.Duration
	sumLatency        time.Duration
	totalRetries      int64
	thresholdExceeded int64
	statusCodes       map[int]int64
	errorsByType      map[string]int64
}

// Report is the aggregate of one run, recomputed fresh per snapshot and
// never mutated in place. When Total is zero the min/max/avg millisecond
// fields are NaN, not zero.
type Report struct {
	Total  int64 `json:"total"`
	Passed int64 `json:"passed"`
	Failed int64 `json:"failed"`

	MinLatency    time.Duration `json:"-"`
	MaxLatency    time.Duration `json:"-"`
	MeanLatency   time.Duration `json:"-"`
	P50Latency    time.Duration `json:"-"`
	P90Latency    time.Duration `json:"-"`
	P95Latency    time.Duration `json:"-"`
	P99Latency    time.Duration `json:"-"`
	StdDevLatency time.Duration `json:"-"`
	Duration      time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	MinMs          float64 `json:"min_ms"`
	MaxMs          float64 `json:"max_ms"`
	AvgMs          float64 `json:"avg_ms"`
	P50Ms          float64 `json:"p50_ms"`
	P90Ms          float64 `json:"p90_ms"`
	P95Ms          float64 `json:"p95_ms"`
	P99Ms          float64 `json:"p99_ms"`
	StdDevMs       float64 `json:"stddev_ms"`
	DurationMs     float64 `json:"duration_ms"`
	RequestsPerSec float64 `json:"requests_per_sec"`

	TotalRetries      int64   `json:"total_retries"`
	AvgRetries        float64 `json:"avg_retries_per_request"`
	ThresholdExceeded int64   `json:"threshold_exceeded"`

	StatusCodes map[int]int64  `json:"status_codes,omitempty"`
	Errors      map[string]int `json:"errors,omitempty"`
}

// NewAggregator returns an Aggregator counting outcomes over threshold.
// A zero threshold disables the counter.
func NewAggregator(threshold time.Duration) *Aggregator {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Aggregator{
		threshold:    threshold,
		hist:         h,
		statusCodes:  make(map[int]int64),
		errorsByType: make(map[string]int64),
	}
}

// Add folds one outcome into the aggregate. Safe for concurrent use.
func (a *Aggregator) Add(out perf.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if out.Elapsed > 0 {
		us := out.Elapsed.Microseconds()
		if us < a.hist.LowestTrackableValue() {
			us = a.hist.LowestTrackableValue()
		}
		if us > a.hist.HighestTrackableValue() {
			us = a.hist.HighestTrackableValue()
		}
		_ = a.hist.RecordValue(us)
	}
	a.sumLatency += out.Elapsed

	if a.passed+a.failed == 0 {
		a.minLatency = out.Elapsed
		a.maxLatency = out.Elapsed
	} else {
		if out.Elapsed < a.minLatency {
			a.minLatency = out.Elapsed
		}
		if out.Elapsed > a.maxLatency {
			a.maxLatency = out.Elapsed
		}
	}

	if out.Passed {
		a.passed++
	} else {
		a.failed++
	}

	a.totalRetries += int64(out.Retries)
	if a.threshold > 0 && out.Elapsed > a.threshold {
		a.thresholdExceeded++
	}
	if out.StatusCode != 0 {
		a.statusCodes[out.StatusCode]++
	}
	if out.Err != nil {
		errorType := fmt.Sprintf("%T", out.Err)
		if len(errorType) > 30 {
			errorType = errorType[len(errorType)-30:]
		}
		a.errorsByType[errorType]++
	}
}

// Report snapshots the aggregate. elapsed is the run's wall time, used for
// the throughput figure; collection may continue after a snapshot.
func (a *Aggregator) Report(elapsed time.Duration) Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := a.passed + a.failed
	report := Report{
		Total:             total,
		Passed:            a.passed,
		Failed:            a.failed,
		MinLatency:        a.minLatency,
		MaxLatency:        a.maxLatency,
		TotalRetries:      a.totalRetries,
		ThresholdExceeded: a.thresholdExceeded,
	}

	if total > 0 {
		report.MeanLatency = time.Duration(int64(a.sumLatency) / total)
		report.AvgRetries = float64(a.totalRetries) / float64(total)
		report.MinMs = float64(a.minLatency) / float64(time.Millisecond)
		report.MaxMs = float64(a.maxLatency) / float64(time.Millisecond)
		report.AvgMs = float64(report.MeanLatency) / float64(time.Millisecond)
	} else {
		report.MinMs = math.NaN()
		report.MaxMs = math.NaN()
		report.AvgMs = math.NaN()
	}

	if a.hist.TotalCount() > 0 {
		report.P50Latency = time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond
		report.P90Latency = time.Duration(a.hist.ValueAtQuantile(90)) * time.Microsecond
		report.P95Latency = time.Duration(a.hist.ValueAtQuantile(95)) * time.Microsecond
		report.P99Latency = time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond
		report.StdDevLatency = time.Duration(a.hist.StdDev()) * time.Microsecond
		report.P50Ms = float64(report.P50Latency) / float64(time.Millisecond)
		report.P90Ms = float64(report.P90Latency) / float64(time.Millisecond)
		report.P95Ms = float64(report.P95Latency) / float64(time.Millisecond)
		report.P99Ms = float64(report.P99Latency) / float64(time.Millisecond)
		report.StdDevMs = float64(report.StdDevLatency) / float64(time.Millisecond)
	}

	report.Duration = elapsed
	report.DurationMs = float64(elapsed) / float64(time.Millisecond)
	if elapsed > 0 && total > 0 {
		report.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(a.statusCodes) > 0 {
		report.StatusCodes = make(map[int]int64, len(a.statusCodes))
		for code, count := range a.statusCodes {
			report.StatusCodes[code] = count
		}
	}
	if len(a.errorsByType) > 0 {
		report.Errors = make(map[string]int, len(a.errorsByType))
		for k, v := range a.errorsByType {
			report.Errors[k] = int(v)
		}
	}

	return report
}

// Fold aggregates a complete outcome set in one call.
func Fold(outcomes []perf.Outcome, threshold, elapsed time.Duration) Report {
	agg := NewAggregator(threshold)
	for _, out := range outcomes {
		agg.Add(out)
	}
	return agg.Report(elapsed)
}
