package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/volleyhq/volley/internal/metrics"
)

// Threshold represents a report assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "latency", "failed"
	Aggregate string  // e.g., "p95", "p99", "avg", "max", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The value to compare against
	Raw       string  // Original assertion string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against an aggregate report.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided report.
func (e *Evaluator) Evaluate(report metrics.Report) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		result := evaluateOne(t, report)
		results = append(results, result)
	}
	return results
}

func evaluateOne(t Threshold, report metrics.Report) Result {
	actual, err := extractMetricValue(t, report)
	if err != nil {
		return Result{
			Threshold: t,
			Actual:    0,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

// Parse parses an assertion string into a Threshold struct.
// Supported formats:
//   - "latency:p95 < 500"       (latency percentile in ms)
//   - "latency:avg < 200"       (average latency in ms)
//   - "latency:max < 1000"      (max latency in ms)
//   - "failed:rate < 0.01"      (failure rate as decimal)
//   - "failed:count == 0"       (failure count)
//   - "requests:rate > 100"     (requests per second)
//   - "rps:mean > 100"          (requests per second)
//   - "retries:avg <= 1"        (mean retries per request)
//   - "threshold:exceeded == 0" (requests over the latency threshold)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	// Pattern: metric:aggregate operator value
	// e.g., "latency:p95 < 500"
	pattern := regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)
	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'latency:p95 < 500')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !isValidMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: latency, failed, passed, requests, rps, retries, threshold)", metric)
	}

	if !isValidAggregate(aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: p50, p90, p95, p99, avg, mean, min, max, stddev, rate, count, exceeded)", aggregate)
	}

	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple assertion strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

func isValidMetric(metric string) bool {
	valid := []string{"latency", "failed", "passed", "requests", "rps", "retries", "threshold"}
	for _, v := range valid {
		if metric == v {
			return true
		}
	}
	return false
}

func isValidAggregate(aggregate string) bool {
	valid := []string{"p50", "p90", "p95", "p99", "avg", "mean", "min", "max", "stddev", "rate", "count", "exceeded"}
	for _, v := range valid {
		if aggregate == v {
			return true
		}
	}
	return false
}

func isValidOperator(operator string) bool {
	valid := []string{"<", "<=", ">", ">=", "=="}
	for _, v := range valid {
		if operator == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, report metrics.Report) (float64, error) {
	switch t.Metric {
	case "latency":
		return extractLatencyMetric(t.Aggregate, report)
	case "failed":
		return extractOutcomeMetric(t.Aggregate, report.Failed, report.Total, "failed")
	case "passed":
		return extractOutcomeMetric(t.Aggregate, report.Passed, report.Total, "passed")
	case "requests":
		return extractRequestMetric(t.Aggregate, report)
	case "rps":
		switch t.Aggregate {
		case "avg", "mean", "rate":
			return report.RequestsPerSec, nil
		default:
			return 0, fmt.Errorf("unsupported aggregate %q for rps (use 'avg' or 'mean')", t.Aggregate)
		}
	case "retries":
		switch t.Aggregate {
		case "count":
			return float64(report.TotalRetries), nil
		case "avg", "mean":
			return report.AvgRetries, nil
		default:
			return 0, fmt.Errorf("unsupported aggregate %q for retries (use 'count' or 'avg')", t.Aggregate)
		}
	case "threshold":
		switch t.Aggregate {
		case "exceeded", "count":
			return float64(report.ThresholdExceeded), nil
		case "rate":
			if report.Total == 0 {
				return 0, nil
			}
			return float64(report.ThresholdExceeded) / float64(report.Total), nil
		default:
			return 0, fmt.Errorf("unsupported aggregate %q for threshold (use 'exceeded' or 'rate')", t.Aggregate)
		}
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, report metrics.Report) (float64, error) {
	switch aggregate {
	case "p50":
		return report.P50Ms, nil
	case "p90":
		return report.P90Ms, nil
	case "p95":
		return report.P95Ms, nil
	case "p99":
		return report.P99Ms, nil
	case "avg", "mean":
		return report.AvgMs, nil
	case "min":
		return report.MinMs, nil
	case "max":
		return report.MaxMs, nil
	case "stddev":
		return report.StdDevMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for latency", aggregate)
	}
}

func extractOutcomeMetric(aggregate string, count, total int64, name string) (float64, error) {
	switch aggregate {
	case "count":
		return float64(count), nil
	case "rate":
		if total == 0 {
			return 0, nil
		}
		return float64(count) / float64(total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s (use 'count' or 'rate')", aggregate, name)
	}
}

func extractRequestMetric(aggregate string, report metrics.Report) (float64, error) {
	switch aggregate {
	case "count":
		return float64(report.Total), nil
	case "rate":
		return report.RequestsPerSec, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for requests (use 'count' or 'rate')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Floating point comparison with a small epsilon.
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
