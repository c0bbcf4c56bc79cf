package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/volleyhq/volley/internal/metrics"
	"github.com/volleyhq/volley/internal/perf"
)

func sampleOutcomes() []perf.Outcome {
	outcomes := make([]perf.Outcome, 0, 100)
	for i := 0; i < 95; i++ {
		outcomes = append(outcomes, perf.Outcome{
			StatusCode: 200,
			Elapsed:    time.Duration(20+i) * time.Millisecond,
			Passed:     true,
		})
	}
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, perf.Outcome{
			StatusCode: 503,
			Elapsed:    40 * time.Millisecond,
			Retries:    3,
			Err:        errors.New("service unavailable"),
		})
	}
	return outcomes
}

func TestPrintReportBasic(t *testing.T) {
	report := metrics.Fold(sampleOutcomes(), 0, 2*time.Second)

	var buf bytes.Buffer
	PrintReport(&buf, report)

	output := buf.String()
	if !strings.Contains(output, "Total Requests") {
		t.Errorf("Expected total requests in output")
	}
	if !strings.Contains(output, "Passed:            95") {
		t.Errorf("Expected passed count in output, got:\n%s", output)
	}
	if !strings.Contains(output, "Failed:            5") {
		t.Errorf("Expected failed count in output, got:\n%s", output)
	}
	if !strings.Contains(output, "Retries:           15") {
		t.Errorf("Expected retry count in output, got:\n%s", output)
	}
}

func TestPrintReportStatusCodes(t *testing.T) {
	report := metrics.Fold(sampleOutcomes(), 0, 2*time.Second)

	var buf bytes.Buffer
	PrintReport(&buf, report)

	output := buf.String()
	if !strings.Contains(output, "Status Codes:") {
		t.Errorf("Expected Status Codes section in output")
	}
	if !strings.Contains(output, "200: 95") {
		t.Errorf("Expected 200 bucket in output, got:\n%s", output)
	}
	if !strings.Contains(output, "503: 5") {
		t.Errorf("Expected 503 bucket in output, got:\n%s", output)
	}
	// 200 sorts before 503.
	if strings.Index(output, "200:") > strings.Index(output, "503:") {
		t.Errorf("Expected status codes sorted ascending, got:\n%s", output)
	}
}

func TestPrintReportErrorsAreHumanized(t *testing.T) {
	report := metrics.Fold(sampleOutcomes(), 0, 2*time.Second)

	var buf bytes.Buffer
	PrintReport(&buf, report)

	output := buf.String()
	if !strings.Contains(output, "Errors:") {
		t.Errorf("Expected Errors section in output")
	}
	// The raw type key *errors.errorString shows as its friendly label.
	if !strings.Contains(output, "Request error: 5") {
		t.Errorf("Expected humanized error label in output, got:\n%s", output)
	}
}

func TestPrintJSONReport(t *testing.T) {
	report := metrics.Fold(sampleOutcomes(), 30*time.Millisecond, 2*time.Second)

	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, report); err != nil {
		t.Fatalf("PrintJSONReport failed: %v", err)
	}

	output := buf.String()
	for _, key := range []string{`"total"`, `"passed"`, `"failed"`, `"p99_ms"`, `"requests_per_sec"`, `"threshold_exceeded"`, `"status_codes"`} {
		if !strings.Contains(output, key) {
			t.Errorf("Expected %s in JSON output", key)
		}
	}
}
