package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/volleyhq/volley/internal/metrics"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, report metrics.Report) {
	fmt.Fprintln(w, "\n--- Volley Results ---")
	fmt.Fprintf(w, "Total Requests:    %d\n", report.Total)
	fmt.Fprintf(w, "Passed:            %d\n", report.Passed)
	fmt.Fprintf(w, "Failed:            %d\n", report.Failed)
	fmt.Fprintf(w, "Duration:          %s\n", report.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", report.RequestsPerSec)
	if report.TotalRetries > 0 {
		fmt.Fprintf(w, "Retries:           %d (%.2f per request)\n", report.TotalRetries, report.AvgRetries)
	}
	if report.ThresholdExceeded > 0 {
		fmt.Fprintf(w, "Over Threshold:    %d\n", report.ThresholdExceeded)
	}
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", report.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", report.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", report.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", report.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", report.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", report.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", report.P99Latency)

	if len(report.StatusCodes) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		codes := make([]int, 0, len(report.StatusCodes))
		for code := range report.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, report.StatusCodes[code])
		}
	}

	if len(report.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		names := make([]string, 0, len(report.Errors))
		for name := range report.Errors {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if report.Errors[names[i]] != report.Errors[names[j]] {
				return report.Errors[names[i]] > report.Errors[names[j]]
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %d\n", metrics.FriendlyErrorName(name), report.Errors[name])
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report metrics.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
