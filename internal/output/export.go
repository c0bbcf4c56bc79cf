package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/volleyhq/volley/internal/metrics"
	"github.com/volleyhq/volley/internal/perf"
)

// RunRecord is the exported shape of one finished run.
type RunRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Report    metrics.Report  `json:"report"`
	Outcomes  []OutcomeRecord `json:"outcomes,omitempty"`
}

// OutcomeRecord is one request outcome in export form.
type OutcomeRecord struct {
	Index     int     `json:"index"`
	Status    int     `json:"status"`
	ElapsedMs float64 `json:"elapsed_ms"`
	Passed    bool    `json:"passed"`
	Retries   int     `json:"retries"`
	Error     string  `json:"error,omitempty"`
}

// NewRunID returns a fresh ULID for a run.
func NewRunID() string {
	return ulid.Make().String()
}

// NewRunRecord assembles a run record from a finished run.
func NewRunRecord(name string, startedAt time.Time, report metrics.Report, outcomes []perf.Outcome) RunRecord {
	record := RunRecord{
		ID:        NewRunID(),
		Name:      name,
		StartedAt: startedAt.UTC(),
		Report:    report,
	}
	if len(outcomes) > 0 {
		record.Outcomes = make([]OutcomeRecord, len(outcomes))
		for i, out := range outcomes {
			row := OutcomeRecord{
				Index:     i,
				Status:    out.StatusCode,
				ElapsedMs: float64(out.Elapsed) / float64(time.Millisecond),
				Passed:    out.Passed,
				Retries:   out.Retries,
			}
			if out.Err != nil {
				row.Error = out.Err.Error()
			}
			record.Outcomes[i] = row
		}
	}
	return record
}

// Export writes the run record to path as JSON or CSV, chosen by extension.
// The write is guarded by an advisory lock so concurrent processes sharing
// the path do not interleave.
func Export(path string, record RunRecord) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return exportJSON(path, record)
	case ".csv":
		return exportCSV(path, record)
	default:
		return fmt.Errorf("unsupported export format %q (use .json or .csv)", filepath.Ext(path))
	}
}

func exportJSON(path string, record RunRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Sync()
}

func exportCSV(path string, record RunRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"index", "status", "elapsed_ms", "passed", "retries", "error"}); err != nil {
		return err
	}
	for _, row := range record.Outcomes {
		fields := []string{
			strconv.Itoa(row.Index),
			strconv.Itoa(row.Status),
			strconv.FormatFloat(row.ElapsedMs, 'f', 3, 64),
			strconv.FormatBool(row.Passed),
			strconv.Itoa(row.Retries),
			row.Error,
		}
		if err := w.Write(fields); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}
