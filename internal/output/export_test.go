package output

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/volleyhq/volley/internal/metrics"
	"github.com/volleyhq/volley/internal/perf"
)

func sampleRecord() RunRecord {
	outcomes := []perf.Outcome{
		{StatusCode: 200, Elapsed: 25 * time.Millisecond, Passed: true},
		{StatusCode: 503, Elapsed: 40 * time.Millisecond, Retries: 3, Err: errors.New("boom, with comma")},
	}
	report := metrics.Fold(outcomes, 0, time.Second)
	return NewRunRecord("probe search", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), report, outcomes)
}

func TestNewRunID(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	if len(a) != 26 {
		t.Errorf("NewRunID() length = %d, want 26", len(a))
	}
	if a == b {
		t.Error("NewRunID() must not repeat")
	}
}

func TestNewRunRecord(t *testing.T) {
	record := sampleRecord()

	if record.ID == "" {
		t.Error("record must carry a run id")
	}
	if record.Name != "probe search" {
		t.Errorf("Name = %q", record.Name)
	}
	if len(record.Outcomes) != 2 {
		t.Fatalf("Outcomes length = %d, want 2", len(record.Outcomes))
	}
	if record.Outcomes[0].Index != 0 || record.Outcomes[1].Index != 1 {
		t.Error("outcome indexes must follow slot order")
	}
	if record.Outcomes[1].Error != "boom, with comma" {
		t.Errorf("Error = %q", record.Outcomes[1].Error)
	}
	if record.Outcomes[0].ElapsedMs != 25 {
		t.Errorf("ElapsedMs = %v, want 25", record.Outcomes[0].ElapsedMs)
	}
}

func TestExportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	record := sampleRecord()

	if err := Export(path, record); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var got RunRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.ID != record.ID {
		t.Errorf("ID = %q, want %q", got.ID, record.ID)
	}
	if got.Report.Total != 2 || got.Report.Failed != 1 {
		t.Errorf("Report = %+v", got.Report)
	}
	if len(got.Outcomes) != 2 {
		t.Errorf("Outcomes length = %d, want 2", len(got.Outcomes))
	}
}

func TestExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	record := sampleRecord()

	if err := Export(path, record); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}

	wantHeader := []string{"index", "status", "elapsed_ms", "passed", "retries", "error"}
	if !reflect.DeepEqual(rows[0], wantHeader) {
		t.Errorf("header = %v, want %v", rows[0], wantHeader)
	}

	want := []string{"1", "503", "40.000", "false", "3", "boom, with comma"}
	if !reflect.DeepEqual(rows[2], want) {
		t.Errorf("row = %v, want %v", rows[2], want)
	}
}

func TestExportUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.txt")
	err := Export(path, sampleRecord())
	if err == nil {
		t.Fatal("Export() with .txt should fail")
	}
	if !strings.Contains(err.Error(), "unsupported export format") {
		t.Errorf("error = %v", err)
	}
}
