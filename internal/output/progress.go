package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/volleyhq/volley/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	aggregator *metrics.Aggregator
	ticker     *time.Ticker
	done       chan struct{}
	finished   chan struct{}
	writer     io.Writer
	active     int32
	start      time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(aggregator *metrics.Aggregator, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		aggregator: aggregator,
		ticker:     time.NewTicker(interval),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
		writer:     writer,
		start:      time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			report := p.aggregator.Report(time.Since(p.start))
			line := fmt.Sprintf("\rRequests: %d | Passed: %d | Failed: %d | RPS: %.1f",
				report.Total, report.Passed, report.Failed, report.RequestsPerSec)
			if report.TotalRetries > 0 {
				line += fmt.Sprintf(" | Retries: %d", report.TotalRetries)
			}
			fmt.Fprint(p.writer, line)
		case <-p.done:
			return
		}
	}
}
