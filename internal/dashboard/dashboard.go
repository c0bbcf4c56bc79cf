package dashboard

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/volleyhq/volley/internal/metrics"
)

// RunConfig holds run parameters for display.
type RunConfig struct {
	Target      string        // Full target URL
	Method      string        // HTTP method
	Mode        string        // "parallel" or "cooperative"
	Concurrency int           // Upper bound on in-flight requests
	Repeat      int           // Total requests to execute
	Rate        float64       // Requests per second (0 = unlimited)
	Timeout     time.Duration // Per-attempt timeout
	Retries     int           // Max retries per request
	ConfigFile  string        // Path to config file if used
}

// Dashboard renders a live terminal UI fed from aggregator snapshots.
type Dashboard struct {
	aggregator   *metrics.Aggregator
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex
	stopOnce     sync.Once

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	progressGauge  *widgets.Gauge
	statusList     *widgets.List
	errorList      *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph
	latencyHistory []float64
	startTime      time.Time
	runConfig      RunConfig
}

// New creates a new Dashboard.
func New(aggregator *metrics.Aggregator, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		aggregator:     aggregator,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, 100),
		startTime:      time.Now(),
		runConfig:      cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	// Latency Sparkline
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	// Latency Metrics Paragraph
	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP90: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	// Progress Gauge
	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Progress"
	d.progressGauge.Percent = 0
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	// Status Code List
	d.statusList = widgets.NewList()
	d.statusList.Title = "Status Codes"
	d.statusList.Rows = []string{"Awaiting data"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	// Error List
	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors"
	d.errorList.Rows = []string{"No errors"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorRed)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	// Summary Paragraph
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	// Metrics Paragraph (plain text summary)
	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Metrics"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.18,
			ui.NewCol(0.5, d.progressGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.28,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.40,
			ui.NewCol(0.5, d.statusList),
			ui.NewCol(0.5, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop tears the dashboard down and restores the terminal. Safe to call
// more than once.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
		d.wg.Wait()
		ui.Close()
		// Give terminal time to restore
		time.Sleep(100 * time.Millisecond)
	})
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			// Drain any remaining events
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			// Check if context is done to avoid blocking
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Do not return here; wait for Stop() to cancel context
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the aggregator.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	report := d.aggregator.Report(elapsed)

	// Update latency history for sparkline
	if report.MeanLatency > 0 {
		latencyMs := report.AvgMs
		d.latencyHistory = append(d.latencyHistory, latencyMs)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | Current: %.2fms | Min: %.2fms | Max: %.2fms",
			latencyMs,
			report.MinMs,
			report.MaxMs,
		)
	}

	progress := 0
	if d.runConfig.Repeat > 0 {
		progress = int((float64(report.Total) / float64(d.runConfig.Repeat)) * 100)
	}
	if progress > 100 {
		progress = 100
	}
	d.progressGauge.Percent = progress
	d.progressGauge.Label = fmt.Sprintf("%d/%d (%.1f RPS)", report.Total, d.runConfig.Repeat, report.RequestsPerSec)

	passRate := 0.0
	if report.Total > 0 {
		passRate = (float64(report.Passed) / float64(report.Total)) * 100
	}

	params := d.formatRunParams()

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s | Total: %d | Pass Rate: %.1f%%",
		d.runConfig.Target,
		params,
		elapsed.Round(time.Second),
		report.Total,
		passRate,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Total Requests:    %d\nPassed:            %d\nFailed:            %d\nRetries:           %d\nOver Threshold:    %d\nCurrent RPS:       %.2f\nMin Latency:       %.2fms\nMean Latency:      %.2fms",
		report.Total,
		report.Passed,
		report.Failed,
		report.TotalRetries,
		report.ThresholdExceeded,
		report.RequestsPerSec,
		msOrZero(report.MinMs),
		msOrZero(report.AvgMs),
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms",
		msOrZero(report.MinMs),
		msOrZero(report.AvgMs),
		report.P50Ms,
		report.P90Ms,
		report.P99Ms,
	)

	d.statusList.Rows = formatStatusRows(report.StatusCodes)
	d.errorList.Rows = formatErrorRows(report.Errors)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func msOrZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func formatStatusRows(codes map[int]int64) []string {
	if len(codes) == 0 {
		return []string{"[Awaiting data](fg:green)"}
	}
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Ints(keys)
	rows := make([]string, 0, len(keys))
	for _, code := range keys {
		color := "green"
		if code >= 400 {
			color = "red"
		}
		rows = append(rows, fmt.Sprintf("[%d](fg:%s) %d", code, color, codes[code]))
	}
	return rows
}

func formatErrorRows(errs map[string]int) []string {
	if len(errs) == 0 {
		return []string{"[No errors](fg:green)"}
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if errs[names[i]] == errs[names[j]] {
			return names[i] < names[j]
		}
		return errs[names[i]] > errs[names[j]]
	})
	maxRows := len(names)
	if maxRows > 10 {
		maxRows = 10
	}
	rows := make([]string, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		name := names[i]
		rows = append(rows, fmt.Sprintf("[%s](fg:red) %d", metrics.FriendlyErrorName(name), errs[name]))
	}
	return rows
}

// formatRunParams formats the run parameters for display.
func (d *Dashboard) formatRunParams() string {
	var parts []string

	if d.runConfig.Method != "" && d.runConfig.Method != "GET" {
		parts = append(parts, fmt.Sprintf("Method: %s", d.runConfig.Method))
	}

	if d.runConfig.Mode != "" {
		parts = append(parts, fmt.Sprintf("Mode: %s", d.runConfig.Mode))
	}

	if d.runConfig.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Concurrency: %d", d.runConfig.Concurrency))
	}

	if d.runConfig.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %.0f/s", d.runConfig.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}

	if d.runConfig.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.runConfig.Timeout))
	}

	if d.runConfig.Retries > 0 {
		parts = append(parts, fmt.Sprintf("Retries: %d", d.runConfig.Retries))
	}

	if d.runConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.runConfig.ConfigFile))
	}

	if len(parts) == 0 {
		return ""
	}

	return strings.Join(parts, " | ")
}
