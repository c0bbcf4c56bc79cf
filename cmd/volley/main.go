package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/volleyhq/volley/internal/check"
	"github.com/volleyhq/volley/internal/config"
	"github.com/volleyhq/volley/internal/dashboard"
	"github.com/volleyhq/volley/internal/httpclient"
	"github.com/volleyhq/volley/internal/metrics"
	"github.com/volleyhq/volley/internal/output"
	"github.com/volleyhq/volley/internal/perf"
	"github.com/volleyhq/volley/internal/testdef"
	"github.com/volleyhq/volley/internal/threshold"
	"github.com/volleyhq/volley/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// runResult is what a completed invocation reports on. Only probe outcomes
// feed the report; functional tests contribute the failure count.
type runResult struct {
	report      metrics.Report
	outcomes    []perf.Outcome
	probeName   string
	started     time.Time
	failedTests int
	probes      int
}

// verdictError marks a run that completed but failed its checks. It maps to
// exit code 2, keeping test verdicts distinct from operational failures.
type verdictError struct {
	reason string
}

func (e *verdictError) Error() string { return e.reason }

// stderrFailureLogger reports failed requests in verbose mode. The mutex
// keeps concurrent workers from interleaving lines.
type stderrFailureLogger struct {
	mu sync.Mutex
}

func (l *stderrFailureLogger) LogFailure(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(os.Stderr, "[volley] request failed: %v\n", err)
}

// stderrWarnLogger surfaces extraction warnings in verbose mode.
type stderrWarnLogger struct{}

func (stderrWarnLogger) Warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[volley] "+format+"\n", args...)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var verdict *verdictError
		if errors.As(err, &verdict) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	asserts, err := threshold.ParseMultiple(cfg.Asserts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracer, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	var suite *testdef.Suite
	if cfg.File != "" {
		suite, err = loadSuite(cfg)
		if err != nil {
			return err
		}
	}

	aggregator := metrics.NewAggregator(cfg.Threshold)

	var logger perf.FailureLogger
	var warn check.Logger
	if cfg.Verbose {
		logger = &stderrFailureLogger{}
		warn = stderrWarnLogger{}
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(aggregator, dashboardConfig(cfg, suite), cancel)
		if err != nil {
			return err
		}
		dash.Start()
		defer dash.Stop()
	}

	var progress *output.ProgressReporter
	if showProgress(cfg) {
		progress = output.NewProgressReporter(aggregator, progressInterval, os.Stdout)
		progress.Start()
		defer progress.Stop()
	}

	var out io.Writer = io.Discard
	if textOutput(cfg) {
		out = os.Stdout
	}

	var result *runResult
	if suite != nil {
		result, err = newSuiteRunner(cfg, suite, tracer, aggregator, logger, warn, out).run(ctx)
	} else {
		result, err = runAdhoc(ctx, cfg, tracer, aggregator, logger)
	}
	if err != nil {
		return err
	}

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(os.Stdout)
	}
	if dash != nil {
		dash.Stop()
	}

	return finish(cfg, asserts, result)
}

// runAdhoc probes the single URL given on the command line.
func runAdhoc(ctx context.Context, cfg *config.Config, tracer *tracing.Provider, agg *metrics.Aggregator, logger perf.FailureLogger) (*runResult, error) {
	settings, err := settingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	req, err := renderRequest(httpclient.BuilderOptions{
		Method:   cfg.Method,
		Target:   cfg.URL,
		Headers:  cfg.Headers,
		Body:     cfg.Body,
		BodyFile: cfg.BodyFile,
	}, cfg.Expect, nil)
	if err != nil {
		return nil, err
	}

	client := newProbeClient(settings.spec, cfg)
	defer client.CloseIdleConnections()

	result := &runResult{started: time.Now(), probes: 1}
	outcomes, elapsed, err := executeProbe(ctx, settings, req, newHTTPExecutor(client, tracer), agg.Add, logger)
	if err != nil {
		return nil, err
	}
	result.outcomes = outcomes
	result.report = agg.Report(elapsed)
	return result, nil
}

// finish prints the report, exports the run record, and evaluates
// assertions. When assertions are given they own the verdict; otherwise any
// failed request fails the run, matching the behavior of an unadorned
// probe.
func finish(cfg *config.Config, asserts []threshold.Threshold, result *runResult) error {
	hasReport := result.probes > 0

	if cfg.JSONOutput {
		if hasReport {
			if err := output.PrintJSONReport(os.Stdout, result.report); err != nil {
				return err
			}
		}
	} else if hasReport {
		if cfg.File != "" {
			fmt.Fprintf(os.Stdout, "\n=== Suite Summary ===\n")
		}
		output.PrintReport(os.Stdout, result.report)
	}

	if cfg.Output != "" && len(result.outcomes) > 0 {
		record := output.NewRunRecord(result.probeName, result.started, result.report, result.outcomes)
		if err := output.Export(cfg.Output, record); err != nil {
			return err
		}
	}

	if len(asserts) > 0 {
		assertOut := io.Writer(os.Stdout)
		if cfg.JSONOutput {
			assertOut = os.Stderr
		}
		results := threshold.NewEvaluator(asserts).Evaluate(result.report)
		failed := 0
		for _, res := range results {
			fmt.Fprintln(assertOut, res.Message)
			if !res.Pass {
				failed++
			}
		}
		if failed > 0 {
			return &verdictError{reason: fmt.Sprintf("%d of %d assertions failed", failed, len(results))}
		}
	}

	if result.failedTests > 0 {
		return &verdictError{reason: fmt.Sprintf("%d functional tests failed", result.failedTests)}
	}

	if len(asserts) == 0 && result.report.Failed > 0 {
		return fmt.Errorf("%d requests failed", result.report.Failed)
	}
	return nil
}

func dashboardConfig(cfg *config.Config, suite *testdef.Suite) dashboard.RunConfig {
	rc := dashboard.RunConfig{
		Target:      cfg.URL,
		Method:      cfg.Method,
		Mode:        cfg.Mode,
		Concurrency: cfg.Concurrency,
		Repeat:      cfg.Repeat,
		Rate:        cfg.Rate,
		Timeout:     cfg.Timeout,
		Retries:     cfg.MaxRetries,
		ConfigFile:  cfg.ConfigFile,
	}
	if suite != nil {
		rc.Target = cfg.File
		rc.Repeat = plannedRequests(suite, cfg)
	}
	return rc
}

// showProgress reports whether the plain-text ticker runs. Suites print
// per-test results instead of a ticker.
func showProgress(cfg *config.Config) bool {
	return !cfg.JSONOutput && !cfg.Dashboard && !cfg.Quiet && cfg.File == ""
}

// textOutput reports whether per-test suite lines go to stdout.
func textOutput(cfg *config.Config) bool {
	return !cfg.JSONOutput && !cfg.Dashboard && !cfg.Quiet
}
