package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/volleyhq/volley/internal/check"
	"github.com/volleyhq/volley/internal/config"
	"github.com/volleyhq/volley/internal/httpclient"
	"github.com/volleyhq/volley/internal/metrics"
	"github.com/volleyhq/volley/internal/output"
	"github.com/volleyhq/volley/internal/perf"
	"github.com/volleyhq/volley/internal/retry"
	"github.com/volleyhq/volley/internal/testdef"
	"github.com/volleyhq/volley/internal/tracing"
	"github.com/volleyhq/volley/internal/variables"
)

// maxBodyBytes caps how much of a functional response is read for
// validation and extraction.
const maxBodyBytes = 1024 * 1024

// probeSettings is the fully resolved shape of one probe run.
type probeSettings struct {
	spec   perf.Spec
	retry  retry.Config
	warmup int
}

// settingsFromConfig resolves probe settings from the CLI configuration
// alone, the shape an ad-hoc probe runs with.
func settingsFromConfig(cfg *config.Config) (probeSettings, error) {
	mode, err := perf.ParseMode(cfg.Mode)
	if err != nil {
		return probeSettings{}, err
	}
	return probeSettings{
		spec: perf.Spec{
			Repeat:         cfg.Repeat,
			Concurrency:    cfg.Concurrency,
			Mode:           mode,
			Threshold:      cfg.Threshold,
			Timeout:        cfg.Timeout,
			ConnectTimeout: cfg.ConnectTimeout,
			Rate:           cfg.Rate,
		},
		retry: retry.Config{
			MaxRetries:    cfg.MaxRetries,
			BackoffBase:   cfg.BackoffBase,
			BackoffMax:    cfg.BackoffMax,
			RetryStatuses: cfg.RetryStatuses,
		},
		warmup: cfg.Warmup,
	}, nil
}

// settingsForTest layers a test's performance block over the CLI
// configuration. Settings the user stated explicitly win over the suite;
// suite values win over built-in defaults.
func settingsForTest(t *testdef.Test, cfg *config.Config) (probeSettings, error) {
	base, err := settingsFromConfig(cfg)
	if err != nil {
		return probeSettings{}, fmt.Errorf("test %q: %w", t.Name, err)
	}

	p := t.Performance
	ex := cfg.Explicit
	if p.Repeat > 0 && !ex.Repeat {
		base.spec.Repeat = p.Repeat
	}
	if p.Concurrency > 0 && !ex.Concurrency {
		base.spec.Concurrency = p.Concurrency
	}
	if p.Mode != "" && !ex.Mode {
		mode, err := perf.ParseMode(p.Mode)
		if err != nil {
			return probeSettings{}, fmt.Errorf("test %q: %w", t.Name, err)
		}
		base.spec.Mode = mode
	}
	if p.Threshold > 0 && !ex.Threshold {
		base.spec.Threshold = p.Threshold
	}
	if p.Rate > 0 && !ex.Rate {
		base.spec.Rate = p.Rate
	}
	if p.Timeout > 0 && !ex.Timeout {
		base.spec.Timeout = p.Timeout
	}
	if p.ConnectTimeout > 0 && !ex.ConnectTimeout {
		base.spec.ConnectTimeout = p.ConnectTimeout
	}
	if p.Warmup > 0 && !ex.Warmup {
		base.warmup = p.Warmup
	}
	base.retry = resolveRetry(t, cfg)

	return base, nil
}

// resolveRetry merges a test's retry overrides with CLI-stated values.
func resolveRetry(t *testdef.Test, cfg *config.Config) retry.Config {
	rc := t.Retry.Config()
	ex := cfg.Explicit
	if ex.MaxRetries {
		rc.MaxRetries = cfg.MaxRetries
	}
	if ex.BackoffBase {
		rc.BackoffBase = cfg.BackoffBase
	}
	if ex.BackoffMax {
		rc.BackoffMax = cfg.BackoffMax
	}
	if ex.RetryStatuses {
		rc.RetryStatuses = append([]int(nil), cfg.RetryStatuses...)
	}
	return rc
}

// newProbeClient builds the client one probe runs through. Cooperative mode
// leaves the client timeout unset; per-attempt budgets arrive through the
// engine's call options instead.
func newProbeClient(spec perf.Spec, cfg *config.Config) *http.Client {
	opts := httpclient.ClientOptions{
		ConnectTimeout:    spec.ConnectTimeout,
		DisableKeepAlives: cfg.NoKeepAlive,
		Insecure:          cfg.Insecure,
	}
	if spec.Mode != perf.ModeCooperative {
		opts.Timeout = spec.Timeout
	}
	return httpclient.NewClient(opts)
}

// executeProbe runs the warmup pass, then the measured pass. Warmup
// outcomes are discarded; measured outcomes stream into onOutcome as they
// finish.
func executeProbe(ctx context.Context, settings probeSettings, req *perf.Request, exec perf.Executor, onOutcome func(perf.Outcome), logger perf.FailureLogger) ([]perf.Outcome, time.Duration, error) {
	if settings.warmup > 0 {
		spec := settings.spec
		spec.Repeat = settings.warmup
		warm, err := perf.New(perf.Options{
			Spec:     spec,
			Request:  req,
			Executor: exec,
			Retry:    settings.retry,
		})
		if err != nil {
			return nil, 0, err
		}
		warm.Run(ctx)
	}

	runner, err := perf.New(perf.Options{
		Spec:      settings.spec,
		Request:   req,
		Executor:  exec,
		Retry:     settings.retry,
		OnOutcome: onOutcome,
		Logger:    logger,
	})
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	outcomes := runner.Run(ctx)
	return outcomes, time.Since(start), nil
}

// loadSuite reads the suite file and applies the base URL override.
func loadSuite(cfg *config.Config) (*testdef.Suite, error) {
	suite, err := testdef.Load(cfg.File)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL != "" {
		suite.BaseURL = cfg.BaseURL
	}
	return suite, nil
}

// plannedRequests sums the measured requests the suite's probes will issue,
// used to size the dashboard's progress gauge.
func plannedRequests(suite *testdef.Suite, cfg *config.Config) int {
	total := 0
	for i := range suite.Tests {
		t := &suite.Tests[i]
		if !t.IsProbe() {
			continue
		}
		if settings, err := settingsForTest(t, cfg); err == nil {
			total += settings.spec.Repeat
		}
	}
	return total
}

// suiteRunner drives the tests of one suite in order, carrying extracted
// variables from test to test.
type suiteRunner struct {
	cfg    *config.Config
	suite  *testdef.Suite
	tracer *tracing.Provider
	store  variables.Store
	agg    *metrics.Aggregator
	logger perf.FailureLogger
	warn   check.Logger
	out    io.Writer
	client *http.Client
}

func newSuiteRunner(cfg *config.Config, suite *testdef.Suite, tracer *tracing.Provider, agg *metrics.Aggregator, logger perf.FailureLogger, warn check.Logger, out io.Writer) *suiteRunner {
	return &suiteRunner{
		cfg:    cfg,
		suite:  suite,
		tracer: tracer,
		store:  variables.Seed(suite.Variables),
		agg:    agg,
		logger: logger,
		warn:   warn,
		out:    out,
		client: httpclient.NewClient(httpclient.ClientOptions{
			Timeout:           cfg.Timeout,
			ConnectTimeout:    cfg.ConnectTimeout,
			DisableKeepAlives: cfg.NoKeepAlive,
			Insecure:          cfg.Insecure,
		}),
	}
}

// run executes every test in order. Functional test failures are recorded,
// never fatal; a cancelled context stops admitting tests and reports what
// ran. Only probe outcomes feed the pooled report.
func (s *suiteRunner) run(ctx context.Context) (*runResult, error) {
	result := &runResult{started: time.Now()}
	var probing time.Duration

	for i := range s.suite.Tests {
		if ctx.Err() != nil {
			break
		}
		test := &s.suite.Tests[i]
		fmt.Fprintf(s.out, "\n=== %s ===\n", test.Name)

		if test.IsProbe() {
			outcomes, elapsed, err := s.runProbeTest(ctx, test)
			if err != nil {
				return nil, err
			}
			result.outcomes = append(result.outcomes, outcomes...)
			result.probes++
			result.probeName = test.Name
			probing += elapsed
			continue
		}

		passed, err := s.runFunctionalTest(ctx, test)
		if err != nil {
			return nil, err
		}
		if !passed {
			result.failedTests++
		}
	}

	if result.probes != 1 {
		result.probeName = ""
	}
	result.report = s.agg.Report(probing)
	return result, nil
}

func (s *suiteRunner) runProbeTest(ctx context.Context, test *testdef.Test) ([]perf.Outcome, time.Duration, error) {
	settings, err := settingsForTest(test, s.cfg)
	if err != nil {
		return nil, 0, err
	}

	req, err := renderRequest(httpclient.BuilderOptions{
		Method:   test.Method,
		Target:   s.suite.ResolveURL(test.URL),
		Headers:  test.Headers,
		Body:     test.Body,
		BodyFile: test.BodyFile,
	}, test.ExpectedStatus, s.store.Snapshot())
	if err != nil {
		return nil, 0, fmt.Errorf("test %q: %w", test.Name, err)
	}

	client := newProbeClient(settings.spec, s.cfg)
	defer client.CloseIdleConnections()

	outcomes, elapsed, err := executeProbe(ctx, settings, req, newHTTPExecutor(client, s.tracer), s.agg.Add, s.logger)
	if err != nil {
		return nil, 0, fmt.Errorf("test %q: %w", test.Name, err)
	}

	output.PrintReport(s.out, metrics.Fold(outcomes, settings.spec.Threshold, elapsed))
	return outcomes, elapsed, nil
}

// runFunctionalTest issues the test's request once, retrying transport
// errors and retryable statuses per the resolved policy. Validator failures
// are final; retries only cover not getting an acceptable response at all.
func (s *suiteRunner) runFunctionalTest(ctx context.Context, test *testdef.Test) (bool, error) {
	policy, err := retry.NewPolicy(resolveRetry(test, s.cfg))
	if err != nil {
		return false, fmt.Errorf("test %q: %w", test.Name, err)
	}

	builder, err := httpclient.NewRequestBuilder(httpclient.BuilderOptions{
		Method:   test.Method,
		Target:   s.suite.ResolveURL(test.URL),
		Headers:  test.Headers,
		Body:     test.Body,
		BodyFile: test.BodyFile,
	})
	if err != nil {
		return false, fmt.Errorf("test %q: %w", test.Name, err)
	}

	values := s.store.Snapshot()
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			s.failLine(test.Name, err)
			return false, nil
		}

		status, body, elapsed, err := s.attempt(ctx, builder, values, attempt)
		if err == nil && statusIn(test.ExpectedStatus, status) {
			return s.finishFunctional(test, status, body, elapsed), nil
		}

		if ctx.Err() == nil && policy.Decide(attempt+1, status, err) == retry.Retry {
			select {
			case <-time.After(policy.Delay(attempt)):
				attempt++
				continue
			case <-ctx.Done():
			}
		}

		if err == nil {
			err = &perf.HTTPError{StatusCode: status}
		}
		s.failLine(test.Name, err)
		return false, nil
	}
}

// finishFunctional applies validators and extractors to an accepted
// response and prints the verdict line.
func (s *suiteRunner) finishFunctional(test *testdef.Test, status int, body []byte, elapsed time.Duration) bool {
	failures := check.Apply(body, test.Validators)
	if len(failures) > 0 {
		fmt.Fprintf(s.out, "✗ %s: %d of %d validators failed\n", test.Name, len(failures), len(test.Validators))
		for _, f := range failures {
			fmt.Fprintf(s.out, "    %s\n", f)
		}
		return false
	}

	if len(test.Extract) > 0 {
		for name, value := range check.ExtractAll(body, test.Extract, s.warn) {
			s.store.Set(name, value)
		}
	}

	fmt.Fprintf(s.out, "✓ %s (%d, %s)\n", test.Name, status, elapsed.Round(time.Millisecond))
	return true
}

// attempt issues one functional request and reads the body for validation.
func (s *suiteRunner) attempt(ctx context.Context, builder *httpclient.RequestBuilder, values map[string]string, attempt int) (int, []byte, time.Duration, error) {
	req, err := builder.Build(ctx, values)
	if err != nil {
		return 0, nil, 0, err
	}

	spanCtx, span := tracing.StartAttemptSpan(ctx, s.tracer.Tracer(), req.Method, req.URL.String(), attempt)
	req = req.WithContext(spanCtx)
	if s.tracer.ShouldPropagate() {
		tracing.InjectHTTPHeaders(spanCtx, req.Header)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		tracing.EndAttemptSpan(span, 0, err)
		return 0, nil, elapsed, err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if readErr != nil {
		body = nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	tracing.EndAttemptSpan(span, resp.StatusCode, nil)

	return resp.StatusCode, body, elapsed, nil
}

func (s *suiteRunner) failLine(name string, err error) {
	fmt.Fprintf(s.out, "✗ %s: %v\n", name, err)
}

func statusIn(expected []int, status int) bool {
	for _, code := range expected {
		if code == status {
			return true
		}
	}
	return false
}
