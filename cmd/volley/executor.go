package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/volleyhq/volley/internal/httpclient"
	"github.com/volleyhq/volley/internal/perf"
	"github.com/volleyhq/volley/internal/tracing"
)

// httpExecutor implements perf.Executor over a shared HTTP client. One
// Execute call is one physical attempt; the engine owns retries and
// pass/fail classification.
type httpExecutor struct {
	client *http.Client
	tracer *tracing.Provider
}

func newHTTPExecutor(client *http.Client, tracer *tracing.Provider) *httpExecutor {
	return &httpExecutor{client: client, tracer: tracer}
}

// Execute issues the described request once. A per-attempt budget in opts is
// layered onto the context; dialing limits live in the shared client's
// transport. The response body is drained so keep-alive connections return
// to the pool.
func (e *httpExecutor) Execute(ctx context.Context, req *perf.Request, opts perf.CallOptions) perf.Observation {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ctx, span := tracing.StartAttemptSpan(ctx, e.tracer.Tracer(), req.Method, req.URL, opts.Attempt)

	start := time.Now()
	httpReq, err := e.newRequest(ctx, req)
	if err != nil {
		tracing.EndAttemptSpan(span, 0, err)
		return perf.Observation{Elapsed: time.Since(start), Err: err}
	}

	resp, err := e.client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		tracing.EndAttemptSpan(span, 0, err)
		return perf.Observation{Elapsed: elapsed, Err: err}
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	tracing.EndAttemptSpan(span, resp.StatusCode, nil)

	return perf.Observation{StatusCode: resp.StatusCode, Elapsed: elapsed}
}

func (e *httpExecutor) newRequest(ctx context.Context, req *perf.Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if e.tracer.ShouldPropagate() {
		tracing.InjectHTTPHeaders(ctx, httpReq.Header)
	}
	return httpReq, nil
}

// renderRequest resolves a request template into the immutable descriptor a
// probe replays. Placeholders are expanded here, once; the body is
// materialized into memory so concurrent attempts never share a reader.
func renderRequest(opts httpclient.BuilderOptions, expect []int, values map[string]string) (*perf.Request, error) {
	builder, err := httpclient.NewRequestBuilder(opts)
	if err != nil {
		return nil, err
	}
	rendered, err := builder.Build(context.Background(), values)
	if err != nil {
		return nil, err
	}

	var body []byte
	if rendered.Body != nil {
		body, err = io.ReadAll(rendered.Body)
		_ = rendered.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	headers := make(map[string]string, len(rendered.Header))
	for key := range rendered.Header {
		headers[key] = rendered.Header.Get(key)
	}

	return &perf.Request{
		Method:   rendered.Method,
		URL:      rendered.URL.String(),
		Headers:  headers,
		Body:     body,
		Expected: expect,
	}, nil
}
