package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/volleyhq/volley/internal/placeholders"
)

// ClientOptions tunes the shared HTTP client probes run through.
type ClientOptions struct {
	// Timeout bounds one whole attempt including the body read. Zero means
	// no client-side limit.
	Timeout time.Duration

	// ConnectTimeout bounds dialing only. Zero falls back to 30 seconds.
	ConnectTimeout time.Duration

	// DisableKeepAlives forces a fresh connection per attempt.
	DisableKeepAlives bool

	// Insecure skips TLS certificate verification.
	Insecure bool
}

// NewClient returns an HTTP client with a transport sized for sustained
// probing against a single host.
func NewClient(opts ClientOptions) *http.Client {
	timeout := opts.Timeout
	if timeout < 0 {
		timeout = 0
	}
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 30 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     opts.DisableKeepAlives,
	}
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// BuilderOptions describes the request template a builder renders from.
type BuilderOptions struct {
	Method   string
	Target   string
	Headers  map[string]string
	Body     string
	BodyFile string
}

// RequestBuilder renders attempt requests from a validated template.
type RequestBuilder struct {
	method  string
	target  string
	headers http.Header
	body    BodySource
}

// NewRequestBuilder validates the template once so per-attempt Build calls
// cannot fail on malformed headers or a missing body file.
func NewRequestBuilder(opts BuilderOptions) (*RequestBuilder, error) {
	target := strings.TrimSpace(opts.Target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	body, err := NewBodySource(opts.Body, opts.BodyFile)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for key, value := range opts.Headers {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" || strings.ContainsAny(trimmed, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonical := http.CanonicalHeaderKey(trimmed)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonical)
		}
		headers.Set(canonical, value)
	}

	return &RequestBuilder{
		method:  method,
		target:  target,
		headers: headers,
		body:    body,
	}, nil
}

// Build renders one request. Placeholders are expanded in the target URL,
// header values, and body. An empty values map leaves the body stream
// untouched so large file bodies are not read into memory.
func (b *RequestBuilder) Build(ctx context.Context, values map[string]string) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	target := placeholders.Expand(b.target, values)

	reader, err := b.body.NewReader()
	if err != nil {
		return nil, err
	}

	length, haveLength := b.body.ContentLength()
	getBody := b.body.NewReader
	if len(values) > 0 {
		raw, err := io.ReadAll(reader)
		_ = reader.Close()
		if err != nil {
			return nil, fmt.Errorf("read body for substitution: %w", err)
		}
		rendered := placeholders.Expand(string(raw), values)
		reader = io.NopCloser(strings.NewReader(rendered))
		length, haveLength = int64(len(rendered)), true
		getBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(rendered)), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, b.method, target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	for key, vals := range b.headers {
		for _, val := range vals {
			req.Header.Add(key, placeholders.Expand(val, values))
		}
	}
	if haveLength {
		req.ContentLength = length
	}
	req.GetBody = getBody

	return req, nil
}
