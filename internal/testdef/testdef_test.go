package testdef

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const sampleSuite = `
- config:
    base_url: https://api.example.com
    variables:
      region: eu-west
- test:
    name: get user
    url: /users/1
    method: GET
    headers: {Accept: application/json}
    expected_status: [200, 404]
    validators:
      - jsonpath: id
        comparator: eq
        expected: 1
      - jsonpath: $.user.name
        comparator: exists
    extract:
      - jsonpath: token
        variable: auth_token
- test:
    name: probe search
    url: /search
    performance:
      repeat: 100
      concurrency: 10
      mode: parallel
      threshold_ms: 250
      warmup: 5
      timeout: 5.0
      connect_timeout: 500ms
    retry:
      max_retries: 2
      backoff_base: 0.5
      backoff_max: 30s
      retry_statuses: [500, 503]
`

func TestParseSuite(t *testing.T) {
	suite, err := Parse([]byte(sampleSuite))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if suite.BaseURL != "https://api.example.com" {
		t.Errorf("base url = %q", suite.BaseURL)
	}
	if suite.Variables["region"] != "eu-west" {
		t.Errorf("variables = %v", suite.Variables)
	}
	if len(suite.Tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(suite.Tests))
	}

	functional := suite.Tests[0]
	if functional.Name != "get user" || functional.IsProbe() {
		t.Errorf("first test should be the functional one: %+v", functional)
	}
	if !reflect.DeepEqual(functional.ExpectedStatus, []int{200, 404}) {
		t.Errorf("expected_status = %v", functional.ExpectedStatus)
	}
	if len(functional.Validators) != 2 {
		t.Fatalf("expected 2 validators, got %d", len(functional.Validators))
	}
	if functional.Validators[0].Path != "id" || functional.Validators[0].Expected != "1" {
		t.Errorf("validator 1 = %+v", functional.Validators[0])
	}
	if functional.Validators[1].Comparator != "exists" {
		t.Errorf("validator 2 = %+v", functional.Validators[1])
	}
	if len(functional.Extract) != 1 || functional.Extract[0].Variable != "auth_token" {
		t.Errorf("extract = %+v", functional.Extract)
	}

	probe := suite.Tests[1]
	if !probe.IsProbe() {
		t.Fatal("second test should be a probe")
	}
	p := probe.Performance
	if p.Repeat != 100 || p.Concurrency != 10 || p.Mode != "parallel" {
		t.Errorf("performance = %+v", p)
	}
	if p.Threshold != 250*time.Millisecond {
		t.Errorf("threshold = %s, want 250ms", p.Threshold)
	}
	if p.Warmup != 5 {
		t.Errorf("warmup = %d, want 5", p.Warmup)
	}
	if p.Timeout != 5*time.Second {
		t.Errorf("timeout = %s, want 5s", p.Timeout)
	}
	if p.ConnectTimeout != 500*time.Millisecond {
		t.Errorf("connect_timeout = %s, want 500ms", p.ConnectTimeout)
	}

	cfg := probe.Retry.Config()
	if cfg.MaxRetries != 2 {
		t.Errorf("max retries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.BackoffBase != 500*time.Millisecond {
		t.Errorf("backoff base = %s, want 500ms", cfg.BackoffBase)
	}
	if cfg.BackoffMax != 30*time.Second {
		t.Errorf("backoff max = %s, want 30s", cfg.BackoffMax)
	}
	if !reflect.DeepEqual(cfg.RetryStatuses, []int{500, 503}) {
		t.Errorf("retry statuses = %v", cfg.RetryStatuses)
	}
}

func TestParseDefaults(t *testing.T) {
	suite, err := Parse([]byte("- test:\n    url: https://example.com/health\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	test := suite.Tests[0]
	if test.Name != "test 1" {
		t.Errorf("unnamed test should get a positional name, got %q", test.Name)
	}
	if !reflect.DeepEqual(test.ExpectedStatus, []int{200}) {
		t.Errorf("expected_status should default to [200], got %v", test.ExpectedStatus)
	}
	if test.Retry != nil {
		t.Errorf("retry should be nil when absent")
	}

	cfg := test.Retry.Config()
	if cfg.MaxRetries != 3 || cfg.BackoffBase != 500*time.Millisecond || cfg.BackoffMax != 30*time.Second {
		t.Errorf("nil retry should yield defaults, got %+v", cfg)
	}
}

func TestParseRetryOverrides(t *testing.T) {
	doc := `
- test:
    url: https://example.com
    retry:
      max_retries: 0
      retry_statuses: []
`
	suite, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg := suite.Tests[0].Retry.Config()
	if cfg.MaxRetries != 0 {
		t.Errorf("explicit max_retries: 0 must disable retries, got %d", cfg.MaxRetries)
	}
	if cfg.RetryStatuses == nil || len(cfg.RetryStatuses) != 0 {
		t.Errorf("explicit empty retry_statuses must stay empty, got %v", cfg.RetryStatuses)
	}
	if cfg.BackoffBase != 500*time.Millisecond {
		t.Errorf("untouched backoff base should keep its default, got %s", cfg.BackoffBase)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			"missing url",
			"- test:\n    name: broken\n",
			`test "broken": url is required`,
		},
		{
			"unknown comparator",
			"- test:\n    name: t\n    url: /x\n    validators:\n      - jsonpath: id\n        comparator: matches\n",
			"unknown comparator",
		},
		{
			"validator without jsonpath",
			"- test:\n    name: t\n    url: /x\n    validators:\n      - comparator: eq\n",
			"jsonpath is required",
		},
		{
			"extract without variable",
			"- test:\n    name: t\n    url: /x\n    extract:\n      - jsonpath: id\n",
			"variable is required",
		},
		{
			"extract without source",
			"- test:\n    name: t\n    url: /x\n    extract:\n      - variable: v\n",
			"jsonpath or regex is required",
		},
		{
			"negative warmup",
			"- test:\n    name: t\n    url: /x\n    performance:\n      warmup: -1\n",
			"warmup must be >= 0",
		},
		{
			"unknown field",
			"- test:\n    name: t\n    url: /x\n    performance:\n      repeatt: 10\n",
			"repeatt",
		},
		{
			"bad duration string",
			"- test:\n    name: t\n    url: /x\n    performance:\n      timeout: fast\n",
			"invalid duration",
		},
		{
			"negative duration",
			"- test:\n    name: t\n    url: /x\n    performance:\n      timeout: -2\n",
			"must not be negative",
		},
		{
			"stray entry",
			"- {}\n",
			"expected a config or test block",
		},
		{
			"unknown entry key",
			"- nonsense: true\n",
			"nonsense",
		},
		{
			"no tests",
			"- config:\n    base_url: https://example.com\n",
			"no tests",
		},
		{
			"empty file",
			"",
			"empty",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	suite := &Suite{BaseURL: "https://api.example.com/"}

	cases := []struct {
		in   string
		want string
	}{
		{"/users/1", "https://api.example.com/users/1"},
		{"users/1", "https://api.example.com/users/1"},
		{"https://other.example.com/x", "https://other.example.com/x"},
	}
	for _, tc := range cases {
		if got := suite.ResolveURL(tc.in); got != tc.want {
			t.Errorf("ResolveURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	bare := &Suite{}
	if got := bare.ResolveURL("/users/1"); got != "/users/1" {
		t.Errorf("without base url, ResolveURL = %q", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suite.yaml")
	if err := os.WriteFile(path, []byte(sampleSuite), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	suite, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(suite.Tests) != 2 {
		t.Errorf("expected 2 tests, got %d", len(suite.Tests))
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load(missing) should fail")
	}
}

func TestDurationForms(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"0.5", 500 * time.Millisecond},
		{"2", 2 * time.Second},
		{"750ms", 750 * time.Millisecond},
		{"1m30s", 90 * time.Second},
	}
	for _, tc := range cases {
		doc := "- test:\n    url: /x\n    performance:\n      timeout: " + tc.in + "\n"
		suite, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("Parse(timeout: %s) error = %v", tc.in, err)
		}
		if got := suite.Tests[0].Performance.Timeout; got != tc.want {
			t.Errorf("timeout %s parsed to %s, want %s", tc.in, got, tc.want)
		}
	}
}
