package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second},
		{0.5, 500 * time.Millisecond},
		{1.25, 1250 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsIntSlice(t *testing.T) {
	tests := []struct {
		input interface{}
		want  []int
	}{
		{[]int{500, 503}, []int{500, 503}},
		{[]interface{}{500, "503"}, []int{500, 503}},
		{"500,502, 503", []int{500, 502, 503}},
		{429, []int{429}},
		{nil, nil},
	}

	for _, tt := range tests {
		got, err := asIntSlice(tt.input)
		if err != nil {
			t.Errorf("asIntSlice(%v) error = %v", tt.input, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("asIntSlice(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := asIntSlice("500,abc"); err == nil {
		t.Error("asIntSlice with junk element should fail")
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := &Config{}
	settings := map[string]interface{}{
		"url":         "http://example.com",
		"method":      "POST",
		"repeat":      50,
		"concurrency": 10,
		"mode":        "cooperative",
		"timeout":     "5s",
		"threshold":   0.25,
		"headers": map[string]interface{}{
			"Content-Type": "application/json",
		},
		"retry": map[string]interface{}{
			"max_retries":    2,
			"backoff_base":   0.5,
			"retry_statuses": []interface{}{500, 503},
		},
		"tracing": map[string]interface{}{
			"endpoint": "collector:4317",
			"protocol": "grpc",
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.URL != "http://example.com" {
		t.Errorf("URL = %q, want http://example.com", cfg.URL)
	}
	if cfg.Method != "POST" {
		t.Errorf("Method = %q, want POST", cfg.Method)
	}
	if cfg.Repeat != 50 || !cfg.Explicit.Repeat {
		t.Errorf("Repeat = %d (explicit=%v), want 50 explicit", cfg.Repeat, cfg.Explicit.Repeat)
	}
	if cfg.Concurrency != 10 {
		t.Errorf("Concurrency = %d, want 10", cfg.Concurrency)
	}
	if cfg.Mode != "cooperative" || !cfg.Explicit.Mode {
		t.Errorf("Mode = %q (explicit=%v)", cfg.Mode, cfg.Explicit.Mode)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.Threshold != 250*time.Millisecond {
		t.Errorf("Threshold = %v, want 250ms", cfg.Threshold)
	}
	if cfg.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers[Content-Type] = %q", cfg.Headers["Content-Type"])
	}
	if cfg.MaxRetries != 2 || !cfg.Explicit.MaxRetries {
		t.Errorf("MaxRetries = %d (explicit=%v), want 2 explicit", cfg.MaxRetries, cfg.Explicit.MaxRetries)
	}
	if cfg.BackoffBase != 500*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 500ms", cfg.BackoffBase)
	}
	if !reflect.DeepEqual(cfg.RetryStatuses, []int{500, 503}) {
		t.Errorf("RetryStatuses = %v", cfg.RetryStatuses)
	}
	if cfg.Tracing.Endpoint != "collector:4317" || cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := &Config{
		Concurrency: 1,
		Method:      "GET",
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--concurrency=5",
		"--method=PUT",
		"--header=X-Test=123",
		"--retries=0",
		"--mode=cooperative",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Concurrency != 5 || !cfg.Explicit.Concurrency {
		t.Errorf("Concurrency = %d (explicit=%v), want 5 explicit", cfg.Concurrency, cfg.Explicit.Concurrency)
	}
	if cfg.Method != "PUT" {
		t.Errorf("Method = %q, want PUT", cfg.Method)
	}
	if cfg.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Headers["X-Test"])
	}
	if cfg.MaxRetries != 0 || !cfg.Explicit.MaxRetries {
		t.Errorf("MaxRetries = %d (explicit=%v), want 0 explicit", cfg.MaxRetries, cfg.Explicit.MaxRetries)
	}
	if cfg.Mode != "cooperative" {
		t.Errorf("Mode = %q, want cooperative", cfg.Mode)
	}
	if cfg.Explicit.Timeout {
		t.Error("Timeout was not set, must not be marked explicit")
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--url=http://example.com",
		"--repeat=25",
		"--concurrency=2",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.URL != "http://example.com" {
		t.Errorf("URL = %q, want http://example.com", cfg.URL)
	}
	if cfg.Repeat != 25 {
		t.Errorf("Repeat = %d, want 25", cfg.Repeat)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Concurrency)
	}

	// Untouched settings keep their defaults.
	if cfg.Method != "GET" || cfg.Mode != "parallel" || cfg.Timeout != 30*time.Second {
		t.Errorf("defaults disturbed: method=%q mode=%q timeout=%v", cfg.Method, cfg.Mode, cfg.Timeout)
	}
	if cfg.MaxRetries != 3 || cfg.BackoffBase != 500*time.Millisecond || cfg.BackoffMax != 30*time.Second {
		t.Errorf("retry defaults disturbed: %d %v %v", cfg.MaxRetries, cfg.BackoffBase, cfg.BackoffMax)
	}
}

func TestLoader_LoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "volley.yaml")
	doc := `
url: http://example.com/health
repeat: 40
mode: cooperative
retry:
  max_retries: 1
  backoff_base: 0.25
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := NewLoader().Load([]string{"--config=" + path, "--repeat=60"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.URL != "http://example.com/health" {
		t.Errorf("URL = %q", cfg.URL)
	}
	// The flag wins over the file.
	if cfg.Repeat != 60 {
		t.Errorf("Repeat = %d, want 60 (flag over file)", cfg.Repeat)
	}
	if cfg.Mode != "cooperative" {
		t.Errorf("Mode = %q, want cooperative", cfg.Mode)
	}
	if cfg.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", cfg.MaxRetries)
	}
	if cfg.BackoffBase != 250*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 250ms", cfg.BackoffBase)
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("VOLLEY_BASE_URL", "http://env.example.com")
	t.Setenv("VOLLEY_RETRIES", "5")

	cfg, err := NewLoader().Load([]string{"--file=suite.yaml"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseURL != "http://env.example.com" {
		t.Errorf("BaseURL = %q, want env value", cfg.BaseURL)
	}
	if cfg.MaxRetries != 5 || !cfg.Explicit.MaxRetries {
		t.Errorf("MaxRetries = %d (explicit=%v), want 5 explicit", cfg.MaxRetries, cfg.Explicit.MaxRetries)
	}
}

func TestLoader_Help(t *testing.T) {
	if _, err := NewLoader().Load([]string{"--help"}); err != ErrHelpRequested {
		t.Errorf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
	if _, err := NewLoader().Load(nil); err != ErrHelpRequested {
		t.Errorf("Load(no args) error = %v, want ErrHelpRequested", err)
	}
}
