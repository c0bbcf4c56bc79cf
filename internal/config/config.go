package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the fully resolved CLI configuration: built-in defaults,
// overlaid by config file and environment, overlaid by flags.
type Config struct {
	// Ad-hoc request definition.
	URL      string            `mapstructure:"url"`
	Method   string            `mapstructure:"method"`
	Headers  map[string]string `mapstructure:"headers"`
	Body     string            `mapstructure:"body"`
	BodyFile string            `mapstructure:"body_file"`
	Expect   []int             `mapstructure:"expect"`

	// Suite definition.
	File    string `mapstructure:"file"`
	BaseURL string `mapstructure:"base_url"`

	// Engine settings.
	Repeat         int           `mapstructure:"repeat"`
	Concurrency    int           `mapstructure:"concurrency"`
	Mode           string        `mapstructure:"mode"`
	Rate           float64       `mapstructure:"rate"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Threshold      time.Duration `mapstructure:"threshold"`
	Warmup         int           `mapstructure:"warmup"`

	// Retry policy.
	MaxRetries    int           `mapstructure:"retries"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
	RetryStatuses []int         `mapstructure:"retry_status"`

	// Output and transport toggles.
	JSONOutput  bool     `mapstructure:"json"`
	Output      string   `mapstructure:"output"`
	Quiet       bool     `mapstructure:"quiet"`
	Verbose     bool     `mapstructure:"verbose"`
	Dashboard   bool     `mapstructure:"dashboard"`
	Asserts     []string `mapstructure:"assert"`
	Insecure    bool     `mapstructure:"insecure"`
	NoKeepAlive bool     `mapstructure:"no_keepalive"`

	// Tracing.
	Tracing TracingConfig `mapstructure:"tracing"`

	ConfigFile string `mapstructure:"-"`

	// Explicit records which engine and retry settings the user set, so
	// suite performance blocks are only overridden where asked.
	Explicit Explicit `mapstructure:"-"`
}

// TracingConfig enables OTLP span export when Endpoint is set.
type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	Protocol   string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure   bool    `mapstructure:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// Explicit marks settings the user stated via flag, environment, or
// config file, as opposed to built-in defaults.
type Explicit struct {
	Repeat         bool
	Concurrency    bool
	Mode           bool
	Rate           bool
	Timeout        bool
	ConnectTimeout bool
	Threshold      bool
	Warmup         bool
	Expect         bool
	MaxRetries     bool
	BackoffBase    bool
	BackoffMax     bool
	RetryStatuses  bool
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	url := strings.TrimSpace(c.URL)
	file := strings.TrimSpace(c.File)
	switch {
	case url == "" && file == "":
		issues = append(issues, "a target is required: set --url or --file (use --help for usage information)")
	case url != "" && file != "":
		issues = append(issues, "url and file are mutually exclusive")
	}

	if strings.TrimSpace(c.Body) != "" && strings.TrimSpace(c.BodyFile) != "" {
		issues = append(issues, "body and bodyFile are mutually exclusive")
	}
	if c.Quiet && c.Verbose {
		issues = append(issues, "quiet and verbose are mutually exclusive")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json are mutually exclusive")
	}

	if out := strings.TrimSpace(c.Output); out != "" {
		switch strings.ToLower(filepath.Ext(out)) {
		case ".json", ".csv":
		default:
			issues = append(issues, fmt.Sprintf("output %q must end in .json or .csv", out))
		}
	}

	if c.Tracing.Enabled() {
		switch strings.ToLower(strings.TrimSpace(c.Tracing.Protocol)) {
		case "", "grpc", "http":
		default:
			issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported (grpc or http)", c.Tracing.Protocol))
		}
	}

	// Semantic bounds on repeat, concurrency, mode, and the retry policy
	// are owned by the engine; surface-level conflicts are caught here.

	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High rate limit configured (%.0f RPS). Ensure you have authorization to probe the target system.", c.Rate))
	}
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High concurrency configured (%d). Ensure you have authorization to probe the target system.", c.Concurrency))
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
