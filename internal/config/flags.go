package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "volley",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Ad-hoc request flags
	flags.String("url", "", "Target URL for an ad-hoc probe")
	flags.String("method", "GET", "HTTP method to use")
	flags.StringSlice("header", nil, "Request header in key=value form (repeatable)")
	flags.String("body", "", "Inline request body payload")
	flags.String("body-file", "", "Path to file containing the request body")
	flags.IntSlice("expect", nil, "Status codes that count as success (default 200)")

	// Suite flags
	flags.StringP("file", "f", "", "Path to a YAML suite definition")
	flags.String("base-url", "", "Base URL prefix for relative suite URLs")

	// Engine flags
	flags.IntP("repeat", "n", 1, "Number of requests to issue")
	flags.IntP("concurrency", "c", 1, "Upper bound on in-flight requests")
	flags.String("mode", "parallel", "Scheduling mode: 'parallel' or 'cooperative'")
	flags.Float64P("rate", "r", 0, "Requests per second admission limit (0 means unlimited)")
	flags.Duration("timeout", 30*time.Second, "Per-attempt timeout")
	flags.Duration("connect-timeout", 0, "Connection establishment timeout (0 uses the transport default)")
	flags.Duration("threshold", 0, "Per-request latency threshold counted in the report (0 disables)")
	flags.Int("warmup", 0, "Unmeasured priming requests before the measured run")

	// Retry flags
	flags.Int("retries", 3, "Max retries per request (0 disables retries)")
	flags.Duration("backoff-base", 500*time.Millisecond, "Delay before the first retry")
	flags.Duration("backoff-max", 30*time.Second, "Ceiling on the retry delay")
	flags.IntSlice("retry-status", nil, "Status codes that trigger a retry (default 500,502,503,504)")

	// Output flags
	flags.Bool("json", false, "Emit the aggregate report as JSON on stdout")
	flags.StringP("output", "o", "", "Write a run record to PATH (.json or .csv)")
	flags.BoolP("quiet", "q", false, "Suppress progress output")
	flags.BoolP("verbose", "v", false, "Log each failed request to stderr")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.StringSlice("assert", nil, "Report assertion (repeatable, e.g. 'latency:p95 < 500')")

	// Transport flags
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.Bool("no-keepalive", false, "Disable HTTP keep-alive between attempts")

	// Tracing flags
	flags.String("trace-endpoint", "", "OTLP collector endpoint; setting it enables span export")
	flags.String("trace-protocol", "grpc", "OTLP transport: 'grpc' or 'http'")
	flags.Bool("trace-insecure", false, "Export spans without TLS")
	flags.Float64("trace-sample", 1.0, "Fraction of attempts to trace, 0.0 to 1.0")

	flags.String("config", "", "Path to configuration file (JSON or YAML)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("url") {
		val, err := fs.GetString("url")
		if err != nil {
			return err
		}
		cfg.URL = strings.TrimSpace(val)
	}
	if fs.Changed("method") {
		val, err := fs.GetString("method")
		if err != nil {
			return err
		}
		cfg.Method = val
	}
	if fs.Changed("body") {
		val, err := fs.GetString("body")
		if err != nil {
			return err
		}
		cfg.Body = val
		cfg.BodyFile = ""
	}
	if fs.Changed("body-file") {
		val, err := fs.GetString("body-file")
		if err != nil {
			return err
		}
		cfg.BodyFile = val
		cfg.Body = ""
	}
	if fs.Changed("expect") {
		val, err := fs.GetIntSlice("expect")
		if err != nil {
			return err
		}
		cfg.Expect = val
		cfg.Explicit.Expect = true
	}

	if fs.Changed("file") {
		val, err := fs.GetString("file")
		if err != nil {
			return err
		}
		cfg.File = strings.TrimSpace(val)
	}
	if fs.Changed("base-url") {
		val, err := fs.GetString("base-url")
		if err != nil {
			return err
		}
		cfg.BaseURL = strings.TrimSpace(val)
	}

	if fs.Changed("repeat") {
		val, err := fs.GetInt("repeat")
		if err != nil {
			return err
		}
		cfg.Repeat = val
		cfg.Explicit.Repeat = true
	}
	if fs.Changed("concurrency") {
		val, err := fs.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = val
		cfg.Explicit.Concurrency = true
	}
	if fs.Changed("mode") {
		val, err := fs.GetString("mode")
		if err != nil {
			return err
		}
		cfg.Mode = strings.ToLower(strings.TrimSpace(val))
		cfg.Explicit.Mode = true
	}
	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
		cfg.Explicit.Rate = true
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
		cfg.Explicit.Timeout = true
	}
	if fs.Changed("connect-timeout") {
		val, err := fs.GetDuration("connect-timeout")
		if err != nil {
			return err
		}
		cfg.ConnectTimeout = val
		cfg.Explicit.ConnectTimeout = true
	}
	if fs.Changed("threshold") {
		val, err := fs.GetDuration("threshold")
		if err != nil {
			return err
		}
		cfg.Threshold = val
		cfg.Explicit.Threshold = true
	}
	if fs.Changed("warmup") {
		val, err := fs.GetInt("warmup")
		if err != nil {
			return err
		}
		cfg.Warmup = val
		cfg.Explicit.Warmup = true
	}

	if fs.Changed("retries") {
		val, err := fs.GetInt("retries")
		if err != nil {
			return err
		}
		cfg.MaxRetries = val
		cfg.Explicit.MaxRetries = true
	}
	if fs.Changed("backoff-base") {
		val, err := fs.GetDuration("backoff-base")
		if err != nil {
			return err
		}
		cfg.BackoffBase = val
		cfg.Explicit.BackoffBase = true
	}
	if fs.Changed("backoff-max") {
		val, err := fs.GetDuration("backoff-max")
		if err != nil {
			return err
		}
		cfg.BackoffMax = val
		cfg.Explicit.BackoffMax = true
	}
	if fs.Changed("retry-status") {
		val, err := fs.GetIntSlice("retry-status")
		if err != nil {
			return err
		}
		cfg.RetryStatuses = val
		cfg.Explicit.RetryStatuses = true
	}

	if fs.Changed("json") {
		val, err := fs.GetBool("json")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = strings.TrimSpace(val)
	}
	if fs.Changed("quiet") {
		val, err := fs.GetBool("quiet")
		if err != nil {
			return err
		}
		cfg.Quiet = val
	}
	if fs.Changed("verbose") {
		val, err := fs.GetBool("verbose")
		if err != nil {
			return err
		}
		cfg.Verbose = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("assert") {
		val, err := fs.GetStringSlice("assert")
		if err != nil {
			return err
		}
		cfg.Asserts = val
	}
	if fs.Changed("insecure") {
		val, err := fs.GetBool("insecure")
		if err != nil {
			return err
		}
		cfg.Insecure = val
	}
	if fs.Changed("no-keepalive") {
		val, err := fs.GetBool("no-keepalive")
		if err != nil {
			return err
		}
		cfg.NoKeepAlive = val
	}

	if fs.Changed("trace-endpoint") {
		val, err := fs.GetString("trace-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("trace-protocol") {
		val, err := fs.GetString("trace-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("trace-insecure") {
		val, err := fs.GetBool("trace-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("trace-sample") {
		val, err := fs.GetFloat64("trace-sample")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}
