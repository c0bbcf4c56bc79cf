package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, environment variables,
// and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// envKeys lists the flat settings that may arrive via VOLLEY_* environment
// variables, e.g. VOLLEY_BASE_URL or VOLLEY_RETRIES.
var envKeys = []string{
	"url", "method", "body", "body-file", "expect",
	"file", "base-url",
	"repeat", "concurrency", "mode", "rate",
	"timeout", "connect-timeout", "threshold", "warmup",
	"retries", "backoff-base", "backoff-max", "retry-status",
	"json", "output", "quiet", "verbose", "dashboard",
	"insecure", "no-keepalive",
	"trace-endpoint", "trace-protocol", "trace-insecure", "trace-sample",
}

// Load parses command-line arguments, the environment, and an optional
// config file to produce a Config. Precedence from weakest to strongest:
// built-in defaults, config file, environment, flags.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	cfgViper.SetEnvPrefix("VOLLEY")
	cfgViper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfgViper.AutomaticEnv()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Get consults the environment before the file, so merging its answer
	// over AllSettings keeps env values ahead of file values.
	settings := cfgViper.AllSettings()
	for _, key := range envKeys {
		val := cfgViper.Get(key)
		if val == nil {
			continue
		}
		delete(settings, key)
		settings[strings.ReplaceAll(key, "-", "_")] = val
	}

	cfg := &Config{
		Method:      "GET",
		Headers:     map[string]string{},
		Repeat:      1,
		Concurrency: 1,
		Mode:        "parallel",
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  30 * time.Second,
		Tracing:     TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		ConfigFile:  configPath,
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.File = strings.TrimSpace(cfg.File)
	cfg.BodyFile = strings.TrimSpace(cfg.BodyFile)
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

// applyConfigSettings applies file and environment settings to the Config.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "url", "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("url: %w", err)
		}
		cfg.URL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method: %w", err)
		}
		if val != "" {
			cfg.Method = val
		}
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("body: %w", err)
		}
		cfg.Body = val
	}

	if raw, ok := lookupSetting(settings, "bodyfile", "body_file", "body-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("bodyFile: %w", err)
		}
		cfg.BodyFile = val
	}

	if raw, ok := lookupSetting(settings, "expect", "expected_status", "expected-status"); ok {
		val, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("expect: %w", err)
		}
		cfg.Expect = val
		cfg.Explicit.Expect = true
	}

	if raw, ok := lookupSetting(settings, "file", "suite"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("file: %w", err)
		}
		cfg.File = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "baseurl", "base_url", "base-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("baseUrl: %w", err)
		}
		cfg.BaseURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "repeat"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("repeat: %w", err)
		}
		cfg.Repeat = val
		cfg.Explicit.Repeat = true
	}

	if raw, ok := lookupSetting(settings, "concurrency"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("concurrency: %w", err)
		}
		cfg.Concurrency = val
		cfg.Explicit.Concurrency = true
	}

	if raw, ok := lookupSetting(settings, "mode"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("mode: %w", err)
		}
		if val != "" {
			cfg.Mode = strings.ToLower(strings.TrimSpace(val))
			cfg.Explicit.Mode = true
		}
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
		cfg.Explicit.Rate = true
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
		cfg.Explicit.Timeout = true
	}

	if raw, ok := lookupSetting(settings, "connecttimeout", "connect_timeout", "connect-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("connectTimeout: %w", err)
		}
		cfg.ConnectTimeout = dur
		cfg.Explicit.ConnectTimeout = true
	}

	if raw, ok := lookupSetting(settings, "threshold", "threshold_ms", "threshold-ms"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("threshold: %w", err)
		}
		cfg.Threshold = dur
		cfg.Explicit.Threshold = true
	}

	if raw, ok := lookupSetting(settings, "warmup"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("warmup: %w", err)
		}
		cfg.Warmup = val
		cfg.Explicit.Warmup = true
	}

	if raw, ok := lookupSetting(settings, "retries", "maxretries", "max_retries", "max-retries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("retries: %w", err)
		}
		cfg.MaxRetries = val
		cfg.Explicit.MaxRetries = true
	}

	if raw, ok := lookupSetting(settings, "backoffbase", "backoff_base", "backoff-base"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("backoffBase: %w", err)
		}
		cfg.BackoffBase = dur
		cfg.Explicit.BackoffBase = true
	}

	if raw, ok := lookupSetting(settings, "backoffmax", "backoff_max", "backoff-max"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("backoffMax: %w", err)
		}
		cfg.BackoffMax = dur
		cfg.Explicit.BackoffMax = true
	}

	if raw, ok := lookupSetting(settings, "retrystatus", "retry_status", "retry-status", "retrystatuses", "retry_statuses"); ok {
		val, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("retryStatus: %w", err)
		}
		cfg.RetryStatuses = val
		cfg.Explicit.RetryStatuses = true
	}

	if raw, ok := lookupSetting(settings, "retry"); ok {
		if err := applyRetryBlock(cfg, raw); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "json", "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "quiet"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("quiet: %w", err)
		}
		cfg.Quiet = val
	}

	if raw, ok := lookupSetting(settings, "verbose"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("verbose: %w", err)
		}
		cfg.Verbose = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "assert", "asserts", "assertions"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("assert: %w", err)
		}
		cfg.Asserts = val
	}

	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		cfg.Insecure = val
	}

	if raw, ok := lookupSetting(settings, "nokeepalive", "no_keepalive", "no-keepalive"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("noKeepalive: %w", err)
		}
		cfg.NoKeepAlive = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingBlock(cfg, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "traceendpoint", "trace_endpoint", "trace-endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("traceEndpoint: %w", err)
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "traceprotocol", "trace_protocol", "trace-protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("traceProtocol: %w", err)
		}
		if val != "" {
			cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
		}
	}
	if raw, ok := lookupSetting(settings, "traceinsecure", "trace_insecure", "trace-insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("traceInsecure: %w", err)
		}
		cfg.Tracing.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "tracesample", "trace_sample", "trace-sample"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("traceSample: %w", err)
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}

// applyRetryBlock handles a nested retry mapping in the config file.
func applyRetryBlock(cfg *Config, value interface{}) error {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "retries", "maxretries", "max_retries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_retries: %w", err)
		}
		cfg.MaxRetries = val
		cfg.Explicit.MaxRetries = true
	}
	if raw, ok := lookupSetting(entry, "backoffbase", "backoff_base"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("backoff_base: %w", err)
		}
		cfg.BackoffBase = dur
		cfg.Explicit.BackoffBase = true
	}
	if raw, ok := lookupSetting(entry, "backoffmax", "backoff_max"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("backoff_max: %w", err)
		}
		cfg.BackoffMax = dur
		cfg.Explicit.BackoffMax = true
	}
	if raw, ok := lookupSetting(entry, "retrystatuses", "retry_statuses", "retry_status"); ok {
		val, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("retry_statuses: %w", err)
		}
		cfg.RetryStatuses = val
		cfg.Explicit.RetryStatuses = true
	}
	return nil
}

// applyTracingBlock handles a nested tracing mapping in the config file.
func applyTracingBlock(cfg *Config, value interface{}) error {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		if val != "" {
			cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
		}
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		cfg.Tracing.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		cfg.Tracing.SampleRate = val
	}
	return nil
}
