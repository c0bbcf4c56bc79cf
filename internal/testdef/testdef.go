// Package testdef loads YAML suite definitions.
//
// A suite is a list of entries, each either a config block or a test:
//
//	- config:
//	    base_url: https://api.example.com
//	    variables: {region: eu-west}
//	- test:
//	    name: get user
//	    url: /users/1
//	    validators:
//	      - jsonpath: id
//	        expected: 1
//	- test:
//	    name: probe search
//	    url: /search
//	    performance: {repeat: 100, concurrency: 10}
//
// A test without a performance block runs once and applies its validators
// and extract rules. A test with one is a probe driven by the execution
// engine; validators do not apply to probe attempts. Durations accept
// float seconds (0.5) or duration strings ("500ms").
package testdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/volleyhq/volley/internal/check"
	"github.com/volleyhq/volley/internal/retry"
)

// Suite is one parsed definition file.
type Suite struct {
	BaseURL   string
	Variables map[string]string
	Tests     []Test
}

// Test is a single suite entry, functional or probe.
type Test struct {
	Name           string
	URL            string
	Method         string
	Headers        map[string]string
	Body           string
	BodyFile       string
	ExpectedStatus []int
	Validators     []check.Validator
	Extract        []check.Extractor
	Performance    *Performance
	Retry          *Retry
}

// IsProbe reports whether the test carries a performance block.
func (t *Test) IsProbe() bool {
	return t.Performance != nil
}

// Performance configures a probe run.
type Performance struct {
	Repeat         int
	Concurrency    int
	Mode           string
	Threshold      time.Duration
	Warmup         int
	Rate           float64
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// Retry overrides parts of the default retry policy. Nil pointer fields
// mean "keep the default", so max_retries: 0 genuinely disables retries.
type Retry struct {
	MaxRetries    *int
	BackoffBase   *time.Duration
	BackoffMax    *time.Duration
	RetryStatuses []int
}

// Config merges the overrides onto the default policy configuration.
// A nil receiver yields the defaults unchanged.
func (r *Retry) Config() retry.Config {
	cfg := retry.DefaultConfig()
	if r == nil {
		return cfg
	}
	if r.MaxRetries != nil {
		cfg.MaxRetries = *r.MaxRetries
	}
	if r.BackoffBase != nil {
		cfg.BackoffBase = *r.BackoffBase
	}
	if r.BackoffMax != nil {
		cfg.BackoffMax = *r.BackoffMax
	}
	if r.RetryStatuses != nil {
		cfg.RetryStatuses = r.RetryStatuses
	}
	return cfg
}

// ResolveURL joins the suite base URL with a test URL. Absolute test URLs
// are returned unchanged.
func (s *Suite) ResolveURL(testURL string) string {
	if s.BaseURL == "" || hasScheme(testURL) {
		return testURL
	}
	return strings.TrimSuffix(s.BaseURL, "/") + "/" + strings.TrimPrefix(testURL, "/")
}

func hasScheme(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Load reads and parses a suite file.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	return Parse(data)
}

// Parse decodes a suite definition. Unknown YAML fields are rejected so a
// typoed key fails loudly instead of silently running defaults.
func Parse(data []byte) (*Suite, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var docs []document
	if err := dec.Decode(&docs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("suite file is empty")
		}
		return nil, fmt.Errorf("parse suite: %w", err)
	}

	suite := &Suite{Variables: make(map[string]string)}
	for i, doc := range docs {
		switch {
		case doc.Config != nil:
			if doc.Config.BaseURL != "" {
				suite.BaseURL = doc.Config.BaseURL
			}
			for name, value := range doc.Config.Variables {
				suite.Variables[name] = value
			}
		case doc.Test != nil:
			test, err := doc.Test.convert(len(suite.Tests) + 1)
			if err != nil {
				return nil, err
			}
			suite.Tests = append(suite.Tests, test)
		default:
			return nil, fmt.Errorf("suite entry %d: expected a config or test block", i+1)
		}
	}

	if len(suite.Tests) == 0 {
		return nil, errors.New("suite defines no tests")
	}
	return suite, nil
}

type document struct {
	Config *rawConfig `yaml:"config"`
	Test   *rawTest   `yaml:"test"`
}

type rawConfig struct {
	BaseURL   string            `yaml:"base_url"`
	Variables map[string]string `yaml:"variables"`
}

type rawTest struct {
	Name           string            `yaml:"name"`
	URL            string            `yaml:"url"`
	Method         string            `yaml:"method"`
	Headers        map[string]string `yaml:"headers"`
	Body           string            `yaml:"body"`
	BodyFile       string            `yaml:"body_file"`
	ExpectedStatus []int             `yaml:"expected_status"`
	Validators     []rawValidator    `yaml:"validators"`
	Extract        []rawExtractor    `yaml:"extract"`
	Performance    *rawPerformance   `yaml:"performance"`
	Retry          *rawRetry         `yaml:"retry"`
}

type rawValidator struct {
	JSONPath   string     `yaml:"jsonpath"`
	Comparator string     `yaml:"comparator"`
	Expected   *yaml.Node `yaml:"expected"`
}

type rawExtractor struct {
	JSONPath string `yaml:"jsonpath"`
	Regex    string `yaml:"regex"`
	Variable string `yaml:"variable"`
}

type rawPerformance struct {
	Repeat         int      `yaml:"repeat"`
	Concurrency    int      `yaml:"concurrency"`
	Mode           string   `yaml:"mode"`
	ThresholdMs    float64  `yaml:"threshold_ms"`
	Warmup         int      `yaml:"warmup"`
	Rate           float64  `yaml:"rate"`
	Timeout        duration `yaml:"timeout"`
	ConnectTimeout duration `yaml:"connect_timeout"`
}

type rawRetry struct {
	MaxRetries    *int      `yaml:"max_retries"`
	BackoffBase   *duration `yaml:"backoff_base"`
	BackoffMax    *duration `yaml:"backoff_max"`
	RetryStatuses []int     `yaml:"retry_statuses"`
}

func (r *rawTest) convert(n int) (Test, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = fmt.Sprintf("test %d", n)
	}

	if strings.TrimSpace(r.URL) == "" {
		return Test{}, fmt.Errorf("test %q: url is required", name)
	}

	test := Test{
		Name:           name,
		URL:            r.URL,
		Method:         r.Method,
		Headers:        r.Headers,
		Body:           r.Body,
		BodyFile:       r.BodyFile,
		ExpectedStatus: r.ExpectedStatus,
	}
	if test.ExpectedStatus == nil {
		test.ExpectedStatus = []int{200}
	}

	for i, v := range r.Validators {
		if v.JSONPath == "" {
			return Test{}, fmt.Errorf("test %q: validator %d: jsonpath is required", name, i+1)
		}
		if !check.KnownComparator(v.Comparator) {
			return Test{}, fmt.Errorf("test %q: validator %d: unknown comparator %q", name, i+1, v.Comparator)
		}
		expected, ok := scalarValue(v.Expected)
		if !ok {
			return Test{}, fmt.Errorf("test %q: validator %d: expected must be a scalar", name, i+1)
		}
		test.Validators = append(test.Validators, check.Validator{
			Path:       v.JSONPath,
			Comparator: v.Comparator,
			Expected:   expected,
		})
	}

	for i, ex := range r.Extract {
		if ex.Variable == "" {
			return Test{}, fmt.Errorf("test %q: extract %d: variable is required", name, i+1)
		}
		if ex.JSONPath == "" && ex.Regex == "" {
			return Test{}, fmt.Errorf("test %q: extract %d: jsonpath or regex is required", name, i+1)
		}
		test.Extract = append(test.Extract, check.Extractor{
			Path:     ex.JSONPath,
			Regex:    ex.Regex,
			Variable: ex.Variable,
		})
	}

	if r.Performance != nil {
		perf, err := r.Performance.convert(name)
		if err != nil {
			return Test{}, err
		}
		test.Performance = perf
	}
	if r.Retry != nil {
		test.Retry = r.Retry.convert()
	}

	return test, nil
}

func (p *rawPerformance) convert(testName string) (*Performance, error) {
	if p.Warmup < 0 {
		return nil, fmt.Errorf("test %q: performance.warmup must be >= 0", testName)
	}
	if p.Rate < 0 {
		return nil, fmt.Errorf("test %q: performance.rate must be >= 0", testName)
	}
	if p.ThresholdMs < 0 {
		return nil, fmt.Errorf("test %q: performance.threshold_ms must be >= 0", testName)
	}
	return &Performance{
		Repeat:         p.Repeat,
		Concurrency:    p.Concurrency,
		Mode:           p.Mode,
		Threshold:      time.Duration(p.ThresholdMs * float64(time.Millisecond)),
		Warmup:         p.Warmup,
		Rate:           p.Rate,
		Timeout:        time.Duration(p.Timeout),
		ConnectTimeout: time.Duration(p.ConnectTimeout),
	}, nil
}

func (r *rawRetry) convert() *Retry {
	out := &Retry{
		MaxRetries:    r.MaxRetries,
		RetryStatuses: r.RetryStatuses,
	}
	if r.BackoffBase != nil {
		d := time.Duration(*r.BackoffBase)
		out.BackoffBase = &d
	}
	if r.BackoffMax != nil {
		d := time.Duration(*r.BackoffMax)
		out.BackoffMax = &d
	}
	return out
}

func scalarValue(node *yaml.Node) (string, bool) {
	if node == nil {
		return "", true
	}
	if node.Kind != yaml.ScalarNode {
		return "", false
	}
	return node.Value, true
}

// duration decodes YAML scalars given as float seconds or as Go duration
// strings. Fractional seconds keep their precision, so 0.5 is 500ms.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!int", "!!float":
		var f float64
		if err := value.Decode(&f); err != nil {
			return err
		}
		if f < 0 {
			return fmt.Errorf("duration must not be negative, got %v", f)
		}
		*d = duration(f * float64(time.Second))
		return nil
	case "!!str":
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		if parsed < 0 {
			return fmt.Errorf("duration must not be negative, got %q", value.Value)
		}
		*d = duration(parsed)
		return nil
	}
	return fmt.Errorf("line %d: duration must be seconds or a duration string", value.Line)
}
