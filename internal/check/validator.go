// Package check validates and extracts values from JSON response bodies.
//
// Validators compare a JSON path against an expected value with a named
// comparator; extractors capture path or regex matches into variables for
// later suite steps.
package check

import (
	"fmt"
	"strconv"
	"strings"
)

// Comparators accepted by Validator. The zero value means Eq.
const (
	Eq       = "eq"
	Ne       = "ne"
	Lt       = "lt"
	Le       = "le"
	Gt       = "gt"
	Ge       = "ge"
	Contains = "contains"
	Exists   = "exists"
)

// KnownComparator reports whether name is a comparator Apply understands.
// An empty name is accepted and treated as Eq.
func KnownComparator(name string) bool {
	switch name {
	case "", Eq, Ne, Lt, Le, Gt, Ge, Contains, Exists:
		return true
	}
	return false
}

// Validator asserts one property of a JSON response body.
type Validator struct {
	// Path is a JSON path expression ("$.user.id" or "user.id").
	Path string

	// Comparator selects the comparison; empty means Eq. Exists ignores
	// Expected and only asserts the path resolves.
	Comparator string

	// Expected is the literal the resolved value is compared against.
	// Numeric-looking operands compare numerically, so "1.0" equals "1".
	Expected string
}

// Failure describes one validator that did not hold.
type Failure struct {
	Path       string
	Comparator string
	Expected   string
	Actual     string
	Reason     string
}

func (f Failure) String() string {
	if f.Reason != "" {
		return fmt.Sprintf("%s: %s", f.Path, f.Reason)
	}
	return fmt.Sprintf("%s: %s failed: expected %q, got %q", f.Path, f.Comparator, f.Expected, f.Actual)
}

// Apply runs every validator against the body and returns one Failure per
// validator that did not hold. An empty slice means the body passed.
func Apply(body []byte, validators []Validator) []Failure {
	var failures []Failure
	for _, v := range validators {
		if f, ok := applyOne(body, v); !ok {
			failures = append(failures, f)
		}
	}
	return failures
}

func applyOne(body []byte, v Validator) (Failure, bool) {
	comparator := v.Comparator
	if comparator == "" {
		comparator = Eq
	}

	result := lookup(body, v.Path)
	if comparator == Exists {
		if result.Exists() {
			return Failure{}, true
		}
		return Failure{Path: v.Path, Comparator: comparator, Reason: "path not found"}, false
	}
	if !result.Exists() {
		return Failure{Path: v.Path, Comparator: comparator, Expected: v.Expected, Reason: "path not found"}, false
	}

	actual := result.String()
	ok, err := compare(comparator, actual, v.Expected)
	if err != nil {
		return Failure{Path: v.Path, Comparator: comparator, Expected: v.Expected, Actual: actual, Reason: err.Error()}, false
	}
	if !ok {
		return Failure{Path: v.Path, Comparator: comparator, Expected: v.Expected, Actual: actual}, false
	}
	return Failure{}, true
}

func compare(comparator, actual, expected string) (bool, error) {
	switch comparator {
	case Eq:
		return equalValues(actual, expected), nil
	case Ne:
		return !equalValues(actual, expected), nil
	case Contains:
		return strings.Contains(actual, expected), nil
	case Lt, Le, Gt, Ge:
		a, errA := strconv.ParseFloat(actual, 64)
		e, errE := strconv.ParseFloat(expected, 64)
		if errA != nil || errE != nil {
			return false, fmt.Errorf("%s needs numeric operands, got %q and %q", comparator, actual, expected)
		}
		switch comparator {
		case Lt:
			return a < e, nil
		case Le:
			return a <= e, nil
		case Gt:
			return a > e, nil
		default:
			return a >= e, nil
		}
	}
	return false, fmt.Errorf("unknown comparator %q", comparator)
}

// equalValues compares as numbers when both operands parse, otherwise as
// strings.
func equalValues(actual, expected string) bool {
	if actual == expected {
		return true
	}
	a, errA := strconv.ParseFloat(actual, 64)
	e, errE := strconv.ParseFloat(expected, 64)
	return errA == nil && errE == nil && a == e
}
