package auction

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorCategory is the coarse taxonomy used for retry decisions and
// operator triage.
type ErrorCategory string

// Error categories, from most to least commonly transient.
const (
	CategoryNetwork        ErrorCategory = "Network"
	CategoryParsing        ErrorCategory = "Parsing"
	CategoryDataValidation ErrorCategory = "DataValidation"
	CategorySystem         ErrorCategory = "System"
)

// ErrJobInProgress is returned when a job's scope is already held by a
// non-terminal job.
var ErrJobInProgress = errors.New("job already in progress for scope")

// NavigationError marks a hard navigation failure (DNS, connect, first
// page timeout). It classifies as Network.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ParseError marks unexpected markup or selector drift. It classifies
// as Parsing.
type ParseError struct {
	Detail string
}

func (e *ParseError) Error() string { return "parse: " + e.Detail }

// ValidationError marks malformed or contradictory scraped values and
// store constraint violations. It is never retried.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return "validation: " + e.Detail }

type classRule struct {
	pattern  string
	category ErrorCategory
}

// Ordered lookup tables: the error's type names are matched first, then
// the message text. First hit wins.
var typeRules = []classRule{
	{"ConnectionError", CategoryNetwork},
	{"NavigationError", CategoryNetwork},
	{"TimeoutError", CategoryNetwork},
	{"HTTPError", CategoryNetwork},
	{"OpError", CategoryNetwork},
	{"DNSError", CategoryNetwork},
	{"ParseError", CategoryParsing},
	{"SyntaxError", CategoryParsing},
	{"SelectorError", CategoryParsing},
	{"ValidationError", CategoryDataValidation},
	{"IntegrityError", CategoryDataValidation},
	{"PgError", CategoryDataValidation},
	{"DataError", CategoryDataValidation},
}

var messageRules = []classRule{
	{"connection refused", CategoryNetwork},
	{"connection reset", CategoryNetwork},
	{"timeout", CategoryNetwork},
	{"deadline exceeded", CategoryNetwork},
	{"no such host", CategoryNetwork},
	{"net::err", CategoryNetwork},
	{"selector", CategoryParsing},
	{"unexpected markup", CategoryParsing},
	{"could not parse", CategoryParsing},
	{"duplicate key", CategoryDataValidation},
	{"violates unique constraint", CategoryDataValidation},
	{"validation", CategoryDataValidation},
	{"permission denied", CategoryDataValidation},
}

// Type names that must never trigger a retry regardless of category.
var nonRetryableTypes = []string{
	"ValidationError",
	"IntegrityError",
	"DataError",
	"PermissionError",
	"PgError",
}

// Classify maps an error to its category and retryable flag. Context
// cancellation is System and final; callers stopping a run should not
// see it re-attempted.
func Classify(err error) (ErrorCategory, bool) {
	if err == nil {
		return CategorySystem, false
	}
	if errors.Is(err, context.Canceled) {
		return CategorySystem, false
	}

	names := typeNames(err)
	for _, name := range nonRetryableTypes {
		for _, n := range names {
			if strings.Contains(n, name) {
				return categoryForName(n), false
			}
		}
	}

	for _, rule := range typeRules {
		for _, n := range names {
			if strings.Contains(n, rule.pattern) {
				return rule.category, retryableCategory(rule.category)
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork, true
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		if strings.Contains(msg, rule.pattern) {
			return rule.category, retryableCategory(rule.category)
		}
	}

	return CategorySystem, false
}

func categoryForName(name string) ErrorCategory {
	for _, rule := range typeRules {
		if strings.Contains(name, rule.pattern) {
			return rule.category
		}
	}
	return CategoryDataValidation
}

func retryableCategory(c ErrorCategory) bool {
	return c == CategoryNetwork || c == CategoryParsing
}

// typeNames walks the unwrap chain collecting bare type names, so a
// wrapped *NavigationError still matches the type table.
func typeNames(err error) []string {
	var names []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		name := fmt.Sprintf("%T", e)
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		names = append(names, strings.TrimPrefix(name, "*"))
	}
	return names
}

// Retry policy constants shared by both job kinds.
const MaxAttempts = 3

var backoffSchedule = []time.Duration{
	5 * time.Second,
	25 * time.Second,
	125 * time.Second,
}

// ShouldRetry reports whether a failed attempt (0-indexed) warrants
// another try.
func ShouldRetry(attempt int, err error) bool {
	if attempt >= MaxAttempts {
		return false
	}
	_, retryable := Classify(err)
	return retryable
}

// Backoff returns the wait before the next attempt, clamped to the last
// schedule entry.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attempt]
}
