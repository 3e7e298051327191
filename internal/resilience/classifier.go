// Package resilience provides error classification, circuit breaking,
// and retry scheduling for marketplace collection calls.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Category buckets a collection failure for retry and breaker policy.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryRateLimit  Category = "rate_limit"
	CategoryAuth       Category = "authentication"
	CategoryServer     Category = "server"
	CategoryParsing    Category = "parsing"
	CategoryValidation Category = "validation"
	CategoryUnknown    Category = "unknown"
)

// Severity grades how serious a failure is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Classification is the result of pattern-matching a raw error.
type Classification struct {
	Category  Category
	Severity  Severity
	Retryable bool
}

// Critical reports whether this failure should trip a circuit breaker
// immediately, regardless of the failure count.
func (c Classification) Critical() bool {
	return c.Severity == SeverityCritical || c.Category == CategoryAuth
}

// SourceError wraps a failure from a marketplace call with the context
// the classifier and observability pipeline need.
type SourceError struct {
	Source     string
	Op         string
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	return e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError wraps err with source/operation context and an
// optional HTTP status code (0 if none applies).
func NewSourceError(source, op string, statusCode int, err error) *SourceError {
	return &SourceError{Source: source, Op: op, StatusCode: statusCode, Err: err}
}

// patternGroup is one ordered matcher: first group to match wins.
type patternGroup struct {
	result   Classification
	statuses []int
	substrs  []string
}

var classifierGroups = []patternGroup{
	{
		result:  Classification{CategoryNetwork, SeverityMedium, true},
		substrs: []string{"connection reset", "connection refused", "broken pipe", "i/o timeout", "tls handshake timeout", "no such host", "temporary failure in name resolution", "network is unreachable", "context deadline exceeded"},
	},
	{
		result:   Classification{CategoryRateLimit, SeverityMedium, true},
		statuses: []int{429},
		substrs:  []string{"too many requests", "rate limit", "quota"},
	},
	{
		result:   Classification{CategoryAuth, SeverityCritical, false},
		statuses: []int{401, 403},
		substrs:  []string{"unauthorized", "forbidden", "invalid api key", "authentication"},
	},
	{
		result:   Classification{CategoryServer, SeverityHigh, true},
		statuses: []int{500, 502, 503, 504},
		substrs:  []string{"internal server error", "bad gateway", "service unavailable", "gateway timeout"},
	},
	{
		result:  Classification{CategoryParsing, SeverityMedium, false},
		substrs: []string{"malformed", "unexpected end of json", "invalid character", "cannot unmarshal", "parse error"},
	},
	{
		result:   Classification{CategoryValidation, SeverityLow, false},
		statuses: []int{400, 422},
		substrs:  []string{"invalid input", "bad request", "invalid query"},
	},
}

// Classify pattern-matches err into a Classification. Groups are
// checked in order (network, rate_limit, authentication, server,
// parsing, validation); the first match wins. Unmatched errors fall
// through to unknown/medium/non-retryable.
func Classify(err error) Classification {
	if err == nil {
		return Classification{CategoryUnknown, SeverityMedium, false}
	}

	statusCode := 0
	var se *SourceError
	if errors.As(err, &se) {
		statusCode = se.StatusCode
	}

	// Typed network errors before any string matching.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classifierGroups[0].result
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return classifierGroups[0].result
	}

	msg := strings.ToLower(err.Error())
	for _, g := range classifierGroups {
		for _, code := range g.statuses {
			if statusCode == code {
				return g.result
			}
		}
		for _, sub := range g.substrs {
			if strings.Contains(msg, sub) {
				return g.result
			}
		}
	}

	return Classification{CategoryUnknown, SeverityMedium, false}
}
