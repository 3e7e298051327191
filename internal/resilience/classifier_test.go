package resilience

import (
	"errors"
	"syscall"
	"testing"
)

func TestClassify_Categories(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  Category
		severity  Severity
		retryable bool
	}{
		{"connection reset", errors.New("read tcp: connection reset by peer"), CategoryNetwork, SeverityMedium, true},
		{"dns failure", errors.New("dial tcp: lookup ebay.com: no such host"), CategoryNetwork, SeverityMedium, true},
		{"deadline", errors.New("context deadline exceeded"), CategoryNetwork, SeverityMedium, true},
		{"rate limit text", errors.New("too many requests, slow down"), CategoryRateLimit, SeverityMedium, true},
		{"quota", errors.New("daily quota exceeded"), CategoryRateLimit, SeverityMedium, true},
		{"unauthorized", errors.New("401 unauthorized"), CategoryAuth, SeverityCritical, false},
		{"server", errors.New("502 bad gateway"), CategoryServer, SeverityHigh, true},
		{"parsing", errors.New("unexpected end of JSON input"), CategoryParsing, SeverityMedium, false},
		{"validation", errors.New("invalid input: query too short"), CategoryValidation, SeverityLow, false},
		{"unknown", errors.New("something odd happened"), CategoryUnknown, SeverityMedium, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.err)
			if cls.Category != tt.category {
				t.Errorf("category = %s, want %s", cls.Category, tt.category)
			}
			if cls.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", cls.Severity, tt.severity)
			}
			if cls.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", cls.Retryable, tt.retryable)
			}
		})
	}
}

func TestClassify_StatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		category Category
	}{
		{429, CategoryRateLimit},
		{401, CategoryAuth},
		{403, CategoryAuth},
		{500, CategoryServer},
		{503, CategoryServer},
		{400, CategoryValidation},
	}
	for _, tt := range tests {
		err := NewSourceError("ebay", "search", tt.status, errors.New("request failed"))
		cls := Classify(err)
		if cls.Category != tt.category {
			t.Errorf("status %d: category = %s, want %s", tt.status, cls.Category, tt.category)
		}
	}
}

func TestClassify_SyscallErrors(t *testing.T) {
	for _, errno := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		cls := Classify(errno)
		if cls.Category != CategoryNetwork {
			t.Errorf("%v: category = %s, want network", errno, cls.Category)
		}
		if !cls.Retryable {
			t.Errorf("%v: expected retryable", errno)
		}
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// Message matches both network and server vocab; network is
	// checked first.
	cls := Classify(errors.New("i/o timeout talking to bad gateway"))
	if cls.Category != CategoryNetwork {
		t.Errorf("category = %s, want network (first matching group)", cls.Category)
	}
}

func TestClassification_Critical(t *testing.T) {
	if !(Classification{CategoryAuth, SeverityCritical, false}).Critical() {
		t.Error("auth/critical should be critical")
	}
	if !(Classification{CategoryUnknown, SeverityCritical, false}).Critical() {
		t.Error("critical severity should be critical regardless of category")
	}
	if (Classification{CategoryServer, SeverityHigh, true}).Critical() {
		t.Error("server/high should not be critical")
	}
}

func TestSourceError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	se := NewSourceError("heritage", "search", 500, inner)
	if !errors.Is(se, inner) {
		t.Error("expected errors.Is to reach wrapped error")
	}
	if se.Error() != "boom" {
		t.Errorf("Error() = %q, want %q", se.Error(), "boom")
	}
}
