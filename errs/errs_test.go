package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesStructuredFields(t *testing.T) {
	err := New(
		"bybit",
		CodeExchange,
		WithHTTP(200),
		WithMessage("closed pnl lookup rejected"),
		WithRawCode("10001"),
		WithRawMessage("params error"),
		WithCause(errors.New("bybit ret code 10001")),
	)

	out := err.Error()
	if !strings.Contains(out, "venue=bybit") {
		t.Fatalf("expected venue marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=exchange_error") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "raw_code=\"10001\"") {
		t.Fatalf("expected raw code in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"bybit ret code 10001\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New("bybit", CodeNetwork, WithCause(cause))
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to match wrapped cause")
	}
}

func TestEmptyVenueFormatsAsUnknown(t *testing.T) {
	err := New("  ", CodeAuth)
	if !strings.Contains(err.Error(), "venue=unknown") {
		t.Fatalf("expected unknown venue marker, got %q", err.Error())
	}
}

func TestHasCode(t *testing.T) {
	err := New("bybit", CodeRateLimited, WithRawCode("10002"))
	if !HasCode(err, CodeRateLimited) {
		t.Fatal("expected HasCode to match the envelope code")
	}
	if HasCode(err, CodeAuth) {
		t.Fatal("expected HasCode to reject a different code")
	}

	wrapped := fmt.Errorf("request: %w", err)
	if !HasCode(wrapped, CodeRateLimited) {
		t.Fatal("expected HasCode to unwrap")
	}
	if HasCode(errors.New("plain"), CodeRateLimited) {
		t.Fatal("expected HasCode to reject non-envelope errors")
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}
