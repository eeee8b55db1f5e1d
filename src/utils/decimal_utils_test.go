package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDivTruncTruncatesTowardZero(t *testing.T) {
	got := DivTrunc(d("7"), d("2"))
	if !got.Equal(d("3")) {
		t.Fatalf("expected 3, got %s", got.String())
	}

	got = DivTrunc(d("999"), d("1000"))
	if !got.Equal(d("0")) {
		t.Fatalf("expected 0, got %s", got.String())
	}

	got = DivTrunc(d("-7"), d("2"))
	if !got.Equal(d("-3")) {
		t.Fatalf("expected -3, got %s", got.String())
	}
}

func TestDivTruncByZero(t *testing.T) {
	if got := DivTrunc(d("5"), decimal.Zero); !got.IsZero() {
		t.Fatalf("expected zero, got %s", got.String())
	}
}

func TestApplyBps(t *testing.T) {
	// 50 bps of 10000 is 50.
	if got := ApplyBps(d("10000"), 50); !got.Equal(d("50")) {
		t.Fatalf("expected 50, got %s", got.String())
	}

	// Truncates: 1 bps of 9999 is 0.9999 -> 0.
	if got := ApplyBps(d("9999"), 1); !got.IsZero() {
		t.Fatalf("expected 0, got %s", got.String())
	}

	// Full denominator is identity.
	if got := ApplyBps(d("12345"), BpsDenominator); !got.Equal(d("12345")) {
		t.Fatalf("expected identity, got %s", got.String())
	}
}

func TestMinDecimal(t *testing.T) {
	if got := MinDecimal(d("3"), d("5")); !got.Equal(d("3")) {
		t.Fatalf("expected 3, got %s", got.String())
	}
	if got := MinDecimal(d("5"), d("3")); !got.Equal(d("3")) {
		t.Fatalf("expected 3, got %s", got.String())
	}
}
