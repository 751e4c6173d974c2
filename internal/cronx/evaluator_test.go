package cronx_test

import (
	"testing"
	"time"

	"github.com/relaysched/monque/internal/cronx"
)

func TestValidate(t *testing.T) {
	if err := cronx.Validate("* * * * *"); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
	if err := cronx.Validate("not a cron"); err == nil {
		t.Error("expected error for malformed expression")
	}
	if err := cronx.Validate("99 * * * *"); err == nil {
		t.Error("expected error for out-of-range minute")
	}
}

func TestNextEveryMinute(t *testing.T) {
	ref := time.Date(2026, 3, 1, 10, 30, 15, 0, time.UTC)
	next, err := cronx.Next("* * * * *", ref)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := time.Date(2026, 3, 1, 10, 31, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
	if !next.After(ref) {
		t.Errorf("Next must be strictly after ref")
	}
}

func TestNextOnExactBoundary(t *testing.T) {
	ref := time.Date(2026, 3, 1, 10, 31, 0, 0, time.UTC)
	next, err := cronx.Next("* * * * *", ref)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !next.After(ref) {
		t.Errorf("Next(%v) = %v, must be strictly after ref even on an exact boundary", ref, next)
	}
}

func TestNextInvalidExpression(t *testing.T) {
	_, err := cronx.Next("garbage", time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
}
