package selector_test

import (
	"testing"
	"time"

	"github.com/relaysched/monque/internal/selector"
)

func TestCompileEmpty(t *testing.T) {
	c := selector.Compile(selector.Filter{}, 1)
	if c.Where != "" || len(c.Args) != 0 {
		t.Fatalf("expected empty compile, got %+v", c)
	}
}

func TestCompileNameStatusOlderThan(t *testing.T) {
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := selector.Compile(selector.Filter{
		Name:      "cleanup",
		Status:    []selector.Status{"completed"},
		OlderThan: &cutoff,
	}, 1)

	want := "name = $1 AND status = $2 AND created_at < $3"
	if c.Where != want {
		t.Fatalf("Where = %q, want %q", c.Where, want)
	}
	wantArgs := []any{"cleanup", "completed", cutoff}
	if len(c.Args) != len(wantArgs) {
		t.Fatalf("Args = %v, want %v", c.Args, wantArgs)
	}
}

func TestCompileStatusSet(t *testing.T) {
	c := selector.Compile(selector.Filter{
		Status: []selector.Status{"completed", "failed"},
	}, 1)
	want := "status IN ($1, $2)"
	if c.Where != want {
		t.Fatalf("Where = %q, want %q", c.Where, want)
	}
}

func TestCompileBothAgeBounds(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := selector.Compile(selector.Filter{OlderThan: &older, NewerThan: &newer}, 1)
	want := "created_at < $1 AND created_at > $2"
	if c.Where != want {
		t.Fatalf("Where = %q, want %q", c.Where, want)
	}
}

func TestCompileStartAt(t *testing.T) {
	c := selector.Compile(selector.Filter{Name: "x"}, 3)
	want := "name = $3"
	if c.Where != want {
		t.Fatalf("Where = %q, want %q", c.Where, want)
	}
}
