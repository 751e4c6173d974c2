package backoff_test

import (
	"math"
	"testing"
	"time"

	"github.com/relaysched/monque/internal/backoff"
)

func TestDelayProgression(t *testing.T) {
	base := time.Second
	noCap := time.Duration(math.MaxInt64)
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		32000 * time.Millisecond,
	}
	for n, w := range want {
		if got := backoff.Delay(n, base, noCap); got != w {
			t.Errorf("Delay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestDelayCap(t *testing.T) {
	got := backoff.Delay(10, time.Second, 60*time.Second)
	if got != 60*time.Second {
		t.Errorf("Delay(10) = %v, want 60s", got)
	}
}

func TestDelayMonotoneUnderCap(t *testing.T) {
	base := 10 * time.Millisecond
	max := time.Hour
	prev := time.Duration(0)
	for n := 0; n < 12; n++ {
		d := backoff.Delay(n, base, max)
		if d < prev {
			t.Fatalf("Delay(%d) = %v is less than Delay(%d) = %v", n, d, n-1, prev)
		}
		prev = d
	}
}

func TestNextRunAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := backoff.NextRunAt(now, 0, time.Second, time.Hour)
	want := now.Add(time.Second)
	if !got.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", got, want)
	}
}
