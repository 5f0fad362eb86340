package timing

import (
	"testing"
	"time"
)

func TestStopwatch(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Duration{0, 1500 * time.Millisecond, 2000 * time.Millisecond, 2250 * time.Millisecond}
	i := 0
	sw := newStopwatch(func() time.Time {
		t := base.Add(ticks[i])
		i++
		return t
	})

	if got := sw.Lap("build"); got != 1500*time.Millisecond {
		t.Fatalf("build: expected 1.5s, got %v", got)
	}
	if got := sw.Lap("write"); got != 500*time.Millisecond {
		t.Fatalf("write: expected 500ms, got %v", got)
	}
	if got := sw.Total(); got != 2250*time.Millisecond {
		t.Fatalf("total: expected 2.25s, got %v", got)
	}
	if got := Millis(sw.Get("build")); got != 1500 {
		t.Fatalf("expected 1500ms, got %d", got)
	}
	if got := sw.Get("missing"); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
