// Package timing measures named phases of a long-running operation.
package timing

import (
	"time"
)

// Stopwatch records the duration of consecutive phases. It is not safe for
// concurrent use.
type Stopwatch struct {
	start time.Time
	last  time.Time
	laps  map[string]time.Duration
	now   func() time.Time
}

func NewStopwatch() *Stopwatch {
	return newStopwatch(time.Now)
}

func newStopwatch(now func() time.Time) *Stopwatch {
	t := now()
	return &Stopwatch{start: t, last: t, laps: make(map[string]time.Duration), now: now}
}

// Lap ends the current phase under name and starts the next one.
func (s *Stopwatch) Lap(name string) time.Duration {
	t := s.now()
	d := t.Sub(s.last)
	s.laps[name] += d
	s.last = t
	return d
}

// Get returns the recorded duration of a phase.
func (s *Stopwatch) Get(name string) time.Duration {
	return s.laps[name]
}

// Total is the time since the stopwatch was created.
func (s *Stopwatch) Total() time.Duration {
	return s.now().Sub(s.start)
}

// Millis formats a duration as whole milliseconds for log fields.
func Millis(d time.Duration) int64 {
	return d.Milliseconds()
}
