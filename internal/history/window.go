// Package history partitions long ranges into provider-sized windows and
// fetches them one call at a time.
package history

import (
	"fmt"
	"time"
)

// Window is a half-open UTC interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// String formats the window for logs.
func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// SplitDays partitions [start, end) along UTC midnights. The first and last
// windows are clipped to the range. An empty or inverted range yields nil.
func SplitDays(start, end time.Time) []Window {
	return split(start, end, func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	})
}

// SplitYears partitions [start, end) along UTC January 1sts, clipped at both ends.
func SplitYears(start, end time.Time) []Window {
	return split(start, end, func(t time.Time) time.Time {
		return time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	})
}

// split walks from start, cutting at each boundary returned by next.
func split(start, end time.Time, next func(time.Time) time.Time) []Window {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return nil
	}

	var windows []Window
	for cur := start; cur.Before(end); {
		stop := next(cur)
		if stop.After(end) {
			stop = end
		}
		windows = append(windows, Window{Start: cur, End: stop})
		cur = stop
	}
	return windows
}
