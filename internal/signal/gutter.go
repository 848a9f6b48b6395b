package signal

import (
	"fmt"
	"time"
)

// Gutter detection thresholds.
const (
	DefaultFailureLimit = 3
	DefaultWriteLimit   = 5
	DefaultWriteWindow  = 10 * time.Minute
)

// GutterDetector spots an agent going in circles from its tool activity:
// the same shell command failing repeatedly, or the same file being
// rewritten many times in a short window. The zero value uses the default
// thresholds.
type GutterDetector struct {
	FailureLimit int
	WriteLimit   int
	WriteWindow  time.Duration

	now      func() time.Time
	failures map[string]int
	writes   []fileWrite
}

type fileWrite struct {
	at   time.Time
	path string
}

// NewGutterDetector returns a detector with the default thresholds.
func NewGutterDetector() *GutterDetector {
	return &GutterDetector{
		FailureLimit: DefaultFailureLimit,
		WriteLimit:   DefaultWriteLimit,
		WriteWindow:  DefaultWriteWindow,
		now:          time.Now,
		failures:     map[string]int{},
	}
}

// TrackFailure records a failed command and returns a reason when the
// command has failed FailureLimit times.
func (g *GutterDetector) TrackFailure(command string) (string, bool) {
	if g.failures == nil {
		g.failures = map[string]int{}
	}
	g.failures[command]++
	limit := g.FailureLimit
	if limit <= 0 {
		limit = DefaultFailureLimit
	}
	if n := g.failures[command]; n >= limit {
		return fmt.Sprintf("command failed %d times: %s", n, command), true
	}
	return "", false
}

// TrackWrite records a file write and returns a reason when the file has
// been written WriteLimit times within WriteWindow.
func (g *GutterDetector) TrackWrite(path string) (string, bool) {
	if g.now == nil {
		g.now = time.Now
	}
	window, limit := g.WriteWindow, g.WriteLimit
	if window <= 0 {
		window = DefaultWriteWindow
	}
	if limit <= 0 {
		limit = DefaultWriteLimit
	}
	now := g.now()
	cutoff := now.Add(-window)

	kept := g.writes[:0]
	for _, w := range g.writes {
		if !w.at.Before(cutoff) {
			kept = append(kept, w)
		}
	}
	g.writes = append(kept, fileWrite{at: now, path: path})

	count := 0
	for _, w := range g.writes {
		if w.path == path {
			count++
		}
	}
	if count >= limit {
		return fmt.Sprintf("%s written %d times in %s", path, count, window), true
	}
	return "", false
}
