package signal

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observed struct {
	sig     Signal
	context string
}

func newRecordingScanner(opts ScannerOptions) (*Scanner, *[]observed) {
	var seen []observed
	opts.OnSignal = func(sig Signal, context string) {
		seen = append(seen, observed{sig, context})
	}
	return NewScanner(opts), &seen
}

func feed(t *testing.T, s *Scanner, chunks ...string) {
	t.Helper()
	for _, c := range chunks {
		n, err := s.Write([]byte(c))
		require.NoError(t, err)
		assert.Equal(t, len(c), n)
	}
}

func TestScanner_MarkerSplitAcrossChunks(t *testing.T) {
	s, seen := newRecordingScanner(ScannerOptions{})

	feed(t, s, "working...\n<ral", "ph>COMP")
	assert.Empty(t, *seen, "partial marker must not be reported")
	assert.False(t, s.Done())

	feed(t, s, "LETE</ralph>\n")
	require.Len(t, *seen, 1)
	assert.Equal(t, Complete, (*seen)[0].sig)
	assert.True(t, s.Done())
	assert.Equal(t, Complete, s.Result())
}

func TestScanner_EveryChunkBoundary(t *testing.T) {
	out := "line one\nI am done <ralph>COMPLETE</ralph>\ntrailing\n"
	for cut := 1; cut < len(out); cut++ {
		s := NewScanner(ScannerOptions{})
		feed(t, s, out[:cut], out[cut:])
		s.Flush()
		assert.Equal(t, Complete, s.Terminal(), "cut at %d", cut)
	}
}

func TestScanner_TerminalStopsFurtherInput(t *testing.T) {
	s, seen := newRecordingScanner(ScannerOptions{})

	feed(t, s, "<ralph>GUTTER</ralph>\n")
	feed(t, s, "<ralph>COMPLETE</ralph>\n")

	assert.Equal(t, Gutter, s.Terminal())
	assert.Len(t, *seen, 1)
}

func TestScanner_LastTerminalInChunkWins(t *testing.T) {
	s := NewScanner(ScannerOptions{})
	feed(t, s, "<ralph>VERIFY_FAIL</ralph>\nrechecked\n<ralph>VERIFY_PASS</ralph>\n")
	assert.Equal(t, VerifyPass, s.Terminal())
}

func TestScanner_NonTerminalContinues(t *testing.T) {
	s, seen := newRecordingScanner(ScannerOptions{})

	feed(t, s, "<ralph>QUESTION</ralph>\n", "still going\n")
	assert.False(t, s.Done())
	assert.Equal(t, Question, s.Last())
	assert.Equal(t, Question, s.Result())

	feed(t, s, "RALPH_ROTATE\n")
	assert.Equal(t, Rotate, s.Result())
	assert.Len(t, *seen, 2)
}

func TestScanner_FlushProcessesTrailingLine(t *testing.T) {
	s := NewScanner(ScannerOptions{})
	feed(t, s, "no newline <ralph>COMPLETE</ralph>")
	assert.False(t, s.Done())

	s.Flush()
	assert.Equal(t, Complete, s.Terminal())
}

func TestScanner_FlushDoesNotCompletePartialMarker(t *testing.T) {
	s := NewScanner(ScannerOptions{})
	feed(t, s, "<ralph>COMPLE")
	s.Flush()
	assert.Equal(t, None, s.Result())
}

func TestScanner_OnlyDecodedTextIsMatched(t *testing.T) {
	// A decoder that hides tool output from marker matching.
	decode := func(line []byte) Decoded {
		var ev struct {
			Kind string `json:"kind"`
			Body string `json:"body"`
		}
		if err := json.Unmarshal(line, &ev); err != nil {
			return Decoded{}
		}
		if ev.Kind == "text" {
			return Decoded{Text: ev.Body}
		}
		return Decoded{Chars: len(ev.Body)}
	}

	s := NewScanner(ScannerOptions{Decode: decode})
	feed(t, s, `{"kind":"tool","body":"cat prompt.md: <ralph>COMPLETE</ralph>"}`+"\n")
	assert.False(t, s.Done())

	feed(t, s, `{"kind":"text","body":"<ralph>COMPLETE</ralph>"}`+"\n")
	assert.Equal(t, Complete, s.Terminal())
}

func TestScanner_PartialTextAcrossEvents(t *testing.T) {
	deltas := []string{"Finished. <ral", "ph>COMP", "LETE</ralph>"}
	i := 0
	decode := func(line []byte) Decoded {
		if string(line) == "end" {
			return Decoded{}
		}
		d := Decoded{Text: deltas[i], Partial: true}
		i++
		return d
	}

	s := NewScanner(ScannerOptions{Decode: decode})
	feed(t, s, "a\n", "b\n", "c\n")
	assert.False(t, s.Done(), "partial text must wait for its line to end")

	feed(t, s, "end\n")
	assert.Equal(t, Complete, s.Terminal())
}

func TestScanner_OnText(t *testing.T) {
	var lines []string
	s := NewScanner(ScannerOptions{OnText: func(text string) { lines = append(lines, text) }})
	feed(t, s, "one\r\ntwo\n\n   \nthree")
	s.Flush()
	assert.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestScanner_TracksTokens(t *testing.T) {
	var totals []int
	tracker := NewTracker(100, 0, 0)
	tracker.OnTokens = func(total int) { totals = append(totals, total) }

	s := NewScanner(ScannerOptions{Tracker: tracker})
	feed(t, s, strings.Repeat("x", 400)+"\n")
	assert.Equal(t, 200, tracker.Total())

	feed(t, s, "tokens used: 12,345\n")
	assert.Equal(t, 12345, tracker.Total())
	assert.Equal(t, []int{200, 204, 12345}, totals)
	assert.False(t, s.Done(), "token telemetry must not alter control flow")
}

func TestScanner_GutterDetection(t *testing.T) {
	decode := func(line []byte) Decoded {
		return Decoded{Failed: string(line)}
	}
	s, seen := newRecordingScanner(ScannerOptions{Decode: decode, Gutter: NewGutterDetector()})

	feed(t, s, "make test\n", "make test\n")
	assert.False(t, s.Done())

	feed(t, s, "make test\n")
	assert.Equal(t, Gutter, s.Terminal())
	require.Len(t, *seen, 1)
	assert.Contains(t, (*seen)[0].context, "make test")
}

func TestGutterDetector_WriteWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewGutterDetector()
	g.now = func() time.Time { return now }

	for i := 0; i < 4; i++ {
		_, stuck := g.TrackWrite("main.go")
		assert.False(t, stuck)
		now = now.Add(3 * time.Minute)
	}
	// The first write has aged out of the window.
	_, stuck := g.TrackWrite("main.go")
	assert.False(t, stuck)

	now = now.Add(time.Second)
	reason, stuck := g.TrackWrite("main.go")
	assert.True(t, stuck)
	assert.Contains(t, reason, "main.go written 5 times")
}

func TestGutterDetector_ZeroValue(t *testing.T) {
	var g GutterDetector

	for i := 0; i < DefaultFailureLimit-1; i++ {
		_, stuck := g.TrackFailure("make test")
		assert.False(t, stuck)
	}
	reason, stuck := g.TrackFailure("make test")
	assert.True(t, stuck)
	assert.Contains(t, reason, "command failed 3 times")

	for i := 0; i < DefaultWriteLimit-1; i++ {
		_, stuck := g.TrackWrite("main.go")
		assert.False(t, stuck)
	}
	_, stuck = g.TrackWrite("main.go")
	assert.True(t, stuck)
}

func TestParseUsage(t *testing.T) {
	assert.Equal(t, 0, ParseUsage("nothing here"))
	assert.Equal(t, 1500, ParseUsage("Tokens used: 1,500"))
	assert.Equal(t, 42, ParseUsage("tokens used 42"))
}
