package signal

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// Decoded is what a Decoder extracts from one raw output line.
type Decoded struct {
	// Text is agent prose. Markers are matched against it and nothing else.
	Text string
	// Partial marks Text as a fragment that continues in a later line.
	Partial bool
	// Chars counts other content pulled into context (tool output, file
	// reads and writes) for the token estimate.
	Chars int
	// Usage is a backend-reported cumulative token count, 0 when absent.
	Usage int
	// Wrote is the path of a file written by a tool call.
	Wrote string
	// Failed is a shell command that exited non-zero.
	Failed string
}

// Decoder turns one raw output line (without its newline) into Decoded.
type Decoder func(line []byte) Decoded

var usagePattern = regexp.MustCompile(`(?i)tokens used:?\s*([0-9][0-9,]*)`)

// PlainDecoder treats every line as agent text and picks up "tokens used: N"
// summaries.
func PlainDecoder(line []byte) Decoded {
	d := Decoded{Text: string(line)}
	d.Usage = ParseUsage(d.Text)
	return d
}

// ParseUsage extracts a "tokens used: N" count from text, or 0.
func ParseUsage(text string) int {
	m := usagePattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// ScannerOptions configures a Scanner.
type ScannerOptions struct {
	// Decode defaults to PlainDecoder.
	Decode Decoder
	// Tracker receives character and usage counts. Optional.
	Tracker *Tracker
	// Gutter raises GUTTER on repeated failures or writes. Optional.
	Gutter *GutterDetector
	// OnSignal is called for every marker as soon as its line completes,
	// with the line (or the gutter reason) that produced it.
	OnSignal func(sig Signal, context string)
	// OnText is called with every complete line of agent text.
	OnText func(text string)
}

// Scanner incrementally assembles output into lines and detects markers.
// It is not safe for concurrent use.
type Scanner struct {
	opts ScannerOptions

	raw  []byte
	text []byte

	terminal Signal
	last     Signal
}

// NewScanner returns a Scanner ready to receive output.
func NewScanner(opts ScannerOptions) *Scanner {
	if opts.Decode == nil {
		opts.Decode = PlainDecoder
	}
	return &Scanner{opts: opts}
}

// Write feeds a chunk of raw output. Every complete line in p is processed
// before Write returns; a trailing partial line is kept for the next call.
// Once a terminal marker has been seen further writes are discarded.
func (s *Scanner) Write(p []byte) (int, error) {
	if s.Done() {
		return len(p), nil
	}
	s.raw = append(s.raw, p...)
	for {
		i := bytes.IndexByte(s.raw, '\n')
		if i < 0 {
			break
		}
		s.processRaw(s.raw[:i])
		s.raw = s.raw[i+1:]
	}
	if len(s.raw) == 0 {
		s.raw = nil
	}
	return len(p), nil
}

// Flush processes any buffered partial line. Call it once the output ends.
func (s *Scanner) Flush() {
	if s.Done() {
		return
	}
	if len(s.raw) > 0 {
		s.processRaw(s.raw)
		s.raw = nil
	}
	if len(s.text) > 0 {
		s.matchLine(string(s.text))
		s.text = nil
	}
}

// Done reports whether a terminal marker has been seen.
func (s *Scanner) Done() bool {
	return s.terminal != None
}

// Terminal returns the most recent terminal marker, or None.
func (s *Scanner) Terminal() Signal {
	return s.terminal
}

// Last returns the most recent non-terminal marker (ROTATE or QUESTION),
// or None.
func (s *Scanner) Last() Signal {
	return s.last
}

// Result returns the session's outcome signal: the terminal marker if one
// was seen, otherwise the last non-terminal marker.
func (s *Scanner) Result() Signal {
	if s.terminal != None {
		return s.terminal
	}
	return s.last
}

func (s *Scanner) processRaw(raw []byte) {
	raw = bytes.TrimRight(raw, "\r")
	if len(bytes.TrimSpace(raw)) == 0 {
		return
	}
	d := s.opts.Decode(raw)

	if t := s.opts.Tracker; t != nil {
		t.AddChars(len(d.Text) + d.Chars)
		if d.Usage > 0 {
			t.Report(d.Usage)
		}
	}

	if g := s.opts.Gutter; g != nil {
		if d.Wrote != "" {
			if reason, stuck := g.TrackWrite(d.Wrote); stuck {
				s.observe(Gutter, reason)
			}
		}
		if d.Failed != "" {
			if reason, stuck := g.TrackFailure(d.Failed); stuck {
				s.observe(Gutter, reason)
			}
		}
	}

	if d.Text == "" && (d.Partial || len(s.text) == 0) {
		return
	}
	s.text = append(s.text, d.Text...)
	if !d.Partial {
		s.text = append(s.text, '\n')
	}
	for {
		i := bytes.IndexByte(s.text, '\n')
		if i < 0 {
			break
		}
		s.matchLine(string(s.text[:i]))
		s.text = s.text[i+1:]
	}
	if len(s.text) == 0 {
		s.text = nil
	}
}

func (s *Scanner) matchLine(line string) {
	if s.opts.OnText != nil {
		s.opts.OnText(line)
	}
	if sig := Detect(line); sig != None {
		s.observe(sig, line)
	}
}

func (s *Scanner) observe(sig Signal, context string) {
	if sig.Terminal() {
		s.terminal = sig
	} else {
		s.last = sig
	}
	if s.opts.OnSignal != nil {
		s.opts.OnSignal(sig, context)
	}
}
