package signal

import (
	"fmt"
	"strings"
)

// Signal is a control event emitted by an agent session.
type Signal int

const (
	// None means no marker was seen. A session that times out or crashes
	// reports None.
	None Signal = iota
	Complete
	Gutter
	Question
	Rotate
	VerifyPass
	VerifyFail
)

var signalNames = map[Signal]string{
	None:       "NONE",
	Complete:   "COMPLETE",
	Gutter:     "GUTTER",
	Question:   "QUESTION",
	Rotate:     "ROTATE",
	VerifyPass: "VERIFY_PASS",
	VerifyFail: "VERIFY_FAIL",
}

// String returns the marker name, e.g. "VERIFY_PASS".
func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// Terminal reports whether the signal ends a session's read loop.
func (s Signal) Terminal() bool {
	switch s {
	case Complete, Gutter, VerifyPass, VerifyFail:
		return true
	}
	return false
}

// Marker returns the literal text an agent prints for s, or "" for None.
func (s Signal) Marker() string {
	if s == None {
		return ""
	}
	return "<ralph>" + s.String() + "</ralph>"
}

// Parse converts a marker name back to a Signal.
func Parse(name string) (Signal, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for sig, n := range signalNames {
		if n == upper {
			return sig, nil
		}
	}
	return None, fmt.Errorf("unknown signal %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signal) UnmarshalText(text []byte) error {
	sig, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// bareRotate is the legacy token agents may print instead of the tagged form.
const bareRotate = "RALPH_ROTATE"

type pattern struct {
	text   string
	signal Signal
}

var patterns = []pattern{
	{Complete.Marker(), Complete},
	{Gutter.Marker(), Gutter},
	{Question.Marker(), Question},
	{Rotate.Marker(), Rotate},
	{bareRotate, Rotate},
	{VerifyPass.Marker(), VerifyPass},
	{VerifyFail.Marker(), VerifyFail},
}

// Detect returns the marker that appears last in line, or None.
func Detect(line string) Signal {
	if !strings.Contains(line, "<ralph>") && !strings.Contains(line, bareRotate) {
		return None
	}
	found, at := None, -1
	for _, p := range patterns {
		if i := strings.LastIndex(line, p.text); i > at {
			found, at = p.signal, i
		}
	}
	return found
}
