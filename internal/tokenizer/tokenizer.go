// Package tokenizer counts prompt tokens. A tiktoken encoding is used when
// one is configured and can be loaded; otherwise a character heuristic.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/thruflo/ralph/internal/logging"
)

// Heuristic is the configuration name for the character-based estimate.
const Heuristic = "heuristic"

// Counter counts tokens in a piece of text.
type Counter interface {
	Count(text string) int
	Name() string
}

// New returns a Counter for the named encoding, e.g. "cl100k_base".
// An empty name or "heuristic" selects the heuristic. The encoding is
// loaded lazily on first use; if loading fails the heuristic is used.
func New(name string) Counter {
	name = strings.TrimSpace(name)
	if name == "" || name == Heuristic {
		return heuristic{}
	}
	return &encoding{name: name}
}

type heuristic struct{}

func (heuristic) Name() string { return Heuristic }

func (heuristic) Count(text string) int {
	return Estimate(text)
}

// Estimate returns max(runes/4, words), with a minimum of 1 for non-blank
// text.
func Estimate(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

type encoding struct {
	name string
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func (e *encoding) load() {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.name)
		if err != nil {
			logging.Warn("tokenizer unavailable, using heuristic", "encoding", e.name, "error", err)
			return
		}
		e.enc = enc
	})
}

func (e *encoding) Name() string {
	e.load()
	if e.enc == nil {
		return Heuristic
	}
	return e.name
}

func (e *encoding) Count(text string) int {
	e.load()
	if e.enc == nil {
		return Estimate(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}
