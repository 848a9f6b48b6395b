// Package provider describes the agent backends ralph can drive and the
// rotation order between them.
//
// The set of backends is closed: every Kind has a constructor here and each
// supplies every capability, falling back to the defaults in base.
package provider

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/thruflo/ralph/internal/signal"
)

// Kind identifies a backend.
type Kind string

const (
	KindClaude Kind = "claude"
	KindCursor Kind = "cursor"
	KindCodex  Kind = "codex"
	KindGemini Kind = "gemini"
)

// Kinds lists every supported backend in the default rotation order.
var Kinds = []Kind{KindCursor, KindClaude, KindGemini, KindCodex}

// Command is a fully built agent invocation.
type Command struct {
	Args []string
	// Stdin is written to the process and then closed.
	Stdin string
	// Dir is the working directory.
	Dir string
}

// Provider is one agent backend.
type Provider interface {
	Kind() Kind
	// Name is the executable invoked, e.g. "agent" for cursor.
	Name() string
	// DisplayName is what users see, e.g. "cursor".
	DisplayName() string
	// Available reports whether the executable can be found.
	Available() bool
	// Command builds the invocation that runs prompt in workspace.
	Command(workspace, prompt string) Command
	// Decode extracts agent text and token telemetry from one output line.
	Decode(line []byte) signal.Decoded
}

// LookPathFunc resolves an executable name, like exec.LookPath.
type LookPathFunc func(file string) (string, error)

// Option customizes a Provider built by New.
type Option func(*base)

// WithLookPath replaces the availability probe's executable lookup.
func WithLookPath(fn LookPathFunc) Option {
	return func(b *base) { b.lookPath = fn }
}

// WithBinary overrides the executable invoked, keeping the display name.
func WithBinary(path string) Option {
	return func(b *base) { b.binary = path }
}

type base struct {
	kind     Kind
	binary   string
	display  string
	lookPath LookPathFunc
}

func newBase(kind Kind, binary, display string, opts []Option) base {
	b := base{kind: kind, binary: binary, display: display, lookPath: exec.LookPath}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) Kind() Kind { return b.kind }

func (b base) Name() string { return b.binary }

func (b base) DisplayName() string {
	if b.display != "" {
		return b.display
	}
	return b.binary
}

func (b base) Available() bool {
	_, err := b.lookPath(b.binary)
	return err == nil
}

func (b base) Decode(line []byte) signal.Decoded {
	return signal.PlainDecoder(line)
}

// stdinCommand is the default invocation shape: fixed args, prompt on stdin,
// workspace as working directory.
func (b base) stdinCommand(workspace, prompt string, args ...string) Command {
	return Command{
		Args:  append([]string{b.binary}, args...),
		Stdin: prompt,
		Dir:   workspace,
	}
}

// New constructs the provider for kind.
func New(kind Kind, opts ...Option) (Provider, error) {
	switch kind {
	case KindClaude:
		return newClaude(opts), nil
	case KindCursor:
		return newCursor(opts), nil
	case KindCodex:
		return newCodex(opts), nil
	case KindGemini:
		return newGemini(opts), nil
	}
	return nil, fmt.Errorf("unknown provider %q", kind)
}

// ParseKind maps a configured name to a Kind. "agent" is accepted for
// cursor.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case KindClaude, KindCursor, KindCodex, KindGemini:
		return k, nil
	case "agent":
		return KindCursor, nil
	}
	return "", fmt.Errorf("unknown provider %q", name)
}

// FromNames builds providers for the configured names, in order.
func FromNames(names []string, opts ...Option) ([]Provider, error) {
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		p, err := New(kind, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
