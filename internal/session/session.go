// Package session runs one agent invocation: it starts the backend, feeds
// its output through a signal.Scanner under a wall-clock deadline and
// reports which control signal, if any, ended it.
package session

import (
	"context"
	"time"

	"github.com/thruflo/ralph/internal/provider"
	"github.com/thruflo/ralph/internal/signal"
)

// Request describes one session.
type Request struct {
	Provider  provider.Provider
	Prompt    string
	Workspace string
	Timeout   time.Duration

	// PromptTokens seeds the token estimate.
	PromptTokens    int
	WarnThreshold   int
	RotateThreshold int

	// OnSignal is called as soon as a marker is detected.
	OnSignal func(sig signal.Signal, context string)
	// OnTokens receives the running token total.
	OnTokens func(total int)
	// OnWarn is called once when the total reaches WarnThreshold.
	OnWarn func(total int)
	// OnText receives each complete line of agent text.
	OnText func(text string)
}

// Result is the outcome of a session.
type Result struct {
	ID       string
	Provider string

	// Signal is the terminal marker, or the last ROTATE/QUESTION when the
	// process exited cleanly without one. Timeouts and crashes report
	// signal.None.
	Signal signal.Signal
	// Tokens is the peak running token estimate.
	Tokens int
	// RotateThresholdHit is set when Tokens reached RotateThreshold.
	RotateThresholdHit bool

	TimedOut bool
	// Crashed is set when the process could not start or exited non-zero
	// without a terminal marker.
	Crashed  bool
	ExitCode int

	Log       []byte
	StartedAt time.Time
	Duration  time.Duration
}

// Failed reports whether the session ended by timeout or crash.
func (r *Result) Failed() bool {
	return r.TimedOut || r.Crashed
}

// Runner runs sessions. Run returns an error only when ctx is cancelled;
// timeouts and crashes are reported in the Result.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// ActivityLog receives a session's lifecycle lines and raw output.
type ActivityLog interface {
	LogActivity(msg string) error
	AppendOutput(p []byte) error
}

// MockRunner is a test double for Runner.
type MockRunner struct {
	// RunFunc is called when Run is invoked. If nil, Run returns an empty
	// clean result.
	RunFunc func(ctx context.Context, req Request) (*Result, error)
}

// Run calls the mock function if set.
func (m *MockRunner) Run(ctx context.Context, req Request) (*Result, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, req)
	}
	return &Result{Provider: req.Provider.DisplayName(), StartedAt: time.Now()}, nil
}
