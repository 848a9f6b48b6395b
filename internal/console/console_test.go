package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/signal"
)

func interactive(in io.Reader) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	c := New(&out, in)
	c.Interactive = true
	return c, &out
}

func TestConsole_PlainOutputWhenNotTerminal(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, nil)
	assert.False(t, c.Interactive)

	c.Iteration(2, 20, "Claude Code")
	c.Success("done")
	c.Warn("careful")
	c.Error("broken")
	c.Tokens(100, 1000, signal.HealthGreen)

	text := out.String()
	assert.Contains(t, text, "Iteration 2/20 - Claude Code")
	assert.Contains(t, text, "✓ done")
	assert.Contains(t, text, "⚠ careful")
	assert.Contains(t, text, "✗ broken")
	assert.Contains(t, text, "tokens ~100/1000 (green)")
	assert.NotContains(t, text, "\x1b[", "no colour codes outside a terminal")
}

func TestConsole_AskReadsAnswer(t *testing.T) {
	c, out := interactive(strings.NewReader("use postgres\n"))

	answer, ok, err := c.Ask(context.Background(), "Which database?", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "use postgres", answer)
	assert.Contains(t, out.String(), "Which database?")
}

func TestConsole_AskIgnoresInputTypedBetweenQuestions(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c, _ := interactive(pr)

	go func() { _, _ = io.WriteString(pw, "first\n") }()
	answer, ok, err := c.Ask(context.Background(), "one?", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", answer)

	// Typed while nothing was asking.
	_, err = io.WriteString(pw, "stale\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.lines) == 1 }, time.Second, 5*time.Millisecond)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = io.WriteString(pw, "fresh\n")
	}()
	answer, ok, err = c.Ask(context.Background(), "two?", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", answer)
}

func TestConsole_AskTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c, out := interactive(pr)

	start := time.Now()
	_, ok, err := c.Ask(context.Background(), "Anyone there?", 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, out.String(), "No answer")
}

func TestConsole_AskCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c, _ := interactive(pr)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, ok, err := c.Ask(ctx, "question", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestConsole_AskNonInteractive(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, strings.NewReader("ignored\n"))

	_, ok, err := c.Ask(context.Background(), "question", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "No interactive input")
}

func TestConsole_AskInputClosed(t *testing.T) {
	c, _ := interactive(strings.NewReader(""))

	_, ok, err := c.Ask(context.Background(), "question", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}
