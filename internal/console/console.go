// Package console prints the loop's narration for the operator and reads
// answers to agent questions.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/thruflo/ralph/internal/signal"
)

// Console writes status lines to out and reads answers from in.
type Console struct {
	// Interactive enables Ask. It defaults to whether in and out are both
	// terminals.
	Interactive bool

	out io.Writer
	in  io.Reader

	mu    sync.Mutex
	once  sync.Once
	lines chan string

	title, info, success, warn, fail, dim *color.Color
}

// New returns a Console writing to out and reading from in. in may be nil.
func New(out io.Writer, in io.Reader) *Console {
	c := &Console{
		out:     out,
		in:      in,
		title:   color.New(color.FgCyan, color.Bold),
		info:    color.New(color.FgCyan),
		success: color.New(color.FgGreen, color.Bold),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed, color.Bold),
		dim:     color.New(color.Faint),
	}

	tty := isTerminal(out)
	c.Interactive = in != nil && tty && isTerminal(in)
	for _, col := range []*color.Color{c.title, c.info, c.success, c.warn, c.fail, c.dim} {
		if tty && !color.NoColor {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Stdio returns a Console on the process's stdout and stdin.
func Stdio() *Console {
	return New(os.Stdout, os.Stdin)
}

// Discard returns a Console that prints nothing and never asks.
func Discard() *Console {
	return New(io.Discard, nil)
}

func isTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *Console) println(col *color.Color, format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, col.Sprintf(format, args...))
}

// Header prints a section title.
func (c *Console) Header(format string, args ...interface{}) {
	c.mu.Lock()
	fmt.Fprintln(c.out)
	c.mu.Unlock()
	c.println(c.title, format, args...)
}

// Info prints a plain status line.
func (c *Console) Info(format string, args ...interface{}) {
	c.println(c.info, format, args...)
}

// Success prints a success line.
func (c *Console) Success(format string, args ...interface{}) {
	c.println(c.success, "✓ "+format, args...)
}

// Warn prints a warning line.
func (c *Console) Warn(format string, args ...interface{}) {
	c.println(c.warn, "⚠ "+format, args...)
}

// Error prints an error line.
func (c *Console) Error(format string, args ...interface{}) {
	c.println(c.fail, "✗ "+format, args...)
}

// Detail prints a de-emphasized line.
func (c *Console) Detail(format string, args ...interface{}) {
	c.println(c.dim, "  "+format, args...)
}

// Iteration announces the start of an iteration.
func (c *Console) Iteration(n, max int, provider string) {
	c.Header("Iteration %d/%d - %s", n, max, provider)
}

// Tokens prints the token estimate with a colour for its health.
func (c *Console) Tokens(total, rotateThreshold int, health signal.Health) {
	col := c.success
	switch health {
	case signal.HealthYellow:
		col = c.warn
	case signal.HealthRed:
		col = c.fail
	}
	c.println(col, "  tokens ~%d/%d (%s)", total, rotateThreshold, health)
}

// Ask shows question and waits up to timeout for a one-line answer. The
// second result is false when the console is not interactive or the wait
// expired. Cancelling ctx aborts the wait with ctx.Err().
func (c *Console) Ask(ctx context.Context, question string, timeout time.Duration) (string, bool, error) {
	c.Header("Agent question")
	for _, l := range strings.Split(strings.TrimSpace(question), "\n") {
		c.Detail("%s", l)
	}
	if !c.Interactive || c.in == nil {
		c.Warn("No interactive input; continuing without an answer")
		return "", false, nil
	}

	if c.lines != nil {
		c.discardPending()
	}
	c.once.Do(c.startReader)

	c.mu.Lock()
	fmt.Fprint(c.out, c.info.Sprintf("Answer (%s timeout): ", timeout.Round(time.Second)))
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line, ok := <-c.lines:
		if !ok {
			c.mu.Lock()
			fmt.Fprintln(c.out)
			c.mu.Unlock()
			c.Warn("Input closed; continuing without an answer")
			return "", false, nil
		}
		return strings.TrimSpace(line), true, nil
	case <-timer.C:
		c.mu.Lock()
		fmt.Fprintln(c.out)
		c.mu.Unlock()
		c.Warn("No answer after %s; continuing", timeout.Round(time.Second))
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// discardPending drops lines typed while no question was waiting so they
// are not taken as the answer.
func (c *Console) discardPending() {
	for {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// startReader reads lines from in for the life of the process. A read
// blocked on a terminal cannot be cancelled, so one goroutine serves
// every Ask.
func (c *Console) startReader() {
	c.lines = make(chan string, 1)
	go func() {
		defer close(c.lines)
		r := bufio.NewReader(c.in)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				c.lines <- line
			}
			if err != nil {
				return
			}
		}
	}()
}
