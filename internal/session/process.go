package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/signal"
	"github.com/thruflo/ralph/internal/telemetry"
)

// Defaults for ProcessRunner.
const (
	DefaultChunkSize    = 4096
	DefaultKillGrace    = 5 * time.Second
	DefaultDrainTimeout = 2 * time.Second
	DefaultTimeout      = 300 * time.Second
)

// ProcessRunner runs sessions as local child processes. Each child gets
// its own process group so a timeout or interrupt can stop everything the
// agent spawned.
type ProcessRunner struct {
	// Env is added to the inherited environment.
	Env map[string]string
	// Activity receives lifecycle lines and raw output. Optional.
	Activity ActivityLog
	// DisableGutter turns off repeated-failure detection.
	DisableGutter bool

	ChunkSize int
	// KillGrace is how long the group has to exit after SIGTERM.
	KillGrace time.Duration
	// DrainTimeout bounds reading after the process exits, for output
	// held open by stray grandchildren.
	DrainTimeout time.Duration

	Tracer trace.Tracer
	Logger *logging.Logger
}

// NewProcessRunner returns a ProcessRunner with default settings.
func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{
		ChunkSize:    DefaultChunkSize,
		KillGrace:    DefaultKillGrace,
		DrainTimeout: DefaultDrainTimeout,
	}
}

// Run starts the provider's command and watches its output until a
// terminal marker, exit, timeout or cancellation.
func (r *ProcessRunner) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{
		ID:        uuid.New().String(),
		Provider:  req.Provider.DisplayName(),
		StartedAt: time.Now(),
	}
	log := r.logger().WithFields(map[string]interface{}{
		"session":  res.ID,
		"provider": res.Provider,
	})

	tracer := r.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer(nil)
	}
	ctx, span := tracer.Start(ctx, "session.run", trace.WithAttributes(
		attribute.String("session.id", res.ID),
		attribute.String("provider", res.Provider),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tracker := signal.NewTracker(req.PromptTokens, req.WarnThreshold, req.RotateThreshold)
	tracker.OnTokens = req.OnTokens
	tracker.OnWarn = func(total int) {
		log.Warn("approaching token limit", "tokens", total, "rotate_threshold", req.RotateThreshold)
		r.activity(fmt.Sprintf("WARN: approaching token limit (%d >= %d)", total, req.WarnThreshold))
		if req.OnWarn != nil {
			req.OnWarn(total)
		}
	}

	scanOpts := signal.ScannerOptions{
		Decode:  req.Provider.Decode,
		Tracker: tracker,
		OnText:  req.OnText,
		OnSignal: func(sig signal.Signal, line string) {
			log.Info("signal detected", "signal", sig)
			r.activity("SIGNAL: " + sig.String())
			span.AddEvent("signal", trace.WithAttributes(attribute.String("signal", sig.String())))
			if req.OnSignal != nil {
				req.OnSignal(sig, line)
			}
		},
	}
	if !r.DisableGutter {
		scanOpts.Gutter = signal.NewGutterDetector()
	}
	scanner := signal.NewScanner(scanOpts)

	r.activity(fmt.Sprintf("SESSION START: id=%s provider=%s", res.ID, res.Provider))

	var logBuf bytes.Buffer
	err := r.run(ctx, req, timeout, res, scanner, &logBuf, log)

	res.Log = logBuf.Bytes()
	res.Duration = time.Since(res.StartedAt)
	res.Tokens = tracker.Total()
	res.RotateThresholdHit = tracker.ShouldRotate()

	switch {
	case err != nil:
		// cancelled
	case scanner.Terminal() != signal.None:
		res.Signal = scanner.Terminal()
	case res.TimedOut:
		res.Signal = signal.None
	case res.Crashed || res.ExitCode != 0:
		res.Crashed = true
		res.Signal = signal.None
	default:
		res.Signal = scanner.Last()
	}

	span.SetAttributes(
		attribute.String("signal", res.Signal.String()),
		attribute.Int("tokens", res.Tokens),
		attribute.Int("exit_code", res.ExitCode),
		attribute.Bool("timed_out", res.TimedOut),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if res.Failed() {
		span.SetStatus(codes.Error, "session failed")
	}

	r.activity(fmt.Sprintf("SESSION END: signal=%s tokens=~%d exit=%d duration=%s",
		res.Signal, res.Tokens, res.ExitCode, res.Duration.Round(time.Second)))
	log.Debug("session finished",
		"signal", res.Signal,
		"tokens", res.Tokens,
		"exit_code", res.ExitCode,
		"timed_out", res.TimedOut,
		"crashed", res.Crashed)

	return res, err
}

func (r *ProcessRunner) run(ctx context.Context, req Request, timeout time.Duration, res *Result, scanner *signal.Scanner, logBuf *bytes.Buffer, log *logging.Logger) error {
	command := req.Provider.Command(req.Workspace, req.Prompt)
	if len(command.Args) == 0 {
		res.Crashed = true
		res.ExitCode = -1
		return nil
	}

	cmd := exec.Command(command.Args[0], command.Args[1:]...)
	cmd.Dir = command.Dir
	cmd.Env = mergeEnv(os.Environ(), r.Env)
	cmd.Stdin = strings.NewReader(command.Stdin)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		log.Warn("failed to start agent", "command", command.Args[0], "error", err)
		r.activity(fmt.Sprintf("SESSION CRASH: failed to start %s: %v", command.Args[0], err))
		res.Crashed = true
		res.ExitCode = -1
		return nil
	}
	// The child holds its own copy; ours must close for EOF to arrive.
	pw.Close()
	pgid := cmd.Process.Pid

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	chunks := make(chan []byte)
	stop := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		return pump(pr, r.chunkSize(), chunks, stop)
	})

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var (
		out       <-chan []byte = chunks
		eof       bool
		exited    bool
		waitErr   error
		drain     <-chan time.Time
		cancelled bool
	)

loop:
	for {
		select {
		case chunk, ok := <-out:
			if !ok {
				// Output closed; collect the exit status before deciding.
				eof, out = true, nil
				if exited {
					break loop
				}
				continue
			}
			logBuf.Write(chunk)
			if r.Activity != nil {
				if err := r.Activity.AppendOutput(chunk); err != nil {
					log.Debug("failed to append activity output", "error", err)
				}
			}
			_, _ = scanner.Write(chunk)
			if scanner.Done() {
				break loop
			}
		case waitErr = <-waitCh:
			exited = true
			waitCh = nil
			if eof {
				break loop
			}
			drain = time.After(r.drainTimeout())
		case <-drain:
			log.Debug("output still open after exit, abandoning drain")
			break loop
		case <-deadline.C:
			res.TimedOut = true
			log.Warn("session timed out", "timeout", timeout)
			r.activity(fmt.Sprintf("SESSION TIMEOUT after %s", timeout))
			break loop
		case <-ctx.Done():
			cancelled = true
			break loop
		}
	}

	if !exited {
		waitErr = r.killGroup(pgid, waitCh, log)
	}
	// Sweep anything left in the group.
	_ = syscall.Kill(-pgid, syscall.SIGKILL)

	close(stop)
	pr.Close()
	if err := g.Wait(); err != nil {
		log.Debug("output pump stopped", "error", err)
	}

	if !scanner.Done() && !res.TimedOut && !cancelled {
		scanner.Flush()
	}

	res.ExitCode = exitCode(waitErr)
	if cancelled {
		return ctx.Err()
	}
	return nil
}

// killGroup sends SIGTERM to the process group, waits up to KillGrace for
// the leader to exit and then sends SIGKILL.
func (r *ProcessRunner) killGroup(pgid int, waitCh <-chan error, log *logging.Logger) error {
	log.Debug("terminating process group", "pgid", pgid)
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	grace := r.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	log.Warn("process group ignored SIGTERM, sending SIGKILL", "pgid", pgid)
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	return <-waitCh
}

// pump copies r into chunks until EOF, a read error or stop.
func pump(r io.Reader, size int, chunks chan<- []byte, stop <-chan struct{}) error {
	defer close(chunks)
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-stop:
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return -1
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, override := extra[name]; !override {
			out = append(out, kv)
		}
	}
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

func (r *ProcessRunner) activity(msg string) {
	if r.Activity == nil {
		return
	}
	if err := r.Activity.LogActivity(msg); err != nil {
		r.logger().Debug("failed to write activity log", "error", err)
	}
}

func (r *ProcessRunner) logger() *logging.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logging.Default()
}

func (r *ProcessRunner) chunkSize() int {
	if r.ChunkSize > 0 {
		return r.ChunkSize
	}
	return DefaultChunkSize
}

func (r *ProcessRunner) drainTimeout() time.Duration {
	if r.DrainTimeout > 0 {
		return r.DrainTimeout
	}
	return DefaultDrainTimeout
}
