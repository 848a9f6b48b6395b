package loop

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/console"
	"github.com/thruflo/ralph/internal/git"
	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/provider"
	"github.com/thruflo/ralph/internal/session"
	"github.com/thruflo/ralph/internal/signal"
	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/task"
	"github.com/thruflo/ralph/internal/telemetry"
	"github.com/thruflo/ralph/internal/tokenizer"
)

// ExitReason indicates why the loop stopped.
type ExitReason int

const (
	ExitReasonUnknown              ExitReason = iota
	ExitReasonVerified                        // Verifier passed, task archived
	ExitReasonAlreadyComplete                 // Checklist was done before the first session
	ExitReasonCompletedWithWarning            // Verification failed too many times
	ExitReasonMaxIterations                   // Hit iteration limit
	ExitReasonOnce                            // Single iteration requested
	ExitReasonInterrupted                     // Context cancelled
)

// String returns a human-readable description of the exit reason.
func (r ExitReason) String() string {
	switch r {
	case ExitReasonVerified:
		return "verified"
	case ExitReasonAlreadyComplete:
		return "already complete"
	case ExitReasonCompletedWithWarning:
		return "completed with warning"
	case ExitReasonMaxIterations:
		return "max iterations"
	case ExitReasonOnce:
		return "single iteration"
	case ExitReasonInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Success reports whether the task ended up complete.
func (r ExitReason) Success() bool {
	switch r {
	case ExitReasonVerified, ExitReasonAlreadyComplete, ExitReasonCompletedWithWarning:
		return true
	}
	return false
}

var (
	// ErrVerifierReuse is returned when verification would run on the
	// provider that claimed completion while others are configured.
	ErrVerifierReuse = errors.New("verification would reuse the provider that claimed completion")
	// ErrNotGitRepo is returned when the project is not a git working tree.
	ErrNotGitRepo = errors.New("not a git repository")
)

// State is the loop's mutable state, created at start and discarded at
// exit.
type State struct {
	// Iteration counts finished logical iterations.
	Iteration              int
	ProviderIndex          int
	VerificationFailures   int
	JustFailedVerification bool
	// Tokens is the sum of every session's peak estimate.
	Tokens int

	// Resuming is set when the next pass continues the current logical
	// iteration after a QUESTION.
	Resuming bool
	// Questions counts QUESTION pauses in the current logical iteration.
	Questions int
}

// Result contains the outcome of a loop execution.
type Result struct {
	Reason      ExitReason
	Iterations  int
	State       State
	ArchivePath string
}

// Repo is the version control the loop commits through.
type Repo interface {
	IsRepo(ctx context.Context) bool
	CommitAll(ctx context.Context, message string) (bool, error)
	CreateBranch(ctx context.Context, name string) error
}

// Asker puts an agent's question to the operator.
type Asker interface {
	Ask(ctx context.Context, question string, timeout time.Duration) (string, bool, error)
}

// RunOptions configures Run. Zero values fall back to the task header,
// .ralph/config.yaml and the package defaults, in that order.
type RunOptions struct {
	ProjectDir string

	MaxIterations   int
	WarnThreshold   int
	RotateThreshold int
	Timeout         time.Duration
	// Once stops after a single logical iteration.
	Once bool
	// Branch is created or checked out before the first session.
	Branch string

	Config    *config.Config
	Providers []provider.Provider
	Runner    session.Runner
	Repo      Repo
	Console   *console.Console
	Asker     Asker
	Tokenizer tokenizer.Counter
	Tracer    trace.Tracer
	Logger    *logging.Logger
}

// Controller runs the iteration state machine for one project.
type Controller struct {
	opts     RunOptions
	cfg      *config.Config
	store    *state.Store
	rotation *provider.Rotation
	runner   session.Runner
	repo     Repo
	console  *console.Console
	asker    Asker
	counter  tokenizer.Counter
	tracer   trace.Tracer
	log      *logging.Logger

	taskPath      string
	lastTask      *task.Task
	maxIterations int
	warn          int
	rotate        int
	timeout       time.Duration
	history       []state.History
}

// Run loads the task in opts.ProjectDir and iterates until it is verified,
// a limit is reached or a fatal error occurs. Fatal errors (a malformed
// task, no available provider, verifier reuse, cancellation) are returned
// alongside the partial result.
func Run(ctx context.Context, opts RunOptions) (*Result, error) {
	c, err := NewController(opts)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx)
}

// NewController resolves opts into a Controller.
func NewController(opts RunOptions) (*Controller, error) {
	dir, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	opts.ProjectDir = dir

	c := &Controller{
		opts:     opts,
		cfg:      opts.Config,
		store:    state.NewStore(dir),
		runner:   opts.Runner,
		repo:     opts.Repo,
		console:  opts.Console,
		asker:    opts.Asker,
		counter:  opts.Tokenizer,
		tracer:   opts.Tracer,
		log:      opts.Logger,
		taskPath: task.PathIn(dir),
	}

	if c.cfg == nil {
		if c.cfg, err = config.LoadConfig(dir); err != nil {
			return nil, err
		}
	}
	if c.log == nil {
		c.log = logging.Default()
	}
	if c.console == nil {
		c.console = console.Discard()
	}
	if c.asker == nil {
		c.asker = c.console
	}
	if c.counter == nil {
		c.counter = tokenizer.New(c.cfg.Tokenizer)
	}
	if c.tracer == nil {
		c.tracer = telemetry.Tracer(nil)
	}
	if c.repo == nil {
		repo := git.Open(dir)
		repo.Logger = c.log
		c.repo = repo
	}

	providers := opts.Providers
	if providers == nil {
		if providers, err = provider.FromNames(c.cfg.Providers); err != nil {
			return nil, err
		}
	}
	c.rotation = provider.NewRotation(providers)

	if c.runner == nil {
		env, err := config.LoadEnvFile(dir)
		if err != nil {
			return nil, err
		}
		r := session.NewProcessRunner()
		r.Env = env
		r.Activity = c.store
		r.Tracer = c.tracer
		r.Logger = c.log
		c.runner = r
	}

	l := c.cfg.Limits
	c.warn = firstPositive(opts.WarnThreshold, l.WarnThreshold)
	c.rotate = firstPositive(opts.RotateThreshold, l.RotateThreshold)
	if c.warn > c.rotate {
		c.warn = c.rotate
	}
	c.timeout = opts.Timeout
	if c.timeout <= 0 {
		c.timeout = l.Timeout()
	}

	return c, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// Run executes the iteration loop until an exit condition is met.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	st := &State{}

	tk, err := task.Load(c.taskPath)
	if err != nil {
		return nil, err
	}
	c.lastTask = tk
	c.maxIterations = c.resolveMaxIterations(tk)

	if err := c.store.Init(); err != nil {
		return nil, err
	}

	if tk.IsComplete() {
		_, total := tk.CountCriteria()
		c.console.Success("All %d criteria of %q are already complete", total, tk.Title())
		return c.result(st, ExitReasonAlreadyComplete, ""), nil
	}

	if err := c.prepareRepo(ctx); err != nil {
		return nil, err
	}

	if _, err := c.rotation.Current(); err != nil {
		return nil, err
	}
	c.log.Info("loop starting",
		"task", tk.Title(),
		"max_iterations", c.maxIterations,
		"providers", c.rotation.Len(),
		"available", c.rotation.AvailableCount())

	for st.Iteration < c.maxIterations {
		if ctx.Err() != nil {
			return c.interrupted(st), ctx.Err()
		}
		if c.opts.Once && st.Iteration >= 1 && !st.Resuming {
			return c.stop(ctx, st, ExitReasonOnce), nil
		}

		reason, archived, err := c.iterate(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				return c.interrupted(st), err
			}
			return c.result(st, ExitReasonUnknown, ""), err
		}
		switch reason {
		case ExitReasonVerified:
			return c.result(st, reason, archived), nil
		case ExitReasonUnknown:
		default:
			return c.stop(ctx, st, reason), nil
		}
	}

	if c.opts.Once {
		return c.stop(ctx, st, ExitReasonOnce), nil
	}
	c.console.Warn("Reached the iteration limit (%d) without completing the task", c.maxIterations)
	return c.stop(ctx, st, ExitReasonMaxIterations), nil
}

func (c *Controller) resolveMaxIterations(tk *task.Task) int {
	if c.opts.MaxIterations > 0 {
		return c.opts.MaxIterations
	}
	if tk.HasMaxIterations() {
		return tk.MaxIterations()
	}
	return c.cfg.Limits.MaxIterations
}

func (c *Controller) prepareRepo(ctx context.Context) error {
	if !c.repo.IsRepo(ctx) {
		return fmt.Errorf("%w: %s", ErrNotGitRepo, c.opts.ProjectDir)
	}
	if committed, err := c.repo.CommitAll(ctx, "ralph: initial commit before loop"); err != nil {
		return fmt.Errorf("failed to commit existing changes: %w", err)
	} else if committed {
		c.console.Detail("Committed existing changes before starting")
	}
	if c.opts.Branch != "" {
		if err := c.repo.CreateBranch(ctx, c.opts.Branch); err != nil {
			return err
		}
		c.console.Info("Working on branch %s", c.opts.Branch)
	}
	return nil
}

// iterate runs one pass: a work session and, when it earns one, a
// verification session. A non-zero reason ends the loop.
func (c *Controller) iterate(ctx context.Context, st *State) (ExitReason, string, error) {
	n := st.Iteration + 1
	resumed := st.Resuming
	st.Resuming = false

	if !resumed {
		st.Questions = 0
		if err := c.store.ClearExchange(); err != nil {
			c.log.Warn("failed to clear question files", "error", err)
		}
		if _, err := c.store.CompressProgress(c.cfg.Progress.MaxLines, c.cfg.Progress.KeepLines); err != nil {
			c.log.Warn("failed to compress progress", "error", err)
		}
	}

	p, err := c.rotation.Current()
	if err != nil {
		return ExitReasonUnknown, "", err
	}
	st.ProviderIndex = c.rotation.Index()

	tk := c.loadTask(n)

	ctx, span := c.tracer.Start(ctx, "loop.iteration", trace.WithAttributes(
		attribute.Int("iteration", n),
		attribute.String("provider", p.DisplayName()),
		attribute.Bool("resumed", resumed),
	))
	defer span.End()

	data := newPromptData(tk, n, c.maxIterations)
	data.Resumed = resumed
	data.HasAnswer = resumed && c.store.HasAnswer()
	data.LastVerificationFailed = st.JustFailedVerification
	prompt, err := IterationPrompt(data)
	if err != nil {
		return ExitReasonUnknown, "", err
	}

	if resumed {
		c.console.Info("Resuming iteration %d on %s", n, p.DisplayName())
	} else {
		c.console.Iteration(n, c.maxIterations, p.DisplayName())
	}
	_ = c.store.LogProgress(fmt.Sprintf("**Session %d started** (provider: %s)", n, p.DisplayName()))

	res, err := c.runSession(ctx, st, p, prompt)
	if err != nil {
		span.RecordError(err)
		return ExitReasonUnknown, "", err
	}
	span.SetAttributes(attribute.String("signal", res.Signal.String()), attribute.Int("tokens", res.Tokens))

	after, loadErr := task.Load(c.taskPath)
	if loadErr == nil {
		c.lastTask = after
	} else {
		after = tk
	}

	needRotate := res.RotateThresholdHit
	if needRotate {
		c.console.Warn("Token estimate ~%d reached the rotate threshold (%d)", res.Tokens, c.rotate)
	}
	counted := true

	switch {
	case loadErr != nil:
		c.recordError(fmt.Sprintf("Iteration %d: task file unreadable after session: %v", n, loadErr))
		c.console.Error("RALPH_TASK.md could not be parsed: %v", loadErr)
		needRotate = true

	case res.Signal == signal.None:
		reason := describeFailure(res)
		c.recordError(fmt.Sprintf("Iteration %d (%s): %s", n, p.DisplayName(), reason))
		c.console.Warn("%s: %s", p.DisplayName(), reason)
		needRotate = true

	case res.Signal == signal.Gutter:
		c.recordError(fmt.Sprintf("Iteration %d (%s): GUTTER", n, p.DisplayName()))
		c.console.Warn("%s is stuck (GUTTER)", p.DisplayName())
		needRotate = true

	case res.Signal == signal.Question:
		resume, err := c.handleQuestion(ctx, st)
		if err != nil {
			return ExitReasonUnknown, "", err
		}
		if resume {
			counted = false
			st.Resuming = true
		}

	case res.Signal == signal.Rotate:
		c.console.Info("%s asked for a fresh context", p.DisplayName())
		needRotate = true

	case res.Signal == signal.Complete:
		done, total := after.CountCriteria()
		switch {
		case !after.IsComplete():
			c.console.Info("Completion claimed with %d/%d criteria checked; continuing", done, total)
			c.log.Info("ignoring premature completion", "done", done, "total", total)
		case st.JustFailedVerification:
			st.JustFailedVerification = false
			c.console.Info("Completion claimed again after a failed verification; continuing")
		default:
			st.Iteration++
			c.recordHistory(st, p, res, after, false)
			c.endSession(n, res)
			return c.verify(ctx, st, after)
		}

	default:
		c.log.Info("ignoring verification marker outside verification", "signal", res.Signal)
	}

	if counted {
		st.Iteration++
		c.recordHistory(st, p, res, after, false)
		if DetectStuck(c.history, c.cfg.Limits.NoProgressThreshold) {
			c.console.Warn("No criteria completed in the last %d iterations", c.cfg.Limits.NoProgressThreshold)
			c.recordError(fmt.Sprintf("Iteration %d: no progress for %d iterations", n, c.cfg.Limits.NoProgressThreshold))
			needRotate = true
		}
	}
	c.endSession(n, res)

	if needRotate {
		if err := c.rotateProvider(st); err != nil {
			return ExitReasonUnknown, "", err
		}
	}
	return ExitReasonUnknown, "", nil
}

func (c *Controller) loadTask(n int) *task.Task {
	tk, err := task.Load(c.taskPath)
	if err != nil {
		c.recordError(fmt.Sprintf("Iteration %d: task file unreadable: %v", n, err))
		return c.lastTask
	}
	c.lastTask = tk
	return tk
}

func (c *Controller) runSession(ctx context.Context, st *State, p provider.Provider, prompt string) (*session.Result, error) {
	res, err := c.runner.Run(ctx, session.Request{
		Provider:        p,
		Prompt:          prompt,
		Workspace:       c.opts.ProjectDir,
		Timeout:         c.timeout,
		PromptTokens:    c.counter.Count(prompt),
		WarnThreshold:   c.warn,
		RotateThreshold: c.rotate,
		OnSignal: func(sig signal.Signal, _ string) {
			c.console.Detail("signal: %s", sig)
		},
		OnWarn: func(total int) {
			c.console.Warn("Context is filling up (~%d tokens)", total)
		},
	})
	if err != nil {
		return nil, err
	}
	st.Tokens += res.Tokens

	health := signal.NewTracker(res.Tokens, 0, c.rotate).Health()
	c.console.Tokens(res.Tokens, c.rotate, health)
	return res, nil
}

func (c *Controller) endSession(n int, res *session.Result) {
	msg := fmt.Sprintf("**Session %d ended** - %s", n, res.Signal)
	if res.Failed() {
		msg += " (" + describeFailure(res) + ")"
	}
	_ = c.store.LogProgress(msg)
}

// handleQuestion shows the agent's question and waits for an answer. It
// reports whether the logical iteration should be resumed.
func (c *Controller) handleQuestion(ctx context.Context, st *State) (bool, error) {
	limit := c.cfg.Limits.MaxQuestionsPerIteration
	if st.Questions >= limit {
		c.console.Warn("Question limit (%d) reached for this iteration; continuing without asking", limit)
		return false, nil
	}
	st.Questions++

	q, ok, err := c.store.ReadQuestion()
	if err != nil {
		c.log.Warn("failed to read question", "error", err)
	}
	if !ok {
		q = "(the agent signalled a question but .ralph/question.md is empty)"
	}
	_ = c.store.LogActivity("QUESTION: " + firstLine(q))

	answer, answered, err := c.asker.Ask(ctx, q, c.cfg.Limits.QuestionTimeout())
	if err != nil {
		return false, err
	}
	if answered && strings.TrimSpace(answer) != "" {
		if err := c.store.WriteAnswer(answer); err != nil {
			return false, err
		}
		_ = c.store.LogActivity("ANSWER: " + firstLine(answer))
	} else {
		if err := c.store.RemoveAnswer(); err != nil {
			c.log.Warn("failed to remove stale answer", "error", err)
		}
		_ = c.store.LogActivity("ANSWER: none")
	}
	return true, nil
}

func (c *Controller) rotateProvider(st *State) error {
	from := c.rotation.Index()
	p, err := c.rotation.Rotate()
	if err != nil {
		return err
	}
	st.ProviderIndex = c.rotation.Index()
	if st.ProviderIndex != from {
		c.console.Detail("Rotating to %s", p.DisplayName())
		_ = c.store.LogActivity("ROTATE: " + p.DisplayName())
	}
	return nil
}

func (c *Controller) recordHistory(st *State, p provider.Provider, res *session.Result, tk *task.Task, verification bool) {
	done, total := tk.CountCriteria()
	entry := state.History{
		Iteration:     st.Iteration,
		Provider:      p.DisplayName(),
		Signal:        res.Signal.String(),
		CriteriaDone:  done,
		CriteriaTotal: total,
		Tokens:        res.Tokens,
		Verification:  verification,
	}
	if !verification {
		c.history = append(c.history, entry)
	}
	if err := c.store.AppendHistory(entry); err != nil {
		c.log.Warn("failed to record history", "error", err)
	}
}

func (c *Controller) recordError(msg string) {
	c.log.Warn(msg)
	if err := c.store.LogError(msg); err != nil {
		c.log.Debug("failed to write error log", "error", err)
	}
}

// stop commits whatever the agents left behind and builds the result.
func (c *Controller) stop(ctx context.Context, st *State, reason ExitReason) *Result {
	msg := fmt.Sprintf("ralph: checkpoint after %d iteration(s) (%s)", st.Iteration, reason)
	if _, err := c.repo.CommitAll(ctx, msg); err != nil {
		c.log.Warn("failed to commit checkpoint", "error", err)
	}
	return c.result(st, reason, "")
}

func (c *Controller) interrupted(st *State) *Result {
	c.console.Warn("Interrupted; committing progress")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	msg := fmt.Sprintf("ralph: interrupted during iteration %d", st.Iteration+1)
	if _, err := c.repo.CommitAll(ctx, msg); err != nil {
		c.log.Warn("failed to commit after interrupt", "error", err)
	}
	return c.result(st, ExitReasonInterrupted, "")
}

func (c *Controller) result(st *State, reason ExitReason, archived string) *Result {
	return &Result{
		Reason:      reason,
		Iterations:  st.Iteration,
		State:       *st,
		ArchivePath: archived,
	}
}

func describeFailure(res *session.Result) string {
	switch {
	case res.TimedOut:
		return "timed out"
	case res.Crashed && res.ExitCode < 0:
		return "failed to start"
	case res.Crashed:
		return fmt.Sprintf("exited with code %d", res.ExitCode)
	default:
		return "ended without a signal"
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func markSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
