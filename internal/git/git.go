// Package git wraps the handful of git operations the loop needs. Commits
// are the only memory carried between agent sessions, so mutating commands
// are retried with exponential backoff to ride out index.lock contention.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/thruflo/ralph/internal/logging"
)

// MaxAttempts is how many times a mutating command is tried.
const MaxAttempts = 3

// ErrGitNotFound is returned when the git binary is not on PATH.
var ErrGitNotFound = errors.New("git executable not found")

// Repo runs git commands in a working tree.
type Repo struct {
	Dir string

	// NewBackOff builds the retry policy for each mutating command.
	NewBackOff func() backoff.BackOff
	Logger     *logging.Logger
}

// Open returns a Repo for dir. It does not check that dir is a repository.
func Open(dir string) *Repo {
	return &Repo{Dir: dir, NewBackOff: defaultBackOff}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return backoff.WithMaxRetries(b, MaxAttempts-1)
}

// CommandError is a failed git invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, out)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsRepo reports whether Dir is inside a git working tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	_, err := r.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// HasChanges reports whether the working tree has uncommitted changes,
// including untracked files.
func (r *Repo) HasChanges(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitAll stages everything and commits with message. It reports false
// without error when there was nothing to commit.
func (r *Repo) CommitAll(ctx context.Context, message string) (bool, error) {
	changed, err := r.HasChanges(ctx)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	if _, err := r.retry(ctx, "add", "-A"); err != nil {
		return false, fmt.Errorf("failed to stage changes: %w", err)
	}
	if _, err := r.retry(ctx, "commit", "-m", message); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	r.logger().Debug("committed changes", "message", message)
	return true, nil
}

// CreateBranch creates and checks out name, or checks it out if it
// already exists.
func (r *Repo) CreateBranch(ctx context.Context, name string) error {
	if _, err := r.run(ctx, "checkout", "-b", name); err == nil {
		return nil
	} else if errors.Is(err, ErrGitNotFound) {
		return err
	}
	if _, err := r.retry(ctx, "checkout", name); err != nil {
		return fmt.Errorf("failed to check out branch %s: %w", name, err)
	}
	return nil
}

// CurrentBranch returns the checked-out branch name, including a branch
// with no commits yet. A detached HEAD yields "HEAD".
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	if out, err := r.run(ctx, "symbolic-ref", "--short", "-q", "HEAD"); err == nil {
		return strings.TrimSpace(out), nil
	}
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *Repo) retry(ctx context.Context, args ...string) (string, error) {
	newBackOff := r.NewBackOff
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}

	var out string
	attempt := 0
	op := func() error {
		attempt++
		var err error
		out, err = r.run(ctx, args...)
		if errors.Is(err, ErrGitNotFound) {
			return backoff.Permanent(err)
		}
		if err != nil && attempt < MaxAttempts {
			r.logger().Debug("git command failed, retrying",
				"args", strings.Join(args, " "), "attempt", attempt, "error", err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(newBackOff(), ctx))
	return out, err
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.Dir}, args...)...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrGitNotFound
		}
		return buf.String(), &CommandError{Args: args, Output: buf.String(), Err: err}
	}
	return buf.String(), nil
}

func (r *Repo) logger() *logging.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logging.Default()
}
