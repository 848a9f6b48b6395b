package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) *Repo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "ralph@example.com"},
		{"config", "user.name", "Ralph Test"},
		{"config", "commit.gpgsign", "false"},
	} {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	r := Open(dir)
	r.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), MaxAttempts-1)
	}
	return r
}

func TestIsRepo(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	assert.True(t, r.IsRepo(ctx))
	assert.False(t, Open(t.TempDir()).IsRepo(ctx))
}

func TestCommitAll(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	changed, err := r.HasChanges(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	committed, err := r.CommitAll(ctx, "nothing")
	require.NoError(t, err)
	assert.False(t, committed, "nothing to commit is not an error")

	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "a.txt"), []byte("a"), 0o644))
	changed, err = r.HasChanges(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	committed, err = r.CommitAll(ctx, "ralph: first")
	require.NoError(t, err)
	assert.True(t, committed)

	changed, err = r.HasChanges(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	out, err := r.run(ctx, "log", "--format=%s")
	require.NoError(t, err)
	assert.Equal(t, "ralph: first", strings.TrimSpace(out))
}

func TestCreateBranch(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "a.txt"), []byte("a"), 0o644))
	_, err := r.CommitAll(ctx, "initial")
	require.NoError(t, err)
	base, err := r.CurrentBranch(ctx)
	require.NoError(t, err)

	require.NoError(t, r.CreateBranch(ctx, "ralph/feature"))
	branch, err := r.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ralph/feature", branch)

	// Switching back to an existing branch checks it out.
	require.NoError(t, r.CreateBranch(ctx, base))
	branch, err = r.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, base, branch)
}

func TestCurrentBranchBeforeFirstCommit(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateBranch(ctx, "ralph/empty"))
	branch, err := r.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ralph/empty", branch)
}

func TestRetryGivesUp(t *testing.T) {
	r := initRepo(t)
	attempts := 0
	r.NewBackOff = func() backoff.BackOff {
		attempts++
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), MaxAttempts-1)
	}

	_, err := r.retry(context.Background(), "checkout", "does-not-exist")
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, []string{"checkout", "does-not-exist"}, cmdErr.Args)
	assert.Equal(t, 1, attempts)
}
