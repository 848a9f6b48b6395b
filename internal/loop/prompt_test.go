package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/task"
	"github.com/thruflo/ralph/internal/testutil"
)

func sampleTask(t *testing.T) *task.Task {
	t.Helper()
	tk, err := task.Parse("RALPH_TASK.md", []byte(testutil.SampleTaskDoc))
	require.NoError(t, err)
	return tk
}

func TestIterationPrompt(t *testing.T) {
	t.Parallel()

	d := newPromptData(sampleTask(t), 2, 5)
	out, err := IterationPrompt(d)
	require.NoError(t, err)

	assert.Contains(t, out, "# Ralph Iteration 2 of 5")
	assert.Contains(t, out, "Build a CLI todo app")
	assert.Contains(t, out, "- [ ] Add command works")
	assert.Contains(t, out, "`go test ./...`")
	assert.Contains(t, out, "<ralph>COMPLETE</ralph>")
	assert.Contains(t, out, "<ralph>GUTTER</ralph>")
	assert.NotContains(t, out, "answer.md` - the answer")
	assert.NotContains(t, out, "verifier rejected")
}

func TestIterationPromptResumed(t *testing.T) {
	t.Parallel()

	d := newPromptData(sampleTask(t), 1, 5)
	d.Resumed = true
	out, err := IterationPrompt(d)
	require.NoError(t, err)
	assert.Contains(t, out, "was not answered")

	d.HasAnswer = true
	out, err = IterationPrompt(d)
	require.NoError(t, err)
	assert.Contains(t, out, "Read `.ralph/answer.md`")
	assert.NotContains(t, out, "was not answered")
}

func TestIterationPromptAfterFailedVerification(t *testing.T) {
	t.Parallel()

	d := newPromptData(sampleTask(t), 4, 5)
	d.LastVerificationFailed = true
	out, err := IterationPrompt(d)
	require.NoError(t, err)
	assert.Contains(t, out, "verifier rejected")
}

func TestVerificationPrompt(t *testing.T) {
	t.Parallel()

	out, err := VerificationPrompt(newPromptData(sampleTask(t), 3, 5))
	require.NoError(t, err)
	assert.Contains(t, out, "# Ralph Verification - Iteration 3")
	assert.Contains(t, out, `"Build a CLI todo app"`)
	assert.Contains(t, out, "<ralph>VERIFY_PASS</ralph>")
	assert.Contains(t, out, "<ralph>VERIFY_FAIL</ralph>")
	assert.NotContains(t, out, "<ralph>COMPLETE</ralph>")
}
