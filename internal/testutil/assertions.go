package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/task"
)

// AssertCriteriaProgress reloads the task at path and checks its checklist
// counts.
func AssertCriteriaProgress(t *testing.T, path string, expectedDone, expectedTotal int) {
	t.Helper()
	tk, err := task.Load(path)
	require.NoError(t, err)
	done, total := tk.CountCriteria()
	assert.Equal(t, expectedDone, done, "completed criteria")
	assert.Equal(t, expectedTotal, total, "total criteria")
}

// AssertHistoryLength checks the number of history entries.
func AssertHistoryLength(t *testing.T, history []state.History, expected int) {
	t.Helper()
	assert.Len(t, history, expected, "history length mismatch")
}

// AssertHistoryProgress checks the last history entry's completed count.
func AssertHistoryProgress(t *testing.T, history []state.History, expectedDone int) {
	t.Helper()
	require.NotEmpty(t, history, "history should not be empty")
	last := history[len(history)-1]
	assert.Equal(t, expectedDone, last.CriteriaDone, "last history entry completed count")
}

// AssertFileContains checks that the file at path contains substr.
func AssertFileContains(t *testing.T, path, substr string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), substr)
}
