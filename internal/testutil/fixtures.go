package testutil

import "github.com/thruflo/ralph/internal/state"

// SampleTaskDoc is a task description with no criteria done.
const SampleTaskDoc = `---
task: Build a CLI todo app
completion_criteria:
  - Add command works
  - List command works
  - Tests pass
max_iterations: 5
test_command: "go test ./..."
---

# Build a CLI todo app

Implement add and list commands backed by a JSON file.

## Success criteria

- [ ] Add command works
- [ ] List command works
- [ ] Tests pass
`

// SampleTaskDocComplete is SampleTaskDoc with every criterion done.
const SampleTaskDocComplete = `---
task: Build a CLI todo app
completion_criteria:
  - Add command works
  - List command works
  - Tests pass
max_iterations: 5
test_command: "go test ./..."
---

# Build a CLI todo app

Implement add and list commands backed by a JSON file.

## Success criteria

- [x] Add command works
- [x] List command works
- [x] Tests pass
`

// SampleTaskDocNoCriteria has a header but no checklist, so it can never
// be complete.
const SampleTaskDocNoCriteria = `---
task: Explore the codebase
---

# Explore the codebase

Write notes to .ralph/progress.md.
`

// SampleHistory returns a slice of history entries showing progress.
// Returns a new slice each time to prevent test interference.
func SampleHistory() []state.History {
	return []state.History{
		{Iteration: 1, Provider: "Cursor Agent", Signal: "NONE", CriteriaDone: 1, CriteriaTotal: 3},
		{Iteration: 2, Provider: "Claude Code", Signal: "ROTATE", CriteriaDone: 2, CriteriaTotal: 3},
		{Iteration: 3, Provider: "Gemini CLI", Signal: "COMPLETE", CriteriaDone: 3, CriteriaTotal: 3},
	}
}

// SampleHistoryStuck returns history entries showing no progress (stuck).
func SampleHistoryStuck() []state.History {
	return []state.History{
		{Iteration: 1, Provider: "Cursor Agent", Signal: "NONE", CriteriaDone: 0, CriteriaTotal: 3},
		{Iteration: 2, Provider: "Claude Code", Signal: "GUTTER", CriteriaDone: 0, CriteriaTotal: 3},
		{Iteration: 3, Provider: "Gemini CLI", Signal: "NONE", CriteriaDone: 0, CriteriaTotal: 3},
	}
}

// SampleHistoryWithProgress returns history showing recent progress.
func SampleHistoryWithProgress() []state.History {
	return []state.History{
		{Iteration: 1, Provider: "Cursor Agent", Signal: "NONE", CriteriaDone: 0, CriteriaTotal: 3},
		{Iteration: 2, Provider: "Claude Code", Signal: "NONE", CriteriaDone: 0, CriteriaTotal: 3},
		{Iteration: 3, Provider: "Gemini CLI", Signal: "ROTATE", CriteriaDone: 1, CriteriaTotal: 3},
	}
}
