// Package testutil provides shared test utilities for ralph.
//
// # Fixtures
//
//   - SampleTaskDoc, SampleTaskDocComplete, SampleTaskDocNoCriteria - task descriptions
//   - SampleHistory(), SampleHistoryStuck(), SampleHistoryWithProgress() - history entries
//
// # Environment Helpers
//
//   - SetupTestDir(t) - creates a temp project with an initialized .ralph directory
//   - WriteTaskFile(t, dir, content) - writes RALPH_TASK.md
//   - FindProjectRoot(t) - finds the module root
//   - MustMarshalJSON(t, v), MustUnmarshalJSON(t, data, v)
//   - WriteTestFile(t, base, path, content) - writes a file in test dir
//   - ContextWithTestDeadline(t, fallback) - a context that ends before the test deadline
//
// # Assertions
//
//   - AssertCriteriaProgress(t, path, done, total) - checklist counts on disk
//   - AssertHistoryLength(t, history, expected), AssertHistoryProgress(t, history, done)
//   - AssertFileContains(t, path, substr)
//
// # Usage
//
//	func TestSomething(t *testing.T) {
//	    dir, store := testutil.SetupTestDir(t)
//	    path := testutil.WriteTaskFile(t, dir, testutil.SampleTaskDoc)
//	    // ... run test ...
//	    testutil.AssertCriteriaProgress(t, path, 0, 3)
//	}
package testutil
