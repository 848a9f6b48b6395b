// Package loop drives agent sessions against RALPH_TASK.md until its
// checklist is done and an independent verifier agrees.
//
// Each pass runs one session on the current provider and acts on the
// signal it ended with:
//   - a session over the token budget, a timeout, a crash, GUTTER and
//     ROTATE move to the next provider (at most once per iteration)
//   - QUESTION waits for an operator answer and resumes the same iteration
//   - COMPLETE with every criterion checked starts verification on a
//     different provider, unless the previous verification just failed
//
// The loop ends on VERIFY_PASS (the task is archived), when the iteration
// limit is reached, when verification has failed too often (completed
// with a warning) or when no provider is available.
//
// DetectStuck and ProgressRate summarise iteration history for the
// no-progress check and for status output.
package loop
