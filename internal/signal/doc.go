// Package signal detects the control markers an agent prints to steer the
// loop and keeps a running estimate of the context tokens a session has
// consumed.
//
// A Scanner is an io.Writer: raw process output is written to it in
// arbitrary chunks, it assembles complete lines, decodes each one with a
// provider-specific Decoder and matches markers against the decoded agent
// text only. Because matching happens on complete lines, a marker split
// across two reads is never reported early or half-matched.
//
// Markers use the form <ralph>NAME</ralph>:
//
//	COMPLETE     all criteria are done (terminal)
//	GUTTER       the agent is stuck (terminal)
//	VERIFY_PASS  verification succeeded (terminal)
//	VERIFY_FAIL  verification failed (terminal)
//	QUESTION     the agent wrote .ralph/question.md
//	ROTATE       the agent wants a fresh context; RALPH_ROTATE is also accepted
package signal
