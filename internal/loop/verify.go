package loop

import (
	"context"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/thruflo/ralph/internal/signal"
	"github.com/thruflo/ralph/internal/task"
)

// verify hands a task that claims completion to a different provider. A
// pass archives the task; a fail resumes work unless the failure budget is
// spent. The verification session does not count as an iteration.
func (c *Controller) verify(ctx context.Context, st *State, tk *task.Task) (ExitReason, string, error) {
	claimant := c.rotation.Index()
	available := c.rotation.AvailableCount()
	verifier, err := c.rotation.Rotate()
	if err != nil {
		return ExitReasonUnknown, "", err
	}
	// With one installed provider it verifies its own claim.
	if c.rotation.Index() == claimant && available > 1 {
		return ExitReasonUnknown, "", ErrVerifierReuse
	}
	st.ProviderIndex = c.rotation.Index()

	ctx, span := c.tracer.Start(ctx, "loop.verify", trace.WithAttributes(
		attribute.Int("iteration", st.Iteration),
		attribute.String("provider", verifier.DisplayName()),
	))
	defer span.End()

	prompt, err := VerificationPrompt(newPromptData(tk, st.Iteration, c.maxIterations))
	if err != nil {
		markSpan(span, err)
		return ExitReasonUnknown, "", err
	}

	c.console.Header("Verifying with %s", verifier.DisplayName())
	_ = c.store.LogProgress(fmt.Sprintf("**Verification started** (provider: %s)", verifier.DisplayName()))

	res, err := c.runSession(ctx, st, verifier, prompt)
	if err != nil {
		markSpan(span, err)
		return ExitReasonUnknown, "", err
	}
	span.SetAttributes(attribute.String("signal", res.Signal.String()))

	if after, err := task.Load(c.taskPath); err == nil {
		tk = after
		c.lastTask = after
	}
	c.recordHistory(st, verifier, res, tk, true)
	_ = c.store.LogProgress(fmt.Sprintf("**Verification ended** - %s", res.Signal))

	if res.Signal == signal.VerifyPass {
		c.console.Success("Verified by %s", verifier.DisplayName())
		archived, err := c.store.Archive(c.taskPath)
		if err != nil {
			markSpan(span, err)
			return ExitReasonUnknown, "", err
		}
		if archived != "" {
			msg := "ralph: archive completed task to " + filepath.Base(archived)
			if _, err := c.repo.CommitAll(ctx, msg); err != nil {
				c.console.Warn("Failed to commit archived task: %v", err)
			}
			c.console.Detail("Archived to %s", archived)
		}
		return ExitReasonVerified, archived, nil
	}

	st.VerificationFailures++
	st.JustFailedVerification = true
	reason := res.Signal.String()
	if res.Failed() {
		reason = describeFailure(res)
	}
	c.recordError(fmt.Sprintf("Verification %d by %s failed: %s", st.VerificationFailures, verifier.DisplayName(), reason))

	limit := tk.MaxVerificationFailures()
	if st.VerificationFailures >= limit {
		c.console.Warn("Verification failed %d times; stopping with the checklist complete but unverified", st.VerificationFailures)
		return ExitReasonCompletedWithWarning, "", nil
	}
	c.console.Warn("Verification failed (%d/%d); resuming work", st.VerificationFailures, limit)

	if res.RotateThresholdHit {
		if err := c.rotateProvider(st); err != nil {
			return ExitReasonUnknown, "", err
		}
	}
	return ExitReasonUnknown, "", nil
}
