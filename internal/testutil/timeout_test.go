package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithTestDeadline_UsesAtMostFallback(t *testing.T) {
	ctx, cancel := ContextWithTestDeadline(t, 2*time.Second)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.LessOrEqual(t, time.Until(deadline), 2*time.Second)
}

func TestContextWithTestDeadlineBuffer_Cancellation(t *testing.T) {
	ctx, cancel := ContextWithTestDeadlineBuffer(t, time.Minute, time.Second)
	cancel()

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
}
