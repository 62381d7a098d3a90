package graceful

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDrainWaitsForCriticalTasks(t *testing.T) {
	var finished atomic.Bool
	var taskErr atomic.Value
	release := make(chan struct{})

	reqCtx, cancel := context.WithCancel(context.Background())
	GoCritical(reqCtx, "persist", func(ctx context.Context) {
		<-release
		if ctx.Err() != nil {
			taskErr.Store(ctx.Err())
		}
		finished.Store(true)
	})
	// request context going away must not cancel the task
	cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	require.NoError(t, Drain(ctx))
	require.True(t, finished.Load())
	require.Nil(t, taskErr.Load())
	require.Zero(t, PendingTasks())
}

func TestDrainTimesOutOnInFlightRequest(t *testing.T) {
	end := BeginRequest()
	defer end()

	ctx, stop := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer stop()
	require.ErrorIs(t, Drain(ctx), context.DeadlineExceeded)
	require.EqualValues(t, 1, InFlightRequests())
}
