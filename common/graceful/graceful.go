package graceful

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laisky/zap"

	"github.com/one-chat/one-chat/common/logger"
)

// Lifecycle manager for graceful shutdown: counts in-flight requests and
// tracks background tasks (conversation persistence) that must finish.

var (
	inFlightRequests atomic.Int64
	pendingTasks     atomic.Int64
	draining         atomic.Bool

	wg sync.WaitGroup
)

// BeginRequest increments the in-flight request counter and returns the matching decrement.
func BeginRequest() func() {
	inFlightRequests.Add(1)
	return func() { inFlightRequests.Add(-1) }
}

// GoCritical runs fn in a tracked goroutine. Drain waits for it.
// The task receives a context detached from the request so a client disconnect
// does not abort it.
func GoCritical(ctx context.Context, name string, fn func(context.Context)) {
	pendingTasks.Add(1)
	taskCtx := context.WithoutCancel(ctx)
	wg.Go(func() {
		defer pendingTasks.Add(-1)
		start := time.Now()
		logger.Logger.Debug("critical task start", zap.String("name", name))
		fn(taskCtx)
		logger.Logger.Debug("critical task done", zap.String("name", name), zap.Duration("elapsed", time.Since(start)))
	})
}

// PendingTasks reports how many GoCritical tasks have not returned yet.
func PendingTasks() int64 { return pendingTasks.Load() }

// InFlightRequests reports the current request count.
func InFlightRequests() int64 { return inFlightRequests.Load() }

// Drain waits until every tracked task has returned and no request is in flight,
// bounded by ctx.
func Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	tasksDone := false
	for {
		if tasksDone && inFlightRequests.Load() == 0 {
			logger.Logger.Info("graceful drain complete")
			return nil
		}

		select {
		case <-ctx.Done():
			logger.Logger.Error("graceful drain timeout",
				zap.Int64("in_flight_requests", inFlightRequests.Load()),
				zap.Int64("pending_tasks", pendingTasks.Load()))
			return ctx.Err()
		case <-done:
			tasksDone = true
			done = nil
		case <-ticker.C:
			logger.Logger.Debug("draining...",
				zap.Int64("in_flight_requests", inFlightRequests.Load()),
				zap.Int64("pending_tasks", pendingTasks.Load()))
		}
	}
}

// SetDraining flips the draining flag to true.
func SetDraining() { draining.Store(true) }

// IsDraining returns whether the server is currently draining.
func IsDraining() bool { return draining.Load() }
