// Package ratelimit implements the per-user sliding-window admission ledger.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Ledger admits or rejects one request for key. A rejected request is not recorded.
type Ledger interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory keeps request timestamps in process. It is safe for concurrent use.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	store map[string][]time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:  limit,
		window: window,
		now:    time.Now,
		store:  make(map[string][]time.Time),
	}
}

// Allow prunes timestamps older than the window, then records now if there is room.
func (l *Memory) Allow(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := prune(l.store[key], now.Add(-l.window))
	if len(kept) >= l.limit {
		l.store[key] = kept
		return false, nil
	}
	l.store[key] = append(kept, now)
	return true, nil
}

// Sweep drops keys with no timestamps left in the window.
func (l *Memory) Sweep() {
	cutoff := l.now().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, stamps := range l.store {
		if kept := prune(stamps, cutoff); len(kept) == 0 {
			delete(l.store, key)
		} else {
			l.store[key] = kept
		}
	}
}

// StartJanitor sweeps every interval until ctx is done.
func (l *Memory) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

func (l *Memory) keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.store)
}

// prune keeps timestamps strictly after cutoff. stamps are in ascending order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}
