package model

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/one-chat/one-chat/common"
)

const (
	busyRetryAttempts  = 5
	busyRetryBaseDelay = 20 * time.Millisecond
)

// busyMarkers are the lowercase driver messages for a locked SQLite file.
var busyMarkers = []string{
	"database is locked",
	"database table is locked",
	"database is busy",
	"sqlite_busy",
}

// withBusyRetry runs op and, on SQLite only, retries it with linear backoff
// while the driver reports a lock. Other backends run op exactly once.
func withBusyRetry(ctx context.Context, op func() error) error {
	if !common.UsingSQLite.Load() {
		return op()
	}

	err := op()
	for attempt := 1; attempt <= busyRetryAttempts && isBusy(err); attempt++ {
		timer := time.NewTimer(time.Duration(attempt) * busyRetryBaseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(err, "context canceled while waiting for SQLite lock")
		case <-timer.C:
		}
		err = op()
	}

	if isBusy(err) {
		return errors.Wrap(err, "SQLite remained busy after retries")
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
