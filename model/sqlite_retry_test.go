package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/one-chat/one-chat/common"
)

func useSQLiteFlag(t *testing.T, on bool) {
	t.Helper()
	prev := common.UsingSQLite.Load()
	common.UsingSQLite.Store(on)
	t.Cleanup(func() { common.UsingSQLite.Store(prev) })
}

func TestWithBusyRetryEventuallySucceeds(t *testing.T) {
	useSQLiteFlag(t, true)

	attempts := 0
	err := withBusyRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWithBusyRetryGivesUp(t *testing.T) {
	useSQLiteFlag(t, true)

	attempts := 0
	err := withBusyRetry(context.Background(), func() error {
		attempts++
		return errors.New("SQLITE_BUSY: database is busy")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "remained busy")
	require.Equal(t, busyRetryAttempts+1, attempts)
}

func TestWithBusyRetryHonorsContext(t *testing.T) {
	useSQLiteFlag(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(busyRetryBaseDelay / 2)
		cancel()
	}()

	err := withBusyRetry(ctx, func() error { return errors.New("database is locked") })
	require.Error(t, err)
	require.Contains(t, err.Error(), "context canceled")
}

func TestWithBusyRetryOnlyOnSQLite(t *testing.T) {
	useSQLiteFlag(t, false)

	attempts := 0
	err := withBusyRetry(context.Background(), func() error {
		attempts++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestWithBusyRetryPassesOtherErrors(t *testing.T) {
	useSQLiteFlag(t, true)

	attempts := 0
	err := withBusyRetry(context.Background(), func() error {
		attempts++
		return errors.New("UNIQUE constraint failed")
	})
	require.EqualError(t, err, "UNIQUE constraint failed")
	require.Equal(t, 1, attempts)
}
