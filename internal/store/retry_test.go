package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRetryableError(t *testing.T) {
	require.True(t, isRetryableError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.True(t, isRetryableError(errors.New("SQLITE_BUSY: cannot start transaction")))
	require.False(t, isRetryableError(errors.New("UNIQUE constraint failed: tasks.command_id")))
	require.False(t, isRetryableError(errors.New("task not found")))
}

func TestRetryWithBackoff_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(func() error {
		calls++
		return errors.New("UNIQUE constraint failed")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryWithBackoff_RetriesBusy(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}
