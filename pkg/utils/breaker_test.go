package utils

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecuteWithBreaker_ReturnsValue(t *testing.T) {
	cb := NewBreaker("test", zap.NewNop())

	res, err := ExecuteWithBreaker(cb, func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", res)
}

func TestExecuteWithBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewBreaker("test", zap.NewNop())
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		_, err := ExecuteWithBreaker(cb, func() (int, error) {
			return 0, boom
		})
		require.ErrorIs(t, err, boom)
	}

	_, err := ExecuteWithBreaker(cb, func() (int, error) {
		return 1, nil
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, gobreaker.StateOpen, cb.State())
}
