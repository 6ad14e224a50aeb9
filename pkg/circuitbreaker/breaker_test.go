package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	s := DefaultSettings("test")
	s.ConsecutiveFailures = 2
	s.OpenTimeout = time.Minute
	cb := New[int](s, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(func() (int, error) { return 0, errBoom })
		require.ErrorIs(t, err, errBoom)
	}

	_, err := cb.Execute(func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestBreaker_IsSuccessfulKeepsBreakerClosed(t *testing.T) {
	errMiss := errors.New("miss")
	s := DefaultSettings("test")
	s.ConsecutiveFailures = 1
	s.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errMiss) }
	cb := New[string](s, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(func() (string, error) { return "", errMiss })
		require.ErrorIs(t, err, errMiss)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
