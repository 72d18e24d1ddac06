package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCheckAndIncrementWithinLimit(t *testing.T) {
	l := NewLimiter(NewMemoryStore())
	l.now = fixedClock(time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC))

	for i := 1; i <= 100; i++ {
		res, err := l.CheckAndIncrement(context.Background(), "acc-1", 100)
		require.NoError(t, err, "запрос %d в пределах лимита", i)
		assert.Equal(t, 100-i, res.Remaining)
	}
}

func TestCheckAndIncrementExceeded(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	l := NewLimiter(NewMemoryStore())
	l.now = fixedClock(now)

	for i := 0; i < 100; i++ {
		_, err := l.CheckAndIncrement(context.Background(), "acc-1", 100)
		require.NoError(t, err)
	}

	_, err := l.CheckAndIncrement(context.Background(), "acc-1", 100)
	require.Error(t, err)

	var rateErr *Error
	require.True(t, errors.As(err, &rateErr))
	// до конца окна 10:30 → 11:00 ровно 30 минут
	assert.Equal(t, 30*time.Minute, rateErr.RetryAfter)
}

// Идентичность окна зашита в ключ: новое окно — новый счётчик с нуля.
func TestWindowRollover(t *testing.T) {
	l := NewLimiter(NewMemoryStore())
	l.now = fixedClock(time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC))

	for i := 0; i < 5; i++ {
		_, err := l.CheckAndIncrement(context.Background(), "acc-1", 5)
		require.NoError(t, err)
	}
	_, err := l.CheckAndIncrement(context.Background(), "acc-1", 5)
	require.Error(t, err)

	l.now = fixedClock(time.Date(2026, 3, 1, 11, 0, 1, 0, time.UTC))
	res, err := l.CheckAndIncrement(context.Background(), "acc-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Remaining)
}

func TestUnlimited(t *testing.T) {
	l := NewLimiter(NewMemoryStore())

	for i := 0; i < 1000; i++ {
		res, err := l.CheckAndIncrement(context.Background(), "acc-1", -1)
		require.NoError(t, err)
		assert.Equal(t, -1, res.Remaining)
	}
}

func TestCountersIsolatedPerAccount(t *testing.T) {
	l := NewLimiter(NewMemoryStore())
	l.now = fixedClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		_, err := l.CheckAndIncrement(context.Background(), "acc-1", 3)
		require.NoError(t, err)
	}
	_, err := l.CheckAndIncrement(context.Background(), "acc-1", 3)
	require.Error(t, err)

	// соседний аккаунт не задет
	res, err := l.CheckAndIncrement(context.Background(), "acc-2", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}
