package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Window — длина фиксированного окна подсчёта запросов по API-ключу.
const Window = time.Hour

// CounterStore — атомарный инкремент счётчика с TTL.
// Идентичность окна зашита в ключ, поэтому rollover — это просто новый ключ:
// потерянных инкрементов при конкурентных вызовах не бывает.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Result — остаток лимита в текущем окне.
type Result struct {
	Remaining int
	ResetAt   time.Time
}

// Error — лимит исчерпан; RetryAfter — остаток текущего окна.
type Error struct {
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Limiter применяется только к вызовам по API-ключу; браузерный
// трафик по сессии не тарифицируется.
type Limiter struct {
	counters CounterStore
	now      func() time.Time
}

func NewLimiter(counters CounterStore) *Limiter {
	return &Limiter{counters: counters, now: func() time.Time { return time.Now().UTC() }}
}

// CheckAndIncrement инкрементирует счётчик окна (accountID, windowStart)
// и сверяет с лимитом тарифа. limit < 0 — без ограничений.
func (l *Limiter) CheckAndIncrement(ctx context.Context, accountID string, limit int) (*Result, error) {
	if limit < 0 {
		return &Result{Remaining: -1, ResetAt: l.now().Truncate(Window).Add(Window)}, nil
	}

	now := l.now()
	windowStart := now.Truncate(Window)
	resetAt := windowStart.Add(Window)
	key := fmt.Sprintf("ratelimit:%s:%d", accountID, windowStart.Unix())

	n, err := l.counters.Incr(ctx, key, Window)
	if err != nil {
		return nil, fmt.Errorf("rate counter incr: %w", err)
	}
	if n > int64(limit) {
		return nil, &Error{RetryAfter: resetAt.Sub(now)}
	}
	return &Result{Remaining: limit - int(n), ResetAt: resetAt}, nil
}
