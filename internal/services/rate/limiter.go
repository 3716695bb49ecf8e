package rate

import (
	"context"
	"fmt"
	"time"
)

const (
	loginMinuteWindow = time.Minute
	login10MinWindow  = 10 * time.Minute
)

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Limiter throttles login attempts per identifier with two fixed windows. A
// zero ceiling disables that window.
type Limiter struct {
	store     WindowStore
	perMinute int
	per10Min  int
}

func NewLimiter(store WindowStore, perMinute, per10Min int) *Limiter {
	if perMinute < 0 {
		perMinute = 0
	}
	if per10Min < 0 {
		per10Min = 0
	}

	return &Limiter{
		store:     store,
		perMinute: perMinute,
		per10Min:  per10Min,
	}
}

func (l *Limiter) AllowLogin(ctx context.Context, key string) (int64, bool, error) {
	if key == "" {
		return 0, false, fmt.Errorf("rate key is required")
	}
	if l.store == nil {
		return 0, false, fmt.Errorf("rate limiter store is nil")
	}

	retryAfterSec := int64(0)

	if l.perMinute > 0 {
		count, ttl, err := l.store.IncrementWindow(ctx, minuteKey(key), loginMinuteWindow)
		if err != nil {
			return 0, false, err
		}
		if count > int64(l.perMinute) {
			retryAfterSec = maxInt64(retryAfterSec, ceilSeconds(ttl))
		}
	}

	if l.per10Min > 0 {
		count, ttl, err := l.store.IncrementWindow(ctx, tenMinKey(key), login10MinWindow)
		if err != nil {
			return 0, false, err
		}
		if count > int64(l.per10Min) {
			retryAfterSec = maxInt64(retryAfterSec, ceilSeconds(ttl))
		}
	}

	if retryAfterSec > 0 {
		return retryAfterSec, false, nil
	}

	return 0, true, nil
}

func minuteKey(key string) string {
	return "rate:login:min:" + key
}

func tenMinKey(key string) string {
	return "rate:login:10m:" + key
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	return sec
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
