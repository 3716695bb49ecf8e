package rate_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/KishorKumarParoi/KTube-backend/internal/repo/redis"
	ratesvc "github.com/KishorKumarParoi/KTube-backend/internal/services/rate"
)

func newLimiterForTest(t *testing.T, perMinute, per10Min int) (*ratesvc.Limiter, *miniredis.Miniredis) {
	t.Helper()

	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return ratesvc.NewLimiter(redrepo.NewRateRepo(client), perMinute, per10Min), mini
}

func TestAllowLoginWithinLimit(t *testing.T) {
	limiter, _ := newLimiterForTest(t, 3, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		retryAfter, ok, err := limiter.AllowLogin(ctx, "alice")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if !ok || retryAfter != 0 {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}

	retryAfter, ok, err := limiter.AllowLogin(ctx, "alice")
	if err != nil {
		t.Fatalf("over-limit attempt: %v", err)
	}
	if ok {
		t.Fatalf("fourth attempt must be throttled")
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Fatalf("unexpected retry-after: %d", retryAfter)
	}
}

func TestAllowLoginIsolatesKeys(t *testing.T) {
	limiter, _ := newLimiterForTest(t, 1, 10)
	ctx := context.Background()

	if _, ok, err := limiter.AllowLogin(ctx, "alice"); err != nil || !ok {
		t.Fatalf("first alice attempt: ok=%v err=%v", ok, err)
	}
	if _, ok, err := limiter.AllowLogin(ctx, "alice"); err != nil || ok {
		t.Fatalf("second alice attempt must be throttled: ok=%v err=%v", ok, err)
	}
	if _, ok, err := limiter.AllowLogin(ctx, "bob"); err != nil || !ok {
		t.Fatalf("bob must not share alice's window: ok=%v err=%v", ok, err)
	}
}

func TestAllowLoginWindowExpires(t *testing.T) {
	limiter, mini := newLimiterForTest(t, 1, 0)
	ctx := context.Background()

	if _, ok, err := limiter.AllowLogin(ctx, "alice"); err != nil || !ok {
		t.Fatalf("first attempt: ok=%v err=%v", ok, err)
	}
	if _, ok, err := limiter.AllowLogin(ctx, "alice"); err != nil || ok {
		t.Fatalf("second attempt must be throttled: ok=%v err=%v", ok, err)
	}

	mini.FastForward(61 * time.Second)

	if _, ok, err := limiter.AllowLogin(ctx, "alice"); err != nil || !ok {
		t.Fatalf("attempt after window expiry: ok=%v err=%v", ok, err)
	}
}
