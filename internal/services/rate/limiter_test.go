package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/goblin987/ultramaxgoodbot/internal/repo/redis"
)

func TestLimiterBlocksAfterInvoiceQuota(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	limiter := NewLimiter(redrepo.NewRateRepo(client), 2)
	ctx := context.Background()
	userID := int64(42)

	for i := 0; i < 2; i++ {
		retryAfter, allowed, err := limiter.AllowInvoice(ctx, userID)
		if err != nil {
			t.Fatalf("allow invoice #%d: %v", i+1, err)
		}
		if !allowed || retryAfter != 0 {
			t.Fatalf("unexpected result on allow #%d: allowed=%v retry_after=%s", i+1, allowed, retryAfter)
		}
	}

	retryAfter, allowed, err := limiter.AllowInvoice(ctx, userID)
	if err != nil {
		t.Fatalf("allow invoice #3: %v", err)
	}
	if allowed {
		t.Fatalf("expected limiter block on third invoice in window")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %s", retryAfter)
	}

	current, err := limiter.RetryAfterInvoice(ctx, userID)
	if err != nil {
		t.Fatalf("retry_after state: %v", err)
	}
	if current <= 0 {
		t.Fatalf("expected positive retry_after state, got %s", current)
	}

	mr.FastForward(11 * time.Minute)

	retryAfter, allowed, err = limiter.AllowInvoice(ctx, userID)
	if err != nil {
		t.Fatalf("allow invoice after window: %v", err)
	}
	if !allowed || retryAfter != 0 {
		t.Fatalf("expected allow after window reset, got allowed=%v retry_after=%s", allowed, retryAfter)
	}
}

func TestLimiterDisabledWithZeroQuota(t *testing.T) {
	limiter := NewLimiter(nil, 0)
	_, allowed, err := limiter.AllowInvoice(context.Background(), 1)
	if err != nil || !allowed {
		t.Fatalf("zero quota should allow everything, allowed=%v err=%v", allowed, err)
	}
}

func TestCeilSeconds(t *testing.T) {
	if got := ceilSeconds(1500 * time.Millisecond); got != 2*time.Second {
		t.Fatalf("expected 2s, got %s", got)
	}
	if got := ceilSeconds(3 * time.Second); got != 3*time.Second {
		t.Fatalf("expected 3s, got %s", got)
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}
