package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/services/flow"
)

func TestRateRepoWindowExpires(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	repo := NewRateRepo(client)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, ttl, err := repo.IncrementWindow(ctx, "rate:test", time.Minute)
		if err != nil {
			t.Fatalf("increment #%d: %v", i, err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
		if ttl <= 0 || ttl > time.Minute {
			t.Fatalf("unexpected ttl %s", ttl)
		}
	}

	count, _, err := repo.WindowState(ctx, "rate:test")
	if err != nil || count != 3 {
		t.Fatalf("unexpected window state count=%d err=%v", count, err)
	}

	mr.FastForward(61 * time.Second)

	count, _, err = repo.WindowState(ctx, "rate:test")
	if err != nil || count != 0 {
		t.Fatalf("window should have expired, count=%d err=%v", count, err)
	}
}

func TestFlowRepoRoundTripAndTTL(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	repo := NewFlowRepo(client, time.Hour)
	ctx := context.Background()

	fc, err := repo.Load(ctx, 11)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if fc.State != enums.FlowIdle {
		t.Fatalf("missing flow should be idle, got %s", fc.State)
	}

	fc.State = enums.FlowChoosingCrypto
	fc.RefillAmount = decimal.RequireFromString("12.50")
	if err := repo.Save(ctx, fc); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Load(ctx, 11)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.State != enums.FlowChoosingCrypto || !got.RefillAmount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected flow state: %+v", got)
	}

	mr.FastForward(2 * time.Hour)
	got, err = repo.Load(ctx, 11)
	if err != nil {
		t.Fatalf("load after ttl: %v", err)
	}
	if got.State != enums.FlowIdle {
		t.Fatalf("flow should reset after ttl, got %s", got.State)
	}

	if err := repo.Save(ctx, flow.Context{}); err != flow.ErrInvalidUser {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}
