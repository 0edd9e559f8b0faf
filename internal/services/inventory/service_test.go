package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	pgrepo "github.com/goblin987/ultramaxgoodbot/internal/repo/postgres"
)

type fakeStock struct {
	products map[int64]*model.Product
	baskets  map[int64][]int64
}

func newFakeStock(ids ...int64) *fakeStock {
	s := &fakeStock{
		products: make(map[int64]*model.Product),
		baskets:  make(map[int64][]int64),
	}
	for _, id := range ids {
		s.products[id] = &model.Product{ID: id, Name: "item", Type: "t", Price: decimal.NewFromInt(10), Available: 1}
	}
	return s
}

func (s *fakeStock) Reserve(_ context.Context, productID, userID int64, until, now time.Time) (model.Product, error) {
	p, ok := s.products[productID]
	if !ok || p.Available != 1 {
		return model.Product{}, pgrepo.ErrProductUnavailable
	}
	if p.Reserved == 1 && *p.ReservedBy != userID && !p.ReservedUntil.Before(now) {
		return model.Product{}, pgrepo.ErrProductUnavailable
	}
	owner := userID
	p.Reserved, p.ReservedBy, p.ReservedUntil = 1, &owner, &until
	return *p, nil
}

func (s *fakeStock) ExtendReservation(_ context.Context, userID int64, ids []int64, until time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.ReservedBy != nil && *p.ReservedBy == userID {
			p.ReservedUntil = &until
			n++
		}
	}
	return n, nil
}

func (s *fakeStock) Release(_ context.Context, userID int64, ids []int64) (int64, error) {
	var n int64
	for _, id := range ids {
		p, ok := s.products[id]
		if !ok || p.Available != 1 || p.ReservedBy == nil || *p.ReservedBy != userID {
			continue
		}
		p.Reserved, p.ReservedBy, p.ReservedUntil = 0, nil, nil
		n++
	}
	return n, nil
}

func (s *fakeStock) ReleaseExpired(_ context.Context, now time.Time, _ int) ([]pgrepo.Reservation, error) {
	var out []pgrepo.Reservation
	for _, p := range s.products {
		if p.Reserved == 1 && p.ReservedUntil.Before(now) {
			out = append(out, pgrepo.Reservation{ProductID: p.ID, UserID: *p.ReservedBy})
			p.Reserved, p.ReservedBy, p.ReservedUntil = 0, nil, nil
		}
	}
	return out, nil
}

func (s *fakeStock) Add(_ context.Context, userID, productID int64) error {
	s.baskets[userID] = append(s.baskets[userID], productID)
	return nil
}

func (s *fakeStock) Items(_ context.Context, userID int64) ([]model.Product, error) {
	var out []model.Product
	for _, id := range s.baskets[userID] {
		if p, ok := s.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStock) Remove(_ context.Context, userID int64, ids []int64) error {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.baskets[userID][:0]
	for _, id := range s.baskets[userID] {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	s.baskets[userID] = kept
	return nil
}

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func newTestService(stock *fakeStock, now time.Time) *Service {
	svc := NewService(stock, stock, inlineTx{}, nil, 15*time.Minute, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestAddToBasketReservesForOwner(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stock := newFakeStock(1)
	svc := newTestService(stock, now)
	ctx := context.Background()

	p, err := svc.AddToBasket(ctx, 100, 1)
	if err != nil {
		t.Fatalf("add to basket: %v", err)
	}
	if p.ReservedUntil == nil || !p.ReservedUntil.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("unexpected reservation deadline %v", p.ReservedUntil)
	}

	if _, err := svc.AddToBasket(ctx, 200, 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for second user, got %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	now := time.Now()
	stock := newFakeStock(1, 2)
	svc := newTestService(stock, now)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		if _, err := svc.AddToBasket(ctx, 100, id); err != nil {
			t.Fatalf("add %d: %v", id, err)
		}
	}
	snapshot, err := svc.Snapshot(ctx, 100)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	n, err := svc.Release(ctx, 100, snapshot, TriggerCancel)
	if err != nil || n != 2 {
		t.Fatalf("first release: n=%d err=%v", n, err)
	}
	n, err = svc.Release(ctx, 100, snapshot, TriggerCancel)
	if err != nil || n != 0 {
		t.Fatalf("second release should be a no-op: n=%d err=%v", n, err)
	}
	for _, id := range []int64{1, 2} {
		if stock.products[id].Reserved != 0 || stock.products[id].Available != 1 {
			t.Fatalf("product %d not back in stock: %+v", id, stock.products[id])
		}
	}
	if _, err := svc.Snapshot(ctx, 100); !errors.Is(err, ErrEmptyBasket) {
		t.Fatalf("expected empty basket, got %v", err)
	}
}

func TestReleaseDoesNotTouchOtherOwner(t *testing.T) {
	stock := newFakeStock(1)
	svc := newTestService(stock, time.Now())
	ctx := context.Background()

	if _, err := svc.AddToBasket(ctx, 200, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	n, err := svc.Release(ctx, 100, model.BasketSnapshot{{ProductID: 1}}, TriggerCancel)
	if err != nil || n != 0 {
		t.Fatalf("foreign release: n=%d err=%v", n, err)
	}
	if owner := stock.products[1].ReservedBy; owner == nil || *owner != 200 {
		t.Fatalf("reservation of user 200 was lost")
	}
}

func TestBasketDropsStaleRows(t *testing.T) {
	now := time.Now()
	stock := newFakeStock(1, 2)
	svc := newTestService(stock, now)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		if _, err := svc.AddToBasket(ctx, 100, id); err != nil {
			t.Fatalf("add %d: %v", id, err)
		}
	}
	stock.products[2].Available = 0

	items, err := svc.Basket(ctx, 100)
	if err != nil {
		t.Fatalf("basket: %v", err)
	}
	if len(items) != 1 || items[0].ID != 1 {
		t.Fatalf("unexpected basket %+v", items)
	}
	if len(stock.baskets[100]) != 1 {
		t.Fatalf("stale row was not removed: %v", stock.baskets[100])
	}
}

func TestSweepExpiredClearsBasketRows(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stock := newFakeStock(1)
	svc := newTestService(stock, now)
	ctx := context.Background()

	if _, err := svc.AddToBasket(ctx, 100, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	svc.now = func() time.Time { return now.Add(time.Hour) }
	n, err := svc.SweepExpired(ctx, 100)
	if err != nil || n != 1 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
	if len(stock.baskets[100]) != 0 {
		t.Fatalf("basket not cleared: %v", stock.baskets[100])
	}
}

func TestHoldExtendsDeadline(t *testing.T) {
	now := time.Now().UTC()
	stock := newFakeStock(1)
	svc := newTestService(stock, now)
	ctx := context.Background()

	if _, err := svc.AddToBasket(ctx, 100, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	until := now.Add(2 * time.Hour)
	if err := svc.Hold(ctx, 100, model.BasketSnapshot{{ProductID: 1}}, until); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if !stock.products[1].ReservedUntil.Equal(until) {
		t.Fatalf("deadline not extended: %v", stock.products[1].ReservedUntil)
	}
}
