package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/shopspring/decimal"
)

type memoryStore struct {
	items map[int64]Context
}

func (s *memoryStore) Load(_ context.Context, userID int64) (Context, error) {
	fc, ok := s.items[userID]
	if !ok {
		return NewContext(userID), nil
	}
	return fc, nil
}

func (s *memoryStore) Save(_ context.Context, fc Context) error {
	s.items[fc.UserID] = fc
	return nil
}

func (s *memoryStore) Clear(_ context.Context, userID int64) error {
	delete(s.items, userID)
	return nil
}

func TestMachineFollowsRefillFlow(t *testing.T) {
	store := &memoryStore{items: map[int64]Context{}}
	m := NewMachine(store)
	ctx := context.Background()

	if _, err := m.Transition(ctx, 5, enums.FlowAwaitingRefillAmount, nil); err != nil {
		t.Fatalf("enter refill: %v", err)
	}
	fc, err := m.Transition(ctx, 5, enums.FlowChoosingCrypto, func(c *Context) {
		c.RefillAmount = decimal.RequireFromString("25")
	})
	if err != nil {
		t.Fatalf("choose crypto: %v", err)
	}
	if !fc.RefillAmount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("refill amount not kept: %s", fc.RefillAmount)
	}

	fc, err = m.Transition(ctx, 5, enums.FlowAwaitingPayment, func(c *Context) {
		c.PendingPaymentID = "p-1"
	})
	if err != nil {
		t.Fatalf("await payment: %v", err)
	}
	if fc.PendingPaymentID != "p-1" || !fc.RefillAmount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected context: %+v", fc)
	}

	fc, err = m.Transition(ctx, 5, enums.FlowIdle, nil)
	if err != nil {
		t.Fatalf("back to idle: %v", err)
	}
	if fc.PendingPaymentID != "" || !fc.RefillAmount.IsZero() {
		t.Fatalf("idle should reset context, got %+v", fc)
	}
}

func TestMachineRejectsSkippedSteps(t *testing.T) {
	m := NewMachine(&memoryStore{items: map[int64]Context{}})

	_, err := m.Transition(context.Background(), 5, enums.FlowAwaitingPayment, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := m.Current(context.Background(), 0); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestDiscountCodeSurvivesIdleButNotReset(t *testing.T) {
	store := &memoryStore{items: map[int64]Context{}}
	m := NewMachine(store)
	ctx := context.Background()

	if _, err := m.SetDiscountCode(ctx, 5, "SPRING10"); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if _, err := m.Transition(ctx, 5, enums.FlowChoosingCrypto, func(c *Context) { c.IsPurchase = true }); err != nil {
		t.Fatalf("choose crypto: %v", err)
	}
	fc, err := m.SetDiscountCode(ctx, 5, "SUMMER20")
	if err != nil {
		t.Fatalf("replace code: %v", err)
	}
	if fc.State != enums.FlowChoosingCrypto || !fc.IsPurchase {
		t.Fatalf("setting a code must not leave the step, got %+v", fc)
	}

	fc, err = m.Transition(ctx, 5, enums.FlowIdle, nil)
	if err != nil {
		t.Fatalf("back to idle: %v", err)
	}
	if fc.DiscountCode != "SUMMER20" || fc.IsPurchase {
		t.Fatalf("idle should keep only the code, got %+v", fc)
	}

	if err := m.Reset(ctx, 5); err != nil {
		t.Fatalf("reset: %v", err)
	}
	fc, err = m.Current(ctx, 5)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if fc.DiscountCode != "" {
		t.Fatalf("reset should drop the code, got %q", fc.DiscountCode)
	}
}
