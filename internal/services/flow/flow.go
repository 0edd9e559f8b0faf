package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidUser       = errors.New("invalid flow user")
	ErrInvalidTransition = errors.New("invalid flow transition")
)

// Context is the typed per-user conversation state.
type Context struct {
	UserID    int64           `json:"user_id"`
	State     enums.FlowState `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`

	// refill / checkout
	RefillAmount     decimal.Decimal `json:"refill_amount,omitempty"`
	IsPurchase       bool            `json:"is_purchase,omitempty"`
	DiscountCode     string          `json:"discount_code,omitempty"`
	PendingPaymentID string          `json:"pending_payment_id,omitempty"`

	// worker bulk drop
	DropCity     string `json:"drop_city,omitempty"`
	DropDistrict string `json:"drop_district,omitempty"`
	DropType     string `json:"drop_type,omitempty"`
}

func NewContext(userID int64) Context {
	return Context{UserID: userID, State: enums.FlowIdle}
}

type Store interface {
	Load(ctx context.Context, userID int64) (Context, error)
	Save(ctx context.Context, fc Context) error
	Clear(ctx context.Context, userID int64) error
}

type Machine struct {
	store Store
	now   func() time.Time
}

func NewMachine(store Store) *Machine {
	return &Machine{store: store, now: time.Now}
}

func (m *Machine) Current(ctx context.Context, userID int64) (Context, error) {
	if userID <= 0 {
		return Context{}, ErrInvalidUser
	}
	if m.store == nil {
		return Context{}, fmt.Errorf("flow store is nil")
	}
	fc, err := m.store.Load(ctx, userID)
	if err != nil {
		return Context{}, err
	}
	if fc.State == "" {
		fc.State = enums.FlowIdle
	}
	return fc, nil
}

// Transition moves the user to next after mutate has adjusted the context.
// Returning to idle drops the step data but keeps the discount code, which
// belongs to the basket rather than to a step.
func (m *Machine) Transition(ctx context.Context, userID int64, next enums.FlowState, mutate func(*Context)) (Context, error) {
	fc, err := m.Current(ctx, userID)
	if err != nil {
		return Context{}, err
	}
	if !fc.State.CanTransition(next) {
		return Context{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, fc.State, next)
	}

	if next == enums.FlowIdle {
		code := fc.DiscountCode
		fc = NewContext(userID)
		fc.DiscountCode = code
	}
	if mutate != nil {
		mutate(&fc)
	}
	fc.UserID = userID
	fc.State = next
	fc.UpdatedAt = m.now().UTC()

	if err := m.store.Save(ctx, fc); err != nil {
		return Context{}, err
	}
	return fc, nil
}

// SetDiscountCode stores the code for the next checkout without moving the
// user out of the current step. An empty code removes it.
func (m *Machine) SetDiscountCode(ctx context.Context, userID int64, code string) (Context, error) {
	fc, err := m.Current(ctx, userID)
	if err != nil {
		return Context{}, err
	}
	fc.UserID = userID
	fc.DiscountCode = code
	fc.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, fc); err != nil {
		return Context{}, err
	}
	return fc, nil
}

// Reset forgets everything, the discount code included.
func (m *Machine) Reset(ctx context.Context, userID int64) error {
	if m.store == nil {
		return fmt.Errorf("flow store is nil")
	}
	return m.store.Clear(ctx, userID)
}
