package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/rules"
	"github.com/goblin987/ultramaxgoodbot/internal/infra/telegram"
	pgrepo "github.com/goblin987/ultramaxgoodbot/internal/repo/postgres"
	"github.com/goblin987/ultramaxgoodbot/internal/services/events"
	"github.com/goblin987/ultramaxgoodbot/internal/ui"
)

// SystemActor marks audit rows written by automated flows.
const SystemActor int64 = 0

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDependenciesNil     = errors.New("balance dependencies are not configured")
)

type UserStore interface {
	LockBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	AddBalance(ctx context.Context, userID int64, delta decimal.Decimal) (model.BalanceChange, error)
}

type AuditStore interface {
	Insert(ctx context.Context, entry model.AuditEntry) error
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(context.Context) error) error
}

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard telegram.Keyboard) error
}

type Service struct {
	users  UserStore
	audit  AuditStore
	tx     TxRunner
	sender Sender
	events events.Publisher
	fiat   string
	log    *zap.Logger
}

func NewService(users UserStore, audit AuditStore, tx TxRunner, sender Sender, pub events.Publisher, fiat string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if fiat == "" {
		fiat = "EUR"
	}
	return &Service{
		users:  users,
		audit:  audit,
		tx:     tx,
		sender: sender,
		events: pub,
		fiat:   fiat,
		log:    log,
	}
}

// Credit adds amount to the user's balance in one audited transaction and
// tells the user afterwards.
func (s *Service) Credit(ctx context.Context, userID int64, amount decimal.Decimal, reason enums.CreditReason, note string) (model.BalanceChange, error) {
	amount = rules.FloorCents(amount)
	if !amount.IsPositive() {
		return model.BalanceChange{}, ErrInvalidAmount
	}

	action := enums.AuditBalanceCreditAuto
	if reason == enums.CreditReasonRefund {
		action = enums.AuditBalanceRefund
	}
	change, err := s.apply(ctx, userID, amount, action, auditReason(string(reason), note))
	if err != nil {
		return model.BalanceChange{}, err
	}

	s.log.Info("balance credited",
		zap.Int64("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("reason", string(reason)),
		zap.String("new_balance", change.NewBalance.String()),
	)
	events.Emit(ctx, s.events, s.log, events.Event{
		Type:   events.TypeBalanceCredited,
		UserID: userID,
		Amount: amount,
		Reason: string(reason),
	})
	s.notify(ctx, userID, ui.Credit(reason, amount, change.NewBalance, s.fiat))
	return change, nil
}

// Debit charges a purchase. The balance row is locked first so concurrent
// debits serialize.
func (s *Service) Debit(ctx context.Context, userID int64, amount decimal.Decimal, note string) (model.BalanceChange, error) {
	if !amount.IsPositive() {
		return model.BalanceChange{}, ErrInvalidAmount
	}

	change, err := s.apply(ctx, userID, amount.Neg(), enums.AuditBalanceDebit, auditReason("purchase", note))
	if err != nil {
		return model.BalanceChange{}, err
	}
	events.Emit(ctx, s.events, s.log, events.Event{
		Type:   events.TypeBalanceDebited,
		UserID: userID,
		Amount: amount,
		Reason: note,
	})
	return change, nil
}

// Refund returns a previously debited amount without notifying the user; the
// caller owns the message.
func (s *Service) Refund(ctx context.Context, userID int64, amount decimal.Decimal, note string) (model.BalanceChange, error) {
	if !amount.IsPositive() {
		return model.BalanceChange{}, ErrInvalidAmount
	}
	return s.apply(ctx, userID, amount, enums.AuditBalanceRefund, auditReason(string(enums.CreditReasonRefund), note))
}

func (s *Service) apply(ctx context.Context, userID int64, delta decimal.Decimal, action enums.AuditAction, reason string) (model.BalanceChange, error) {
	if s.users == nil || s.audit == nil || s.tx == nil {
		return model.BalanceChange{}, ErrDependenciesNil
	}

	var change model.BalanceChange
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.users.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		if current.Add(delta).IsNegative() {
			return ErrInsufficientBalance
		}

		change, err = s.users.AddBalance(ctx, userID, delta)
		if err != nil {
			return err
		}

		return s.audit.Insert(ctx, model.AuditEntry{
			ActorID:      SystemActor,
			Action:       action,
			TargetUserID: userID,
			Reason:       reason,
			AmountChange: decimal.NewNullDecimal(delta),
			OldValue:     decimal.NewNullDecimal(change.OldBalance),
			NewValue:     decimal.NewNullDecimal(change.NewBalance),
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrUserNotFound):
			return model.BalanceChange{}, ErrUserNotFound
		case errors.Is(err, pgrepo.ErrInsufficientBalance), errors.Is(err, ErrInsufficientBalance):
			return model.BalanceChange{}, ErrInsufficientBalance
		}
		return model.BalanceChange{}, fmt.Errorf("apply balance change: %w", err)
	}
	return change, nil
}

func (s *Service) notify(ctx context.Context, userID int64, text string) {
	if s.sender == nil {
		return
	}
	if err := s.sender.SendText(ctx, userID, text, nil); err != nil {
		s.log.Warn("send balance notification failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func auditReason(reason, note string) string {
	if note == "" {
		return reason
	}
	return reason + ": " + note
}
