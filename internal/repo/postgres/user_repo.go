package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetOrCreate(ctx context.Context, userID int64, username string) (model.User, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return model.User{}, err
	}
	if userID <= 0 {
		return model.User{}, fmt.Errorf("invalid user id %d", userID)
	}

	var u model.User
	err = db.QueryRow(ctx, `
INSERT INTO users (id, username)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE
SET username = CASE WHEN EXCLUDED.username = '' THEN users.username ELSE EXCLUDED.username END
RETURNING id, username, balance, total_purchases, created_at
`, userID, strings.TrimSpace(username)).Scan(&u.ID, &u.Username, &u.Balance, &u.TotalPurchases, &u.CreatedAt)
	if err != nil {
		return model.User{}, fmt.Errorf("get or create user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) Get(ctx context.Context, userID int64) (model.User, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return model.User{}, err
	}

	var u model.User
	err = db.QueryRow(ctx, `
SELECT id, username, balance, total_purchases, created_at
FROM users
WHERE id = $1
`, userID).Scan(&u.ID, &u.Username, &u.Balance, &u.TotalPurchases, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// LockBalance reads the balance with a row lock. Must run inside a tx.
func (r *UserRepo) LockBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	if txFromContext(ctx) == nil {
		return decimal.Zero, fmt.Errorf("lock balance requires a transaction")
	}
	db, err := conn(ctx, r.pool)
	if err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err = db.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("lock balance: %w", err)
	}
	return balance, nil
}

// AddBalance applies delta and returns the balances before and after.
func (r *UserRepo) AddBalance(ctx context.Context, userID int64, delta decimal.Decimal) (model.BalanceChange, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return model.BalanceChange{}, err
	}

	change := model.BalanceChange{UserID: userID, Delta: delta}
	err = db.QueryRow(ctx, `
UPDATE users
SET balance = balance + $2
WHERE id = $1
RETURNING balance
`, userID, delta).Scan(&change.NewBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BalanceChange{}, ErrUserNotFound
		}
		if isCheckViolation(err) {
			return model.BalanceChange{}, ErrInsufficientBalance
		}
		return model.BalanceChange{}, fmt.Errorf("update balance: %w", err)
	}
	change.OldBalance = change.NewBalance.Sub(delta)
	return change, nil
}

func (r *UserRepo) IncrementPurchases(ctx context.Context, userID int64, n int) error {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `UPDATE users SET total_purchases = total_purchases + $2 WHERE id = $1`, userID, n)
	if err != nil {
		return fmt.Errorf("increment total purchases: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
