package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID             int64           `json:"id"`
	Username       string          `json:"username"`
	Balance        decimal.Decimal `json:"balance"`
	TotalPurchases int             `json:"total_purchases"`
	CreatedAt      time.Time       `json:"created_at"`
}

// BalanceChange is the result of one audited balance mutation.
type BalanceChange struct {
	UserID     int64           `json:"user_id"`
	Delta      decimal.Decimal `json:"delta"`
	OldBalance decimal.Decimal `json:"old_balance"`
	NewBalance decimal.Decimal `json:"new_balance"`
}
