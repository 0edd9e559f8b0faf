package model

import (
	"time"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/shopspring/decimal"
)

// PendingDeposit is an outstanding gateway invoice awaiting confirmation.
type PendingDeposit struct {
	PaymentID      string              `json:"payment_id"`
	UserID         int64               `json:"user_id"`
	Currency       string              `json:"currency"`
	TargetAmount   decimal.Decimal     `json:"target_amount"`
	ExpectedCrypto decimal.Decimal     `json:"expected_crypto"`
	IsPurchase     bool                `json:"is_purchase"`
	Snapshot       BasketSnapshot      `json:"basket_snapshot,omitempty"`
	DiscountCode   string              `json:"discount_code,omitempty"`
	Status         enums.DepositStatus `json:"status"`
	ExpiresAt      time.Time           `json:"expires_at"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}
