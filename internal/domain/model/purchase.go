package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Purchase struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	ProductID   int64           `json:"product_id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Size        string          `json:"size"`
	PricePaid   decimal.Decimal `json:"price_paid"`
	City        string          `json:"city"`
	District    string          `json:"district"`
	PurchasedAt time.Time       `json:"purchased_at"`
}
