package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64           `json:"id"`
	City          string          `json:"city"`
	District      string          `json:"district"`
	Type          string          `json:"type"`
	Size          string          `json:"size"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Available     int             `json:"available"`
	Reserved      int             `json:"reserved"`
	ReservedBy    *int64          `json:"reserved_by,omitempty"`
	ReservedUntil *time.Time      `json:"reserved_until,omitempty"`
	OriginalText  string          `json:"original_text"`
	AddedBy       int64           `json:"added_by"`
	AddedAt       time.Time       `json:"added_at"`
}

// NewDrop is a product a worker is adding to stock.
type NewDrop struct {
	City         string
	District     string
	Type         string
	Size         string
	Name         string
	Price        decimal.Decimal
	OriginalText string
	AddedBy      int64
}
