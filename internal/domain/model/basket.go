package model

import (
	"github.com/shopspring/decimal"
)

// BasketItem is one reserved product as captured at payment time.
type BasketItem struct {
	ProductID    int64           `json:"product_id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Size         string          `json:"size"`
	Price        decimal.Decimal `json:"price"`
	City         string          `json:"city"`
	District     string          `json:"district"`
	OriginalText string          `json:"original_text"`
}

type BasketSnapshot []BasketItem

func SnapshotItem(p Product) BasketItem {
	return BasketItem{
		ProductID:    p.ID,
		Name:         p.Name,
		Type:         p.Type,
		Size:         p.Size,
		Price:        p.Price,
		City:         p.City,
		District:     p.District,
		OriginalText: p.OriginalText,
	}
}

func (s BasketSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s {
		total = total.Add(item.Price)
	}
	return total
}

func (s BasketSnapshot) ProductIDs() []int64 {
	ids := make([]int64, 0, len(s))
	for _, item := range s {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func (s BasketSnapshot) Types() []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, item := range s {
		if _, ok := seen[item.Type]; ok {
			continue
		}
		seen[item.Type] = struct{}{}
		out = append(out, item.Type)
	}
	return out
}
