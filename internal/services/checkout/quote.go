package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/rules"
)

// Quote is the price of a basket snapshot for one buyer.
type Quote struct {
	Subtotal      decimal.Decimal
	ResellerTotal decimal.Decimal
	CodePercent   decimal.Decimal
	CodeDiscount  decimal.Decimal
	Total         decimal.Decimal
	DiscountCode  string
	Percents      map[string]decimal.Decimal
}

// priceSnapshot applies reseller discounts per item and then the code
// discount to the sum, each floored to cents.
func priceSnapshot(snapshot model.BasketSnapshot, percents map[string]decimal.Decimal, code string, codePercent decimal.Decimal) Quote {
	q := Quote{
		Subtotal:      decimal.Zero,
		ResellerTotal: decimal.Zero,
		CodePercent:   codePercent,
		DiscountCode:  code,
		Percents:      percents,
	}
	for _, item := range snapshot {
		q.Subtotal = q.Subtotal.Add(item.Price)
		q.ResellerTotal = q.ResellerTotal.Add(rules.PriceAfterDiscount(item.Price, percents[item.Type]))
	}
	q.CodeDiscount = rules.DiscountAmount(q.ResellerTotal, codePercent)
	q.Total = q.ResellerTotal.Sub(q.CodeDiscount)
	return q
}

// unfulfilledShare is the part of charged that pays for skipped items,
// split by their discounted prices.
func unfulfilledShare(charged decimal.Decimal, result Result, percents map[string]decimal.Decimal) decimal.Decimal {
	if len(result.Skipped) == 0 || !charged.IsPositive() {
		return decimal.Zero
	}
	skipped := decimal.Zero
	for _, item := range result.Skipped {
		skipped = skipped.Add(rules.PriceAfterDiscount(item.Price, percents[item.Type]))
	}
	whole := skipped.Add(result.Total())
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return rules.FloorCents(charged.Mul(skipped).Div(whole))
}
