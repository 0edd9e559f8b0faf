package rules

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	// MaxMessageLen leaves headroom under telegram's 4096 character limit.
	MaxMessageLen = 4090
)

var hundred = decimal.NewFromInt(100)

// FloorCents truncates toward zero at two decimal places.
func FloorCents(d decimal.Decimal) decimal.Decimal {
	return d.RoundDown(2)
}

// DiscountAmount is the reseller discount on price, floored to cents.
func DiscountAmount(price, percent decimal.Decimal) decimal.Decimal {
	if !percent.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}
	return FloorCents(price.Mul(percent).Div(hundred))
}

func PriceAfterDiscount(price, percent decimal.Decimal) decimal.Decimal {
	return price.Sub(DiscountAmount(price, percent))
}

// FiatEquivalent converts a received crypto amount back to fiat using the
// invoice's own rate (target fiat per expected crypto).
func FiatEquivalent(target, expectedCrypto, receivedCrypto decimal.Decimal) decimal.Decimal {
	if !expectedCrypto.IsPositive() || !receivedCrypto.IsPositive() {
		return decimal.Zero
	}
	return FloorCents(target.Mul(receivedCrypto).Div(expectedCrypto))
}

// Overpayment is the fiat value received beyond target, or zero.
func Overpayment(target, expectedCrypto, receivedCrypto decimal.Decimal) decimal.Decimal {
	excess := FiatEquivalent(target, expectedCrypto, receivedCrypto).Sub(target)
	if !excess.IsPositive() {
		return decimal.Zero
	}
	return excess
}

// TruncateText cuts s to at most limit runes.
func TruncateText(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
