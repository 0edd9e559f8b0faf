package rules

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPriceAfterDiscount(t *testing.T) {
	cases := []struct {
		price, pct, want string
	}{
		{"10.00", "10", "9.00"},
		{"9.99", "15", "8.50"},
		{"20.00", "0", "20.00"},
		{"7.77", "33.3", "5.19"},
	}
	for _, tc := range cases {
		got := PriceAfterDiscount(dec(tc.price), dec(tc.pct))
		if !got.Equal(dec(tc.want)) {
			t.Fatalf("price %s pct %s: expected %s, got %s", tc.price, tc.pct, tc.want, got)
		}
	}
}

func TestDiscountAmountFloorsToCents(t *testing.T) {
	got := DiscountAmount(dec("9.99"), dec("15"))
	if !got.Equal(dec("1.49")) {
		t.Fatalf("expected 1.49, got %s", got)
	}
}

func TestFiatEquivalentAndOverpayment(t *testing.T) {
	target := dec("30.00")
	expected := dec("0.001")

	if got := FiatEquivalent(target, expected, dec("0.0005")); !got.Equal(dec("15.00")) {
		t.Fatalf("expected half of target, got %s", got)
	}
	if got := Overpayment(target, expected, dec("0.0011")); !got.Equal(dec("3.00")) {
		t.Fatalf("expected 3.00 excess, got %s", got)
	}
	if got := Overpayment(target, expected, dec("0.001")); !got.IsZero() {
		t.Fatalf("exact payment should have no excess, got %s", got)
	}
	if got := FiatEquivalent(target, decimal.Zero, dec("1")); !got.IsZero() {
		t.Fatalf("zero expected amount should convert to zero, got %s", got)
	}
}

func TestTruncateTextCountsRunes(t *testing.T) {
	s := strings.Repeat("ж", MaxMessageLen+10)
	out := TruncateText(s, MaxMessageLen)
	if n := len([]rune(out)); n != MaxMessageLen {
		t.Fatalf("expected %d runes, got %d", MaxMessageLen, n)
	}
	if TruncateText("short", MaxMessageLen) != "short" {
		t.Fatalf("short text should be unchanged")
	}
}
