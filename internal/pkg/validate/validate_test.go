package validate

import "testing"

func TestRequired(t *testing.T) {
	if Required("  \t") {
		t.Fatal("blank value must not pass")
	}
	if !Required(" x ") {
		t.Fatal("non blank value must pass")
	}
}

func TestTicker(t *testing.T) {
	for _, ok := range []string{"btc", "usdttrc20", "ton"} {
		if !Ticker(ok) {
			t.Fatalf("%q should be a ticker", ok)
		}
	}
	for _, bad := range []string{"", "b", "BTC", "btc ", "usdt-trc20", "averyveryverylongticker"} {
		if Ticker(bad) {
			t.Fatalf("%q should not be a ticker", bad)
		}
	}
}
