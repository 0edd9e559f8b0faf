package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goblin987/ultramaxgoodbot/internal/infra/telegram"
)

// Callback data understood by the bot router.
const (
	CallbackViewBasket     = "view_basket"
	CallbackProfile        = "profile"
	CallbackPayBalance     = "basket_pay_balance"
	CallbackPayCrypto      = "basket_pay_crypto"
	CallbackCancelCrypto   = "cancel_crypto_payment"
	CallbackRefill         = "refill"
	CallbackWorkerBulkDone = "worker_bulk_done"
	CallbackAddPrefix      = "add:"
	CallbackRemovePrefix   = "remove:"
	CallbackBasketCrypto   = "basket_crypto:"
	CallbackRefillCrypto   = "refill_crypto:"
	CallbackWorkerBulk     = "worker_bulk:"
	callbackDataMaxBytes   = 64
	callbackFieldSeparator = ":"
)

// CryptoAssets offered on the currency picker.
var CryptoAssets = []string{"btc", "eth", "ltc", "sol", "usdttrc20", "usdterc20", "ton"}

func MainMenu() telegram.Keyboard {
	return telegram.Keyboard{
		telegram.Row(
			telegram.Button{Text: "🛒 Basket", Data: CallbackViewBasket},
			telegram.Button{Text: "👤 Profile", Data: CallbackProfile},
		),
		telegram.Row(telegram.Button{Text: "💶 Top up balance", Data: CallbackRefill}),
	}
}

func BackToBasket() telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(telegram.Button{Text: "⬅️ Back to Basket", Data: CallbackViewBasket})}
}

func BackToProfile() telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(telegram.Button{Text: "⬅️ Back to Profile", Data: CallbackProfile})}
}

func CancelPayment() telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(telegram.Button{Text: "❌ Cancel Payment", Data: CallbackCancelCrypto})}
}

func BasketActions(productIDs []int64) telegram.Keyboard {
	kb := make(telegram.Keyboard, 0, len(productIDs)+2)
	for _, id := range productIDs {
		kb = append(kb, telegram.Row(telegram.Button{
			Text: "🗑 Remove #" + strconv.FormatInt(id, 10),
			Data: CallbackRemovePrefix + strconv.FormatInt(id, 10),
		}))
	}
	kb = append(kb,
		telegram.Row(telegram.Button{Text: "💳 Pay with balance", Data: CallbackPayBalance}),
		telegram.Row(telegram.Button{Text: "🪙 Pay with crypto", Data: CallbackPayCrypto}),
	)
	return kb
}

// AssetPicker lists crypto assets; prefix selects purchase or refill.
func AssetPicker(prefix string, back telegram.Keyboard) telegram.Keyboard {
	kb := make(telegram.Keyboard, 0, len(CryptoAssets)/2+2)
	row := make([]telegram.Button, 0, 2)
	for _, asset := range CryptoAssets {
		row = append(row, telegram.Button{Text: strings.ToUpper(asset), Data: prefix + asset})
		if len(row) == 2 {
			kb = append(kb, row)
			row = make([]telegram.Button, 0, 2)
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	return append(kb, back...)
}

func ProductButton(id int64, label string) telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(telegram.Button{
		Text: "🛒 " + label,
		Data: CallbackAddPrefix + strconv.FormatInt(id, 10),
	})}
}

func WorkerBulkStart(data, label string) telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(telegram.Button{Text: "➕ Add drops: " + label, Data: data})}
}

func WorkerBulkDone() telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(telegram.Button{Text: "✅ Done", Data: CallbackWorkerBulkDone})}
}

// WorkerBulkData encodes the drop location; it fails when telegram would
// reject the callback payload.
func WorkerBulkData(city, district, productType string) (string, error) {
	data := CallbackWorkerBulk + strings.Join([]string{city, district, productType}, callbackFieldSeparator)
	if len(data) > callbackDataMaxBytes {
		return "", fmt.Errorf("callback data exceeds %d bytes", callbackDataMaxBytes)
	}
	return data, nil
}

// ParseWorkerBulkData is the inverse of WorkerBulkData.
func ParseWorkerBulkData(data string) (city, district, productType string, ok bool) {
	rest, found := strings.CutPrefix(data, CallbackWorkerBulk)
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(rest, callbackFieldSeparator)
	if len(parts) != 3 {
		return "", "", "", false
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return "", "", "", false
		}
	}
	return parts[0], parts[1], parts[2], true
}

// ParseID reads the numeric suffix of callbacks such as "add:<id>".
func ParseID(data, prefix string) (int64, bool) {
	rest, found := strings.CutPrefix(data, prefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
