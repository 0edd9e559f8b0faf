package enums

// CheckoutState tracks one basket from reservation to fulfillment.
type CheckoutState string

const (
	CheckoutReserved       CheckoutState = "reserved"
	CheckoutPaymentPending CheckoutState = "payment_pending"
	CheckoutFinalizing     CheckoutState = "finalizing"
	CheckoutCommitted      CheckoutState = "committed"
	CheckoutReleased       CheckoutState = "released"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutReserved:       {CheckoutPaymentPending, CheckoutFinalizing, CheckoutReleased},
	CheckoutPaymentPending: {CheckoutFinalizing, CheckoutReleased},
	CheckoutFinalizing:     {CheckoutCommitted, CheckoutReleased},
}

func (s CheckoutState) CanTransition(to CheckoutState) bool {
	for _, next := range checkoutTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutCommitted || s == CheckoutReleased
}
