package enums

// FlowState is the per-user conversation step of the bot.
type FlowState string

const (
	FlowIdle                 FlowState = "idle"
	FlowAwaitingRefillAmount FlowState = "awaiting_refill_amount"
	FlowChoosingCrypto       FlowState = "choosing_crypto"
	FlowAwaitingPayment      FlowState = "awaiting_payment"
	FlowWorkerBulkPrice      FlowState = "worker_bulk_price"
)

var flowTransitions = map[FlowState][]FlowState{
	FlowIdle:                 {FlowAwaitingRefillAmount, FlowChoosingCrypto, FlowWorkerBulkPrice},
	FlowAwaitingRefillAmount: {FlowChoosingCrypto, FlowIdle},
	FlowChoosingCrypto:       {FlowAwaitingPayment, FlowIdle},
	FlowAwaitingPayment:      {FlowIdle},
	FlowWorkerBulkPrice:      {FlowIdle},
}

func (s FlowState) CanTransition(to FlowState) bool {
	if to == FlowIdle || s == to {
		return true
	}
	for _, next := range flowTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
