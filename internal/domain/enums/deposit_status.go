package enums

type DepositStatus string

const (
	DepositStatusPending    DepositStatus = "pending"
	DepositStatusFinalizing DepositStatus = "finalizing"
	DepositStatusCommitted  DepositStatus = "committed"
	DepositStatusCredited   DepositStatus = "credited"
	DepositStatusReleased   DepositStatus = "released"
	DepositStatusExpired    DepositStatus = "expired"
	DepositStatusFailed     DepositStatus = "failed"
)

func (s DepositStatus) IsTerminal() bool {
	switch s {
	case DepositStatusCommitted, DepositStatusCredited, DepositStatusReleased,
		DepositStatusExpired, DepositStatusFailed:
		return true
	default:
		return false
	}
}
