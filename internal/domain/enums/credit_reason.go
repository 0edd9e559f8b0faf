package enums

type CreditReason string

const (
	CreditReasonRefill       CreditReason = "refill"
	CreditReasonOverpayment  CreditReason = "overpayment"
	CreditReasonUnderpayment CreditReason = "underpayment"
	CreditReasonRefund       CreditReason = "refund"
)

type AuditAction string

const (
	AuditBalanceCreditAuto AuditAction = "BALANCE_CREDIT_AUTO"
	AuditBalanceDebit      AuditAction = "BALANCE_DEBIT_PURCHASE"
	AuditBalanceRefund     AuditAction = "BALANCE_REFUND"
	AuditDropAdded         AuditAction = "DROP_ADDED"
)
