package model

import (
	"time"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/shopspring/decimal"
)

type AuditEntry struct {
	ID           int64               `json:"id"`
	ActorID      int64               `json:"actor_id"`
	Action       enums.AuditAction   `json:"action"`
	TargetUserID int64               `json:"target_user_id"`
	Reason       string              `json:"reason"`
	AmountChange decimal.NullDecimal `json:"amount_change"`
	OldValue     decimal.NullDecimal `json:"old_value"`
	NewValue     decimal.NullDecimal `json:"new_value"`
	CreatedAt    time.Time           `json:"created_at"`
}
