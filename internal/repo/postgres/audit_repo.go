package postgres

import (
	"context"
	"fmt"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Insert(ctx context.Context, entry model.AuditEntry) error {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
INSERT INTO audit_log (
	actor_id,
	action,
	target_user_id,
	reason,
	amount_change,
	old_value,
	new_value
) VALUES ($1, $2, $3, $4, $5, $6, $7)
`,
		entry.ActorID,
		string(entry.Action),
		entry.TargetUserID,
		entry.Reason,
		entry.AmountChange,
		entry.OldValue,
		entry.NewValue,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepo) ListForUser(ctx context.Context, userID int64, limit int) ([]model.AuditEntry, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(ctx, `
SELECT id, actor_id, action, target_user_id, reason, amount_change, old_value, new_value, created_at
FROM audit_log
WHERE target_user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e      model.AuditEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &action, &e.TargetUserID, &e.Reason, &e.AmountChange, &e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = enums.AuditAction(action)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
