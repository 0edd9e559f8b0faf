package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrDepositNotFound     = errors.New("pending deposit not found")
	ErrDepositExists       = errors.New("pending deposit already exists")
	ErrDepositNotClaimable = errors.New("pending deposit is not in the expected state")
)

type PendingDepositRepo struct {
	pool *pgxpool.Pool
}

func NewPendingDepositRepo(pool *pgxpool.Pool) *PendingDepositRepo {
	return &PendingDepositRepo{pool: pool}
}

const depositColumns = `
	payment_id,
	user_id,
	currency,
	target_amount,
	expected_crypto,
	is_purchase,
	basket_snapshot,
	discount_code,
	status,
	expires_at,
	created_at,
	updated_at`

func (r *PendingDepositRepo) Create(ctx context.Context, d model.PendingDeposit) error {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}
	if strings.TrimSpace(d.PaymentID) == "" || d.UserID <= 0 {
		return fmt.Errorf("invalid pending deposit payload")
	}

	var snapshot []byte
	if d.IsPurchase {
		snapshot, err = json.Marshal(d.Snapshot)
		if err != nil {
			return fmt.Errorf("marshal basket snapshot: %w", err)
		}
	}
	status := d.Status
	if status == "" {
		status = enums.DepositStatusPending
	}

	_, err = db.Exec(ctx, `
INSERT INTO pending_deposits (
	payment_id,
	user_id,
	currency,
	target_amount,
	expected_crypto,
	is_purchase,
	basket_snapshot,
	discount_code,
	status,
	expires_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`,
		d.PaymentID,
		d.UserID,
		strings.ToLower(strings.TrimSpace(d.Currency)),
		d.TargetAmount,
		d.ExpectedCrypto,
		d.IsPurchase,
		snapshot,
		d.DiscountCode,
		string(status),
		d.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDepositExists
		}
		return fmt.Errorf("insert pending deposit: %w", err)
	}
	return nil
}

func (r *PendingDepositRepo) Get(ctx context.Context, paymentID string) (model.PendingDeposit, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return model.PendingDeposit{}, err
	}

	d, err := scanDeposit(db.QueryRow(ctx, `SELECT`+depositColumns+` FROM pending_deposits WHERE payment_id = $1`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PendingDeposit{}, ErrDepositNotFound
		}
		return model.PendingDeposit{}, fmt.Errorf("get pending deposit: %w", err)
	}
	return d, nil
}

// Claim atomically moves a deposit from one status to another. Exactly one
// caller wins a race; the others get ErrDepositNotClaimable.
func (r *PendingDepositRepo) Claim(ctx context.Context, paymentID string, from, to enums.DepositStatus) (model.PendingDeposit, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return model.PendingDeposit{}, err
	}

	d, err := scanDeposit(db.QueryRow(ctx, `
UPDATE pending_deposits
SET status = $3,
    updated_at = NOW()
WHERE payment_id = $1
  AND status = $2
RETURNING`+depositColumns, paymentID, string(from), string(to)))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.PendingDeposit{}, fmt.Errorf("claim pending deposit: %w", err)
	}

	if _, getErr := r.Get(ctx, paymentID); getErr != nil {
		return model.PendingDeposit{}, getErr
	}
	return model.PendingDeposit{}, ErrDepositNotClaimable
}

func (r *PendingDepositRepo) SetStatus(ctx context.Context, paymentID string, status enums.DepositStatus) error {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
UPDATE pending_deposits
SET status = $2,
    updated_at = NOW()
WHERE payment_id = $1
`, paymentID, string(status))
	if err != nil {
		return fmt.Errorf("set pending deposit status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDepositNotFound
	}
	return nil
}

// OpenForUser returns the user's newest unpaid invoice.
func (r *PendingDepositRepo) OpenForUser(ctx context.Context, userID int64) (model.PendingDeposit, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return model.PendingDeposit{}, err
	}

	d, err := scanDeposit(db.QueryRow(ctx, `SELECT`+depositColumns+`
FROM pending_deposits
WHERE user_id = $1
  AND status = 'pending'
ORDER BY created_at DESC
LIMIT 1
`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PendingDeposit{}, ErrDepositNotFound
		}
		return model.PendingDeposit{}, fmt.Errorf("get open deposit: %w", err)
	}
	return d, nil
}

// ExpireStale marks pending deposits past the cutoff as expired and returns them.
func (r *PendingDepositRepo) ExpireStale(ctx context.Context, cutoff time.Time, limit int) ([]model.PendingDeposit, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(ctx, `
UPDATE pending_deposits
SET status = 'expired',
    updated_at = NOW()
WHERE payment_id IN (
	SELECT payment_id
	FROM pending_deposits
	WHERE status = 'pending'
	  AND expires_at < $1
	ORDER BY expires_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING`+depositColumns, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("expire stale deposits: %w", err)
	}
	defer rows.Close()

	var out []model.PendingDeposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired deposit: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired deposits: %w", err)
	}
	return out, nil
}

func scanDeposit(row pgx.Row) (model.PendingDeposit, error) {
	var (
		d        model.PendingDeposit
		snapshot []byte
		status   string
	)
	err := row.Scan(
		&d.PaymentID,
		&d.UserID,
		&d.Currency,
		&d.TargetAmount,
		&d.ExpectedCrypto,
		&d.IsPurchase,
		&snapshot,
		&d.DiscountCode,
		&status,
		&d.ExpiresAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return model.PendingDeposit{}, err
	}
	d.Status = enums.DepositStatus(status)
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &d.Snapshot); err != nil {
			return model.PendingDeposit{}, fmt.Errorf("decode basket snapshot: %w", err)
		}
	}
	return d, nil
}

// FailStuck marks deposits left in finalizing since before cutoff as failed
// and returns them. Each stuck deposit is returned exactly once.
func (r *PendingDepositRepo) FailStuck(ctx context.Context, cutoff time.Time, limit int) ([]model.PendingDeposit, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(ctx, `
UPDATE pending_deposits
SET status = 'failed',
    updated_at = NOW()
WHERE payment_id IN (
	SELECT payment_id
	FROM pending_deposits
	WHERE status = 'finalizing'
	  AND updated_at < $1
	ORDER BY updated_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING`+depositColumns, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("fail stuck deposits: %w", err)
	}
	defer rows.Close()

	var out []model.PendingDeposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stuck deposit: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stuck deposits: %w", err)
	}
	return out, nil
}
