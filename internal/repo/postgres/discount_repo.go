package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrDiscountCodeInvalid = errors.New("discount code invalid")

type DiscountRepo struct {
	pool *pgxpool.Pool
}

func NewDiscountRepo(pool *pgxpool.Pool) *DiscountRepo {
	return &DiscountRepo{pool: pool}
}

// ResellerPercents returns the reseller discount per product type. Types
// without a configured discount are absent from the map.
func (r *DiscountRepo) ResellerPercents(ctx context.Context, userID int64, productTypes []string) (map[string]decimal.Decimal, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(productTypes))
	if len(productTypes) == 0 {
		return out, nil
	}

	rows, err := db.Query(ctx, `
SELECT product_type, percent
FROM reseller_discounts
WHERE user_id = $1
  AND product_type = ANY($2)
`, userID, productTypes)
	if err != nil {
		return nil, fmt.Errorf("list reseller discounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productType string
			pct         decimal.Decimal
		)
		if err := rows.Scan(&productType, &pct); err != nil {
			return nil, fmt.Errorf("scan reseller discount: %w", err)
		}
		out[productType] = pct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reseller discounts: %w", err)
	}
	return out, nil
}

// CodePercent validates an active discount code and returns its percent.
func (r *DiscountRepo) CodePercent(ctx context.Context, code string, now time.Time) (decimal.Decimal, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return decimal.Zero, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero, ErrDiscountCodeInvalid
	}

	var pct decimal.Decimal
	err = db.QueryRow(ctx, `
SELECT percent
FROM discount_codes
WHERE code = $1
  AND is_active
  AND (expires_at IS NULL OR expires_at > $2)
  AND (max_uses IS NULL OR uses_count < max_uses)
`, code, now).Scan(&pct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrDiscountCodeInvalid
		}
		return decimal.Zero, fmt.Errorf("get discount code: %w", err)
	}
	return pct, nil
}

func (r *DiscountRepo) IncrementUses(ctx context.Context, code string) error {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return nil
	}

	if _, err := db.Exec(ctx, `UPDATE discount_codes SET uses_count = uses_count + 1 WHERE code = $1`, code); err != nil {
		return fmt.Errorf("increment discount code uses: %w", err)
	}
	return nil
}
