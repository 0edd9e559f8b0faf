package postgres

import (
	"context"
	"fmt"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BasketRepo struct {
	pool *pgxpool.Pool
}

func NewBasketRepo(pool *pgxpool.Pool) *BasketRepo {
	return &BasketRepo{pool: pool}
}

func (r *BasketRepo) Add(ctx context.Context, userID, productID int64) error {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
INSERT INTO basket_items (user_id, product_id)
VALUES ($1, $2)
ON CONFLICT (user_id, product_id) DO NOTHING
`, userID, productID); err != nil {
		return fmt.Errorf("add basket item: %w", err)
	}
	return nil
}

// Items returns the products currently held in the user's basket.
func (r *BasketRepo) Items(ctx context.Context, userID int64) ([]model.Product, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, `
SELECT
	p.id,
	p.city,
	p.district,
	p.product_type,
	p.size,
	p.name,
	p.price,
	p.available,
	p.reserved,
	p.reserved_by,
	p.reserved_until,
	p.original_text,
	p.added_by,
	p.added_at
FROM basket_items b
JOIN products p ON p.id = b.product_id
WHERE b.user_id = $1
ORDER BY b.added_at ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list basket items: %w", err)
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan basket item: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate basket items: %w", err)
	}
	return out, nil
}

func (r *BasketRepo) Remove(ctx context.Context, userID int64, productIDs []int64) error {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}
	if len(productIDs) == 0 {
		return nil
	}

	if _, err := db.Exec(ctx, `DELETE FROM basket_items WHERE user_id = $1 AND product_id = ANY($2)`, userID, productIDs); err != nil {
		return fmt.Errorf("remove basket items: %w", err)
	}
	return nil
}

func (r *BasketRepo) Clear(ctx context.Context, userID int64) error {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `DELETE FROM basket_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear basket: %w", err)
	}
	return nil
}
