package postgres

import (
	"context"
	"fmt"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

func (r *PurchaseRepo) Insert(ctx context.Context, p model.Purchase) (int64, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return 0, err
	}

	var id int64
	err = db.QueryRow(ctx, `
INSERT INTO purchases (
	user_id,
	product_id,
	product_name,
	product_type,
	product_size,
	price_paid,
	city,
	district,
	purchased_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id
`, p.UserID, p.ProductID, p.Name, p.Type, p.Size, p.PricePaid, p.City, p.District, p.PurchasedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert purchase: %w", err)
	}
	return id, nil
}

func (r *PurchaseRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]model.Purchase, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(ctx, `
SELECT id, user_id, product_id, product_name, product_type, product_size, price_paid, city, district, purchased_at
FROM purchases
WHERE user_id = $1
ORDER BY purchased_at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var out []model.Purchase
	for rows.Next() {
		var p model.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProductID, &p.Name, &p.Type, &p.Size, &p.PricePaid, &p.City, &p.District, &p.PurchasedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return out, nil
}
