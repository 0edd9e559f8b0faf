package postgres

import (
	"context"
	"fmt"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MediaRepo struct {
	pool *pgxpool.Pool
}

func NewMediaRepo(pool *pgxpool.Pool) *MediaRepo {
	return &MediaRepo{pool: pool}
}

func (r *MediaRepo) Add(ctx context.Context, m model.ProductMedia) (int64, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return 0, err
	}

	var id int64
	err = db.QueryRow(ctx, `
INSERT INTO product_media (product_id, media_type, s3_key, telegram_file_id)
VALUES ($1, $2, $3, $4)
RETURNING id
`, m.ProductID, string(m.Kind), m.S3Key, m.TelegramFileID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product media: %w", err)
	}
	return id, nil
}

// ListForProducts groups media by product id, in insertion order.
func (r *MediaRepo) ListForProducts(ctx context.Context, productIDs []int64) (map[int64][]model.ProductMedia, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]model.ProductMedia, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	rows, err := db.Query(ctx, `
SELECT id, product_id, media_type, s3_key, telegram_file_id, created_at
FROM product_media
WHERE product_id = ANY($1)
ORDER BY product_id, id
`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("list product media: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m    model.ProductMedia
			kind string
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &kind, &m.S3Key, &m.TelegramFileID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product media: %w", err)
		}
		m.Kind = enums.MediaKind(kind)
		out[m.ProductID] = append(out[m.ProductID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product media: %w", err)
	}
	return out, nil
}
