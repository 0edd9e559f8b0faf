package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product unavailable")
)

type ProductRepo struct {
	pool *pgxpool.Pool
}

// Reservation identifies a product held for a user.
type Reservation struct {
	ProductID int64
	UserID    int64
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

const productColumns = `
	id,
	city,
	district,
	product_type,
	size,
	name,
	price,
	available,
	reserved,
	reserved_by,
	reserved_until,
	original_text,
	added_by,
	added_at`

func (r *ProductRepo) Create(ctx context.Context, drop model.NewDrop) (int64, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return 0, err
	}
	if !drop.Price.IsPositive() {
		return 0, fmt.Errorf("invalid product price %s", drop.Price)
	}

	var id int64
	err = db.QueryRow(ctx, `
INSERT INTO products (
	city,
	district,
	product_type,
	size,
	name,
	price,
	original_text,
	added_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`,
		strings.TrimSpace(drop.City),
		strings.TrimSpace(drop.District),
		strings.TrimSpace(drop.Type),
		strings.TrimSpace(drop.Size),
		strings.TrimSpace(drop.Name),
		drop.Price,
		drop.OriginalText,
		drop.AddedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

func (r *ProductRepo) Get(ctx context.Context, id int64) (model.Product, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return model.Product{}, err
	}

	p, err := scanProduct(db.QueryRow(ctx, `SELECT`+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Product{}, ErrProductNotFound
		}
		return model.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListAvailable returns unreserved stock for one location and type.
func (r *ProductRepo) ListAvailable(ctx context.Context, city, district, productType string, now time.Time, limit int) ([]model.Product, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(ctx, `SELECT`+productColumns+`
FROM products
WHERE city = $1
  AND district = $2
  AND product_type = $3
  AND available = 1
  AND (reserved = 0 OR reserved_until < $4)
ORDER BY price ASC, id ASC
LIMIT $5
`, city, district, productType, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list available products: %w", err)
	}
	defer rows.Close()

	out := make([]model.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// Reserve holds the product for userID until the given time. Stale
// reservations of other users may be taken over.
func (r *ProductRepo) Reserve(ctx context.Context, productID, userID int64, until, now time.Time) (model.Product, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return model.Product{}, err
	}

	p, err := scanProduct(db.QueryRow(ctx, `
UPDATE products
SET reserved = 1,
    reserved_by = $2,
    reserved_until = $3
WHERE id = $1
  AND available = 1
  AND (reserved = 0 OR reserved_by = $2 OR reserved_until < $4)
RETURNING`+productColumns, productID, userID, until, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Product{}, ErrProductUnavailable
		}
		return model.Product{}, fmt.Errorf("reserve product: %w", err)
	}
	return p, nil
}

// ExtendReservation pushes the hold of the user's own reservations forward.
func (r *ProductRepo) ExtendReservation(ctx context.Context, userID int64, productIDs []int64, until time.Time) (int64, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return 0, err
	}
	if len(productIDs) == 0 {
		return 0, nil
	}

	tag, err := db.Exec(ctx, `
UPDATE products
SET reserved_until = $3
WHERE id = ANY($1)
  AND reserved_by = $2
  AND available = 1
`, productIDs, userID, until)
	if err != nil {
		return 0, fmt.Errorf("extend reservation: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Release clears reservations owned by userID. Products that are already
// released, sold or held by someone else are left untouched.
func (r *ProductRepo) Release(ctx context.Context, userID int64, productIDs []int64) (int64, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return 0, err
	}
	if len(productIDs) == 0 {
		return 0, nil
	}

	tag, err := db.Exec(ctx, `
UPDATE products
SET reserved = 0,
    reserved_by = NULL,
    reserved_until = NULL
WHERE id = ANY($1)
  AND reserved_by = $2
  AND available = 1
`, productIDs, userID)
	if err != nil {
		return 0, fmt.Errorf("release products: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Consume decrements stock for a finalized purchase. It reports false when
// the unit is gone or reserved by another user.
func (r *ProductRepo) Consume(ctx context.Context, productID, userID int64) (bool, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return false, err
	}

	tag, err := db.Exec(ctx, `
UPDATE products
SET available = available - 1,
    reserved = 0,
    reserved_by = NULL,
    reserved_until = NULL
WHERE id = $1
  AND available > 0
  AND (reserved_by IS NULL OR reserved_by = $2)
`, productID, userID)
	if err != nil {
		return false, fmt.Errorf("consume product: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ProductRepo) DeleteMany(ctx context.Context, productIDs []int64) error {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}
	if len(productIDs) == 0 {
		return nil
	}

	if _, err := db.Exec(ctx, `DELETE FROM products WHERE id = ANY($1) AND available = 0`, productIDs); err != nil {
		return fmt.Errorf("delete products: %w", err)
	}
	return nil
}

// ReleaseExpired drops reservations past their deadline that no open
// gateway invoice still references.
func (r *ProductRepo) ReleaseExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	db, err := conn(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := db.Query(ctx, `
WITH expired AS (
	SELECT p.id, p.reserved_by
	FROM products p
	WHERE p.reserved = 1
	  AND p.available = 1
	  AND p.reserved_until < $1
	  AND NOT EXISTS (
		SELECT 1
		FROM pending_deposits d
		WHERE d.status IN ('pending', 'finalizing')
		  AND d.user_id = p.reserved_by
		  AND d.basket_snapshot @> jsonb_build_array(jsonb_build_object('product_id', p.id))
	  )
	ORDER BY p.reserved_until
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
UPDATE products p
SET reserved = 0,
    reserved_by = NULL,
    reserved_until = NULL
FROM expired
WHERE p.id = expired.id
RETURNING p.id, expired.reserved_by
`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("release expired reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ProductID, &res.UserID); err != nil {
			return nil, fmt.Errorf("scan released reservation: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate released reservations: %w", err)
	}
	return out, nil
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var p model.Product
	err := row.Scan(
		&p.ID,
		&p.City,
		&p.District,
		&p.Type,
		&p.Size,
		&p.Name,
		&p.Price,
		&p.Available,
		&p.Reserved,
		&p.ReservedBy,
		&p.ReservedUntil,
		&p.OriginalText,
		&p.AddedBy,
		&p.AddedAt,
	)
	return p, err
}
