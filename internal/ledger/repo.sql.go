package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists stock levels in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const adjustSQL = `
WITH prev AS (
	SELECT status FROM products WHERE id = $1 AND NOT archived
)
UPDATE products p
SET stock = p.stock + $2,
    status = CASE
        WHEN p.stock + $2 = 0 THEN 'out-of-stock'
        WHEN p.stock + $2 <= p.low_stock_threshold THEN 'low-stock'
        ELSE 'in-stock'
    END,
    updated_at = NOW()
FROM prev
WHERE p.id = $1 AND NOT p.archived AND p.stock + $2 >= 0
RETURNING p.stock, p.status, prev.status`

// Adjust performs the single read-check-write the whole engine relies on.
// The precondition stock+delta >= 0 is part of the UPDATE's WHERE clause, so
// Postgres serializes concurrent adjustments on the row lock and no two
// decrements can both pass the check when only one has room.
func (r *Repository) Adjust(ctx context.Context, productID int64, delta int) (Level, Status, error) {
	if r == nil {
		return Level{}, "", errors.New("ledger repository not initialised")
	}
	var (
		stock      int
		status     Status
		prevStatus Status
	)
	err := r.pool.QueryRow(ctx, adjustSQL, productID, delta).Scan(&stock, &status, &prevStatus)
	if err == nil {
		return Level{ProductID: productID, Stock: stock, Status: status}, prevStatus, nil
	}
	if isSerializationFailure(err) {
		return Level{}, "", ErrConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Level{}, "", err
	}

	// The conditional update matched nothing: either the product is missing
	// or the decrement would drive stock negative.
	var available int
	err = r.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1 AND NOT archived`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return Level{}, "", ErrProductNotFound
	}
	if err != nil {
		return Level{}, "", err
	}
	return Level{}, "", &ShortageError{Shortage{ProductID: productID, Requested: -delta, Available: available}}
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
