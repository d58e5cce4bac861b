package purchases

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockline/stockline/internal/platform/db"
)

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchases repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (t *txRepository) InsertOrder(ctx context.Context, order PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
INSERT INTO purchase_orders (reference, supplier_name, supplier_contact, status, notes, total_cost,
	expected_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
RETURNING id`,
		order.Reference, order.SupplierName, order.SupplierContact, string(order.Status),
		order.Notes, order.TotalCost, order.ExpectedAt).
		Scan(&id)
	return id, err
}

func (t *txRepository) InsertItems(ctx context.Context, orderID int64, items []PurchaseItem) error {
	for _, item := range items {
		_, err := t.tx.Exec(ctx, `
INSERT INTO purchase_order_items (order_id, product_id, quantity, unit_cost)
VALUES ($1, $2, $3, $4)`,
			orderID, item.ProductID, item.Quantity, item.UnitCost)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetOrder loads an order with its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	var order PurchaseOrder
	var status string
	err := r.pool.QueryRow(ctx, `
SELECT id, reference, supplier_name, supplier_contact, status, notes, total_cost,
	expected_at, received_at, created_at
FROM purchase_orders WHERE id = $1`, id).
		Scan(&order.ID, &order.Reference, &order.SupplierName, &order.SupplierContact, &status,
			&order.Notes, &order.TotalCost, &order.ExpectedAt, &order.ReceivedAt, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrOrderNotFound
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.Status = Status(status)

	rows, err := r.pool.Query(ctx, `
SELECT id, order_id, product_id, quantity, unit_cost
FROM purchase_order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item PurchaseItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitCost); err != nil {
			return PurchaseOrder{}, err
		}
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}

// ListOrders returns order headers newest first.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $1`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if offset < 0 {
		offset = 0
	}
	query := `
SELECT id, reference, supplier_name, supplier_contact, status, notes, total_cost,
	expected_at, received_at, created_at
FROM purchase_orders` + where + ` ORDER BY created_at DESC, id DESC LIMIT ` +
		placeholder(len(args)+1) + ` OFFSET ` + placeholder(len(args)+2)
	args = append(args, filter.Limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		var order PurchaseOrder
		var status string
		if err := rows.Scan(&order.ID, &order.Reference, &order.SupplierName, &order.SupplierContact,
			&status, &order.Notes, &order.TotalCost, &order.ExpectedAt, &order.ReceivedAt,
			&order.CreatedAt); err != nil {
			return nil, 0, err
		}
		order.Status = Status(status)
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// MarkReceived flips a pending order to received once.
func (r *Repository) MarkReceived(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE purchase_orders SET status = 'received', received_at = $2
WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled flips a pending order to cancelled once.
func (r *Repository) MarkCancelled(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE purchase_orders SET status = 'cancelled'
WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
