package sales

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockline/stockline/internal/ledger"
	"github.com/stockline/stockline/internal/platform/db"
)

// Repository persists sales in PostgreSQL.
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
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ProductSnapshot reads the product fields needed for validation and pricing.
func (r *Repository) ProductSnapshot(ctx context.Context, productID int64) (ProductSnapshot, error) {
	var snap ProductSnapshot
	err := r.pool.QueryRow(ctx, `
SELECT id, name, retail_price, wholesale_price, wholesale_threshold, stock
FROM products WHERE id = $1 AND NOT archived`, productID).
		Scan(&snap.ID, &snap.Name, &snap.RetailPrice, &snap.WholesalePrice, &snap.WholesaleThreshold, &snap.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductSnapshot{}, ledger.ErrProductNotFound
	}
	if err != nil {
		return ProductSnapshot{}, err
	}
	return snap, nil
}

func (t *txRepository) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
INSERT INTO sales (invoice_number, discount_type, discount_value, subtotal, discount_amount, total,
	payment_method, payment_status, customer_name, customer_contact, customer_email, customer_address,
	notes, refunded, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, FALSE, NOW())
RETURNING id`,
		sale.InvoiceNumber, string(sale.DiscountType), sale.DiscountValue, sale.Subtotal,
		sale.DiscountAmount, sale.Total, sale.PaymentMethod, sale.PaymentStatus,
		sale.CustomerName, sale.CustomerContact, sale.CustomerEmail, sale.CustomerAddress, sale.Notes).
		Scan(&id)
	return id, err
}

func (t *txRepository) InsertSaleLines(ctx context.Context, saleID int64, lines []SaleLine) error {
	for _, line := range lines {
		_, err := t.tx.Exec(ctx, `
INSERT INTO sale_lines (sale_id, product_id, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5)`,
			saleID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetSale loads a sale with its lines.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	var sale Sale
	var discountType string
	err := r.pool.QueryRow(ctx, `
SELECT id, invoice_number, discount_type, discount_value, subtotal, discount_amount, total,
	payment_method, payment_status, customer_name, customer_contact, customer_email,
	customer_address, notes, refunded, created_at
FROM sales WHERE id = $1`, id).
		Scan(&sale.ID, &sale.InvoiceNumber, &discountType, &sale.DiscountValue, &sale.Subtotal,
			&sale.DiscountAmount, &sale.Total, &sale.PaymentMethod, &sale.PaymentStatus,
			&sale.CustomerName, &sale.CustomerContact, &sale.CustomerEmail, &sale.CustomerAddress,
			&sale.Notes, &sale.Refunded, &sale.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	if err != nil {
		return Sale{}, err
	}
	sale.DiscountType = DiscountType(discountType)

	rows, err := r.pool.Query(ctx, `
SELECT id, sale_id, product_id, quantity, unit_price, line_total
FROM sale_lines WHERE sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return Sale{}, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	return sale, rows.Err()
}

// ListSales returns sale headers newest first. Lines are not joined here;
// detail views load them via GetSale.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += ` AND created_at >= $1`
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		if len(args) == 2 {
			where += ` AND created_at <= $2`
		} else {
			where += ` AND created_at <= $1`
		}
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if offset < 0 {
		offset = 0
	}
	query := `
SELECT id, invoice_number, discount_type, discount_value, subtotal, discount_amount, total,
	payment_method, payment_status, customer_name, customer_contact, customer_email,
	customer_address, notes, refunded, created_at
FROM sales` + where + ` ORDER BY created_at DESC, id DESC LIMIT ` + placeholder(len(args)+1) + ` OFFSET ` + placeholder(len(args)+2)
	args = append(args, filter.Limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		var sale Sale
		var discountType string
		if err := rows.Scan(&sale.ID, &sale.InvoiceNumber, &discountType, &sale.DiscountValue,
			&sale.Subtotal, &sale.DiscountAmount, &sale.Total, &sale.PaymentMethod, &sale.PaymentStatus,
			&sale.CustomerName, &sale.CustomerContact, &sale.CustomerEmail, &sale.CustomerAddress,
			&sale.Notes, &sale.Refunded, &sale.CreatedAt); err != nil {
			return nil, 0, err
		}
		sale.DiscountType = DiscountType(discountType)
		sales = append(sales, sale)
	}
	return sales, total, rows.Err()
}

// DailyStats groups committed (non-refunded) sales per day.
func (r *Repository) DailyStats(ctx context.Context, limit int) ([]DailyStat, error) {
	rows, err := r.pool.Query(ctx, `
SELECT date_trunc('day', created_at) AS day, COALESCE(SUM(total), 0), COUNT(*)
FROM sales WHERE NOT refunded
GROUP BY day ORDER BY day DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var stat DailyStat
		var day time.Time
		if err := rows.Scan(&day, &stat.Total, &stat.Transactions); err != nil {
			return nil, err
		}
		stat.Day = day
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// MarkRefunded flips the refund flag once. The conditional WHERE clause is
// the idempotency guard: the second caller sees zero rows affected.
func (r *Repository) MarkRefunded(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE sales SET refunded = TRUE WHERE id = $1 AND NOT refunded`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
