package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InvoiceAllocator hands out unique, monotonically increasing invoice
// numbers backed by a counter row. The increment is a single atomic upsert,
// so concurrent submissions across service instances never collide; an
// in-process mutex would not be enough.
type InvoiceAllocator struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewInvoiceAllocator constructs the allocator.
func NewInvoiceAllocator(pool *pgxpool.Pool) *InvoiceAllocator {
	return &InvoiceAllocator{pool: pool, now: time.Now}
}

// Next allocates the next invoice number, e.g. INV-2026-000042.
// The sequence is scoped per calendar year.
func (a *InvoiceAllocator) Next(ctx context.Context) (string, error) {
	if a == nil {
		return "", errors.New("invoice allocator not initialised")
	}
	year := a.now().UTC().Year()
	var seq int64
	err := a.pool.QueryRow(ctx, `
INSERT INTO counters (name, last_value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET last_value = counters.last_value + 1
RETURNING last_value`, counterName(year)).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("sales: allocate invoice number: %w", err)
	}
	return formatInvoice(year, seq), nil
}

// Peek returns the number the next allocation would produce without
// consuming it. Used by the POS UI to preview the invoice number; it is
// advisory only and may be raced past by a concurrent sale.
func (a *InvoiceAllocator) Peek(ctx context.Context) (string, error) {
	if a == nil {
		return "", errors.New("invoice allocator not initialised")
	}
	year := a.now().UTC().Year()
	var last int64
	err := a.pool.QueryRow(ctx, `SELECT last_value FROM counters WHERE name = $1`, counterName(year)).Scan(&last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("sales: peek invoice number: %w", err)
	}
	return formatInvoice(year, last+1), nil
}

func counterName(year int) string {
	return fmt.Sprintf("invoice:%d", year)
}

func formatInvoice(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%06d", year, seq)
}
