// Package sales turns a cart of line items into a committed, immutable sale.
package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stockline/stockline/internal/ledger"
	"github.com/stockline/stockline/internal/pricing"
	"github.com/stockline/stockline/internal/shared"
)

// RepositoryPort abstracts sale persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ProductSnapshot(ctx context.Context, productID int64) (ProductSnapshot, error)
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error)
	DailyStats(ctx context.Context, limit int) ([]DailyStat, error)
	MarkRefunded(ctx context.Context, id int64) (bool, error)
}

// TxRepository exposes the operations that persist a committed sale.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertSaleLines(ctx context.Context, saleID int64, lines []SaleLine) error
}

// LedgerPort is the stock mutation entry point.
type LedgerPort interface {
	Adjust(ctx context.Context, productID int64, delta int) (ledger.Level, error)
}

// AllocatorPort hands out invoice numbers.
type AllocatorPort interface {
	Next(ctx context.Context) (string, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts committed and rejected sales and issued invoices.
type MetricsPort interface {
	SaleCommitted()
	SaleRejected(reason string)
	InvoiceIssued()
}

// Service orchestrates the sale transaction: Validating, Reserving,
// Committed. Once Reserving begins the call runs to completion, either a
// full commit or a full unwind; there is no external cancellation mid-flight.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	allocator AllocatorPort
	audit     AuditPort
	metrics   MetricsPort
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger LedgerPort, allocator AllocatorPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, allocator: allocator, audit: audit, metrics: metrics, logger: logger}
}

// LineInput is one requested cart line. UnitPrice, when set, is a manual
// price override that bypasses threshold pricing.
type LineInput struct {
	ProductID int64
	Quantity  int
	UnitPrice *decimal.Decimal
}

// CreateSaleInput is the full cart submission.
type CreateSaleInput struct {
	Lines           []LineInput
	DiscountType    DiscountType
	DiscountValue   decimal.Decimal
	PaymentMethod   string
	PaymentStatus   string
	CustomerName    string
	CustomerContact string
	CustomerEmail   string
	CustomerAddress string
	Notes           string
}

type reservation struct {
	productID int64
	quantity  int
}

// CreateSale validates the cart, reserves stock line by line, computes the
// totals and persists the sale under a freshly allocated invoice number.
// Any failure after reservation triggers a compensating reversal; callers
// never observe a half-reserved sale.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (Sale, error) {
	sale, err := s.createSale(ctx, input)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SaleRejected(rejectReason(err))
		}
		return Sale{}, err
	}
	if s.metrics != nil {
		s.metrics.SaleCommitted()
	}
	return sale, nil
}

func (s *Service) createSale(ctx context.Context, input CreateSaleInput) (Sale, error) {
	if len(input.Lines) == 0 {
		return Sale{}, ErrEmptyCart
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Quantity <= 0 {
			return Sale{}, ErrInvalidLine
		}
	}
	// Reject bad discounts before anything is reserved.
	if _, err := computeDiscount(decimal.Zero, input.DiscountType, input.DiscountValue); err != nil {
		return Sale{}, err
	}

	// Validating: snapshot every product and collect all shortages so the
	// caller learns about the whole cart at once. This read is only a
	// fast-fail; the authoritative check happens inside the reservation.
	snapshots := make(map[int64]ProductSnapshot, len(input.Lines))
	var shortages []ledger.Shortage
	for _, line := range input.Lines {
		snap, ok := snapshots[line.ProductID]
		if !ok {
			var err error
			snap, err = s.repo.ProductSnapshot(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, ledger.ErrProductNotFound) {
					return Sale{}, fmt.Errorf("sales: product %d: %w", line.ProductID, err)
				}
				return Sale{}, err
			}
			snapshots[line.ProductID] = snap
		}
		if snap.Stock < line.Quantity {
			shortages = append(shortages, ledger.Shortage{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: snap.Stock,
			})
		}
	}
	if len(shortages) > 0 {
		return Sale{}, &InsufficientStockError{Shortages: shortages}
	}

	// Price each line against its final committed quantity. The price read
	// during validation is irrelevant; only this resolution is persisted.
	lines := make([]SaleLine, len(input.Lines))
	subtotal := decimal.Zero
	for i, line := range input.Lines {
		snap := snapshots[line.ProductID]
		unitPrice, err := pricing.Resolve(pricing.PriceSpec{
			RetailPrice:        snap.RetailPrice,
			WholesalePrice:     snap.WholesalePrice,
			WholesaleThreshold: snap.WholesaleThreshold,
		}, line.Quantity, line.UnitPrice)
		if err != nil {
			return Sale{}, err
		}
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		lines[i] = SaleLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		}
		subtotal = subtotal.Add(lineTotal)
	}

	// Reserving: adjust in ascending product order so two carts touching
	// the same products never lock them in opposite order.
	order := make([]int, len(input.Lines))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return input.Lines[order[a]].ProductID < input.Lines[order[b]].ProductID
	})

	var applied []reservation
	for _, idx := range order {
		line := input.Lines[idx]
		if _, err := s.ledger.Adjust(ctx, line.ProductID, -line.Quantity); err != nil {
			s.unwind(ctx, applied)
			var shortage *ledger.ShortageError
			if errors.As(err, &shortage) {
				return Sale{}, &InsufficientStockError{Shortages: []ledger.Shortage{shortage.Shortage}}
			}
			return Sale{}, err
		}
		applied = append(applied, reservation{productID: line.ProductID, quantity: line.Quantity})
	}

	discountAmount, err := computeDiscount(subtotal, input.DiscountType, input.DiscountValue)
	if err != nil {
		s.unwind(ctx, applied)
		return Sale{}, err
	}
	total := subtotal.Sub(discountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	invoiceNumber, err := s.allocator.Next(ctx)
	if err != nil {
		s.unwind(ctx, applied)
		return Sale{}, err
	}
	if s.metrics != nil {
		s.metrics.InvoiceIssued()
	}

	discountType := input.DiscountType
	if discountType == "" {
		discountType = DiscountNone
	}
	discountValue := input.DiscountValue
	if discountType == DiscountNone {
		discountValue = decimal.Zero
	}
	sale := Sale{
		InvoiceNumber:   invoiceNumber,
		Lines:           lines,
		DiscountType:    discountType,
		DiscountValue:   discountValue,
		Subtotal:        subtotal,
		DiscountAmount:  discountAmount,
		Total:           total,
		PaymentMethod:   defaultString(input.PaymentMethod, "cash"),
		PaymentStatus:   defaultString(input.PaymentStatus, "paid"),
		CustomerName:    input.CustomerName,
		CustomerContact: input.CustomerContact,
		CustomerEmail:   input.CustomerEmail,
		CustomerAddress: input.CustomerAddress,
		Notes:           input.Notes,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saleID, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = saleID
		for i := range sale.Lines {
			sale.Lines[i].SaleID = saleID
		}
		return tx.InsertSaleLines(ctx, saleID, sale.Lines)
	})
	if err != nil {
		// Stock was taken but no sale record exists; give it back.
		s.unwind(ctx, applied)
		return Sale{}, err
	}

	s.recordAudit(ctx, "SALE_COMMIT", sale.ID, map[string]any{
		"invoice_number": sale.InvoiceNumber,
		"total":          sale.Total.String(),
		"lines":          len(sale.Lines),
	})
	return sale, nil
}

// unwind reverses already-applied reservations in reverse order. Reversal is
// a credit and cannot fail a stock precondition; any other error is logged
// because there is no caller who could act on it.
func (s *Service) unwind(ctx context.Context, applied []reservation) {
	for i := len(applied) - 1; i >= 0; i-- {
		r := applied[i]
		if _, err := s.ledger.Adjust(ctx, r.productID, r.quantity); err != nil {
			s.logger.Error("sale unwind failed",
				slog.Int64("product_id", r.productID),
				slog.Int("quantity", r.quantity),
				slog.Any("error", err))
		}
	}
}

// Refund credits every line's quantity back to stock and flags the sale.
// The conditional flag flip is the idempotency guard: a refund observed
// twice restocks only once.
func (s *Service) Refund(ctx context.Context, saleID int64) (Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return Sale{}, err
	}
	if sale.Refunded {
		return Sale{}, ErrAlreadyRefunded
	}
	flipped, err := s.repo.MarkRefunded(ctx, saleID)
	if err != nil {
		return Sale{}, err
	}
	if !flipped {
		return Sale{}, ErrAlreadyRefunded
	}
	for _, line := range sale.Lines {
		if _, err := s.ledger.Adjust(ctx, line.ProductID, line.Quantity); err != nil {
			if errors.Is(err, ledger.ErrProductNotFound) {
				s.logger.Warn("refund skipped missing product",
					slog.Int64("sale_id", saleID),
					slog.Int64("product_id", line.ProductID))
				continue
			}
			s.logger.Error("refund restock failed",
				slog.Int64("sale_id", saleID),
				slog.Int64("product_id", line.ProductID),
				slog.Any("error", err))
		}
	}
	sale.Refunded = true
	s.recordAudit(ctx, "SALE_REFUND", saleID, map[string]any{"invoice_number": sale.InvoiceNumber})
	return sale, nil
}

// Get returns one committed sale.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// List returns committed sales, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	return s.repo.ListSales(ctx, filter)
}

// DailyStats returns per-day totals for dashboards.
func (s *Service) DailyStats(ctx context.Context, limit int) ([]DailyStat, error) {
	if limit <= 0 {
		limit = 30
	}
	return s.repo.DailyStats(ctx, limit)
}

func (s *Service) recordAudit(ctx context.Context, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "sale",
		EntityID: fmt.Sprintf("%d", saleID),
		Meta:     meta,
	})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrInvalidLine), errors.Is(err, ErrInvalidDiscount),
		errors.Is(err, pricing.ErrInvalidPrice):
		return "validation"
	case errors.Is(err, ledger.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
