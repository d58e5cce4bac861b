// Package purchases manages supplier orders and the stock credits applied
// when deliveries arrive.
package purchases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockline/stockline/internal/ledger"
	"github.com/stockline/stockline/internal/shared"
)

// RepositoryPort abstracts purchase order persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	MarkReceived(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id int64) (bool, error)
}

// TxRepository persists an order and its items atomically.
type TxRepository interface {
	InsertOrder(ctx context.Context, order PurchaseOrder) (int64, error)
	InsertItems(ctx context.Context, orderID int64, items []PurchaseItem) error
}

// LedgerPort is the stock mutation entry point.
type LedgerPort interface {
	Adjust(ctx context.Context, productID int64, delta int) (ledger.Level, error)
}

// IdempotencyPort claims receipt keys so a retried receive call cannot
// credit stock twice.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts completed receipts.
type MetricsPort interface {
	PurchaseReceived()
}

// Service orchestrates purchase order creation and receipt.
type Service struct {
	repo        RepositoryPort
	ledger      LedgerPort
	idempotency IdempotencyPort
	audit       AuditPort
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger LedgerPort, idempotency IdempotencyPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		ledger:      ledger,
		idempotency: idempotency,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// ItemInput is one requested order item.
type ItemInput struct {
	ProductID int64
	Quantity  int
	UnitCost  decimal.Decimal
}

// CreateOrderInput is the full order submission.
type CreateOrderInput struct {
	Reference       string
	SupplierName    string
	SupplierContact string
	Notes           string
	ExpectedAt      *time.Time
	Items           []ItemInput
}

// CreateOrder validates and persists a pending purchase order. No stock
// moves here; stock changes only on receipt.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	if len(input.Items) == 0 {
		return PurchaseOrder{}, ErrEmptyOrder
	}
	items := make([]PurchaseItem, len(input.Items))
	total := decimal.Zero
	for i, item := range input.Items {
		if item.ProductID == 0 || item.Quantity <= 0 || item.UnitCost.IsNegative() {
			return PurchaseOrder{}, ErrInvalidItem
		}
		items[i] = PurchaseItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
		}
		total = total.Add(item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	order := PurchaseOrder{
		Reference:       input.Reference,
		SupplierName:    input.SupplierName,
		SupplierContact: input.SupplierContact,
		Status:          StatusPending,
		Notes:           input.Notes,
		Items:           items,
		TotalCost:       total,
		ExpectedAt:      input.ExpectedAt,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		for i := range order.Items {
			order.Items[i].OrderID = orderID
		}
		return tx.InsertItems(ctx, orderID, order.Items)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, "PO_CREATE", order.ID, map[string]any{
		"reference": order.Reference,
		"supplier":  order.SupplierName,
		"items":     len(order.Items),
	})
	return order, nil
}

type credit struct {
	productID int64
	quantity  int
}

// Receive credits every item's quantity to stock and moves the order to
// received. The call is idempotent: the key claim plus the conditional
// status flip guarantee stock is credited at most once per order. Items
// whose product no longer exists are skipped and reported, so a delivery
// containing a since-archived product still completes.
func (s *Service) Receive(ctx context.Context, orderID int64) (ReceiveResult, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return ReceiveResult{}, err
	}
	switch order.Status {
	case StatusReceived:
		return ReceiveResult{}, ErrAlreadyReceived
	case StatusCancelled:
		return ReceiveResult{}, ErrNotPending
	}

	key := receiptKey(orderID)
	if err := s.idempotency.CheckAndInsert(ctx, key, "purchases"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return ReceiveResult{}, ErrAlreadyReceived
		}
		return ReceiveResult{}, err
	}

	var applied []credit
	var skipped []int64
	for _, item := range order.Items {
		if _, err := s.ledger.Adjust(ctx, item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, ledger.ErrProductNotFound) {
				s.logger.Warn("receipt skipped missing product",
					slog.Int64("order_id", orderID),
					slog.Int64("product_id", item.ProductID))
				skipped = append(skipped, item.ProductID)
				continue
			}
			s.unwind(ctx, applied)
			s.releaseKey(ctx, key)
			return ReceiveResult{}, err
		}
		applied = append(applied, credit{productID: item.ProductID, quantity: item.Quantity})
	}

	receivedAt := s.now()
	flipped, err := s.repo.MarkReceived(ctx, orderID, receivedAt)
	if err != nil {
		s.unwind(ctx, applied)
		s.releaseKey(ctx, key)
		return ReceiveResult{}, err
	}
	if !flipped {
		// Another caller flipped the status between our read and now.
		s.unwind(ctx, applied)
		s.releaseKey(ctx, key)
		return ReceiveResult{}, ErrAlreadyReceived
	}

	order.Status = StatusReceived
	order.ReceivedAt = &receivedAt
	if s.metrics != nil {
		s.metrics.PurchaseReceived()
	}
	s.recordAudit(ctx, "PO_RECEIVE", orderID, map[string]any{
		"reference": order.Reference,
		"credited":  len(applied),
		"skipped":   len(skipped),
	})
	return ReceiveResult{Order: order, SkippedProducts: skipped}, nil
}

// Cancel withdraws a pending order. Received orders cannot be cancelled;
// undoing a receipt is a manual stock correction, not a cancellation.
func (s *Service) Cancel(ctx context.Context, orderID int64) (PurchaseOrder, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if order.Status != StatusPending {
		return PurchaseOrder{}, ErrNotPending
	}
	flipped, err := s.repo.MarkCancelled(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !flipped {
		return PurchaseOrder{}, ErrNotPending
	}
	order.Status = StatusCancelled
	s.recordAudit(ctx, "PO_CANCEL", orderID, map[string]any{"reference": order.Reference})
	return order, nil
}

// Get returns one purchase order with its items.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns purchase orders, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	return s.repo.ListOrders(ctx, filter)
}

// Pending returns orders still awaiting delivery.
func (s *Service) Pending(ctx context.Context) ([]PurchaseOrder, error) {
	orders, _, err := s.repo.ListOrders(ctx, ListFilter{Status: StatusPending, Page: 1, Limit: 100})
	return orders, err
}

func (s *Service) unwind(ctx context.Context, applied []credit) {
	for i := len(applied) - 1; i >= 0; i-- {
		c := applied[i]
		if _, err := s.ledger.Adjust(ctx, c.productID, -c.quantity); err != nil {
			// The credit may already have been sold; nothing safe to do but log.
			s.logger.Error("receipt unwind failed",
				slog.Int64("product_id", c.productID),
				slog.Int("quantity", c.quantity),
				slog.Any("error", err))
		}
	}
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if err := s.idempotency.Delete(ctx, key); err != nil {
		s.logger.Error("release idempotency key failed",
			slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "purchase_order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}

func receiptKey(orderID int64) string {
	return fmt.Sprintf("po:receive:%d", orderID)
}
