package purchases

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the purchase order lifecycle state.
type Status string

const (
	// StatusPending means the order is placed but stock has not arrived.
	StatusPending Status = "pending"
	// StatusReceived means stock was credited; a terminal state.
	StatusReceived Status = "received"
	// StatusCancelled means the order was withdrawn before receipt.
	StatusCancelled Status = "cancelled"
)

// PurchaseItem is one ordered product with its agreed unit cost.
type PurchaseItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitCost  decimal.Decimal
}

// PurchaseOrder groups items expected from one supplier delivery.
type PurchaseOrder struct {
	ID              int64
	Reference       string
	SupplierName    string
	SupplierContact string
	Status          Status
	Notes           string
	Items           []PurchaseItem
	TotalCost       decimal.Decimal
	ExpectedAt      *time.Time
	ReceivedAt      *time.Time
	CreatedAt       time.Time
}

// ReceiveResult reports what a receipt actually credited. Items whose
// product vanished since ordering are listed, not fatal.
type ReceiveResult struct {
	Order           PurchaseOrder
	SkippedProducts []int64
}

// ListFilter narrows purchase order listings.
type ListFilter struct {
	Status Status
	Page   int
	Limit  int
}

var (
	// ErrOrderNotFound indicates an unknown purchase order id.
	ErrOrderNotFound = errors.New("purchases: order not found")
	// ErrEmptyOrder rejects an order without items.
	ErrEmptyOrder = errors.New("purchases: at least one item required")
	// ErrInvalidItem rejects an item without a product, positive quantity or
	// non-negative cost.
	ErrInvalidItem = errors.New("purchases: each item needs a product, a positive quantity and a non-negative cost")
	// ErrAlreadyReceived guards against double crediting of the same order.
	ErrAlreadyReceived = errors.New("purchases: order already received")
	// ErrNotPending rejects state changes on cancelled or received orders.
	ErrNotPending = errors.New("purchases: order is not pending")
)
