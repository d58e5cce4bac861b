package ledger

import (
	"errors"
	"fmt"
)

// Status classifies a product's stock level for downstream dashboards.
type Status string

const (
	// StatusInStock means stock is above the low-stock threshold.
	StatusInStock Status = "in-stock"
	// StatusLowStock means stock is positive but at or below the threshold.
	StatusLowStock Status = "low-stock"
	// StatusOutOfStock means stock is exactly zero.
	StatusOutOfStock Status = "out-of-stock"
)

// StatusFor derives the status classification from a stock level.
func StatusFor(stock, lowStockThreshold int) Status {
	switch {
	case stock == 0:
		return StatusOutOfStock
	case stock <= lowStockThreshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// Level is the result of a stock adjustment.
type Level struct {
	ProductID int64
	Stock     int
	Status    Status
}

// Shortage describes a decrement that would drive stock negative.
type Shortage struct {
	ProductID int64
	Requested int
	Available int
}

// ShortageError is returned when an adjustment fails its precondition.
// It is deterministic and must never be retried.
type ShortageError struct {
	Shortage
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *ShortageError) Unwrap() error { return ErrInsufficientStock }

// ErrInsufficientStock is the sentinel wrapped by ShortageError.
var ErrInsufficientStock = errors.New("ledger: insufficient stock")

// ErrProductNotFound indicates an unknown or archived product.
var ErrProductNotFound = errors.New("ledger: product not found")

// ErrConflict indicates a transient serialization conflict in storage.
// Adjustments are retried a bounded number of times before surfacing it.
var ErrConflict = errors.New("ledger: concurrent update conflict")
