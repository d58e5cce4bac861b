package sales

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockline/stockline/internal/ledger"
)

// DiscountType tags the order-level discount variant.
type DiscountType string

const (
	// DiscountNone applies no discount; the value field is ignored.
	DiscountNone DiscountType = "none"
	// DiscountPercentage deducts value% of the subtotal, value in [0,100].
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed deducts a flat amount, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// SaleLine is one committed product/quantity pair. The unit price is frozen
// at commit time and never re-read from the product afterwards.
type SaleLine struct {
	ID        int64
	SaleID    int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Sale is immutable once committed: it either exists in full or not at all.
type Sale struct {
	ID              int64
	InvoiceNumber   string
	Lines           []SaleLine
	DiscountType    DiscountType
	DiscountValue   decimal.Decimal
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	Total           decimal.Decimal
	PaymentMethod   string
	PaymentStatus   string
	CustomerName    string
	CustomerContact string
	CustomerEmail   string
	CustomerAddress string
	Notes           string
	Refunded        bool
	CreatedAt       time.Time
}

// ProductSnapshot is the product state read during validation and pricing.
type ProductSnapshot struct {
	ID                 int64
	Name               string
	RetailPrice        decimal.Decimal
	WholesalePrice     decimal.Decimal
	WholesaleThreshold int
	Stock              int
}

// DailyStat aggregates committed sales per calendar day.
type DailyStat struct {
	Day          time.Time
	Total        decimal.Decimal
	Transactions int
}

// ListFilter narrows sale listings.
type ListFilter struct {
	From  time.Time
	To    time.Time
	Page  int
	Limit int
}

var (
	// ErrEmptyCart rejects a sale with no lines.
	ErrEmptyCart = errors.New("sales: at least one line required")
	// ErrInvalidLine rejects a line without a product or positive quantity.
	ErrInvalidLine = errors.New("sales: each line needs a product and a positive quantity")
	// ErrInvalidDiscount rejects an out-of-range discount value or unknown tag.
	ErrInvalidDiscount = errors.New("sales: invalid discount")
	// ErrSaleNotFound indicates an unknown sale id.
	ErrSaleNotFound = errors.New("sales: sale not found")
	// ErrAlreadyRefunded guards against double restocking on refund.
	ErrAlreadyRefunded = errors.New("sales: sale already refunded")
)

// InsufficientStockError reports every line that cannot be satisfied along
// with the quantity actually available.
type InsufficientStockError struct {
	Shortages []ledger.Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("product %d: requested %d, available %d", s.ProductID, s.Requested, s.Available))
	}
	return "sales: insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Unwrap() error { return ledger.ErrInsufficientStock }

// computeDiscount resolves the tagged discount variant against a subtotal.
// The tag is checked exhaustively; unknown tags are a validation error.
func computeDiscount(subtotal decimal.Decimal, tag DiscountType, value decimal.Decimal) (decimal.Decimal, error) {
	switch tag {
	case DiscountNone, "":
		return decimal.Zero, nil
	case DiscountPercentage:
		if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, fmt.Errorf("%w: percentage must be within [0,100]", ErrInvalidDiscount)
		}
		return subtotal.Mul(value).Div(decimal.NewFromInt(100)), nil
	case DiscountFixed:
		if value.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: fixed amount must be >= 0", ErrInvalidDiscount)
		}
		// A fixed discount can never push the total below zero.
		if value.GreaterThan(subtotal) {
			return subtotal, nil
		}
		return value, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown discount type %q", ErrInvalidDiscount, tag)
	}
}
