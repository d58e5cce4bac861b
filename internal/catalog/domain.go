// Package catalog manages products and categories: the records the ledger,
// sales and purchasing modules operate on.
package catalog

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/stockline/stockline/internal/ledger"
)

// Product is one sellable item. Stock and status are owned by the ledger;
// catalog writes never touch them except at creation.
type Product struct {
	ID                 int64
	Name               string
	Slug               string
	Barcode            string
	CategoryID         int64
	RetailPrice        decimal.Decimal
	WholesalePrice     decimal.Decimal
	WholesaleThreshold int
	Stock              int
	LowStockThreshold  int
	Status             ledger.Status
	Archived           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Category groups products for browsing and reporting.
type Category struct {
	ID        int64
	Name      string
	Slug      string
	CreatedAt time.Time
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search     string
	CategoryID int64
	Status     ledger.Status
	Archived   bool
	Page       int
	Limit      int
}

// Availability answers a stock check for one product.
type Availability struct {
	ProductID  int64
	Requested  int
	Available  int
	Sufficient bool
}

var (
	// ErrProductNotFound indicates an unknown or archived product.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCategoryNotFound indicates an unknown category.
	ErrCategoryNotFound = errors.New("catalog: category not found")
	// ErrDuplicateBarcode indicates the barcode is already registered.
	ErrDuplicateBarcode = errors.New("catalog: barcode already in use")
	// ErrDuplicateCategory indicates the category name is taken.
	ErrDuplicateCategory = errors.New("catalog: category already exists")
	// ErrCategoryInUse blocks deleting a category that still has products.
	ErrCategoryInUse = errors.New("catalog: category still has products")
	// ErrValidation wraps field-level validation failures.
	ErrValidation = errors.New("catalog: validation failed")
)

var slugStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify turns a display name into a URL-safe slug. Diacritics are
// stripped rather than dropped, so "Café Rojo" becomes "cafe-rojo".
func Slugify(name string) string {
	stripped, _, err := transform.String(slugStripper, name)
	if err != nil {
		stripped = name
	}
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
