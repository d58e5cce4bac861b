// Package pricing resolves the unit price charged for a sale line.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice indicates a manual price override below zero.
var ErrInvalidPrice = errors.New("pricing: explicit unit price must be >= 0")

// PriceSpec is the pricing snapshot of a product at resolution time.
type PriceSpec struct {
	RetailPrice        decimal.Decimal
	WholesalePrice     decimal.Decimal
	WholesaleThreshold int
}

// Resolve returns the unit price for the given quantity.
//
// A non-nil override wins unconditionally (cashier-edited price) and must be
// >= 0. Otherwise the wholesale price applies once quantity reaches the
// threshold. The comparison is >=, so a threshold of 1 prices every sale at
// wholesale.
func Resolve(spec PriceSpec, quantity int, override *decimal.Decimal) (decimal.Decimal, error) {
	if override != nil {
		if override.IsNegative() {
			return decimal.Zero, ErrInvalidPrice
		}
		return *override, nil
	}
	if spec.WholesaleThreshold >= 1 && quantity >= spec.WholesaleThreshold {
		return spec.WholesalePrice, nil
	}
	return spec.RetailPrice, nil
}
