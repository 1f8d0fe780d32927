package catalog

import "github.com/shopspring/decimal"

// PriceFields carries the loosely named price fields a catalog may send.
type PriceFields struct {
	SalePrice    decimal.NullDecimal `json:"sale_price"`
	RegularPrice decimal.NullDecimal `json:"regular_price"`
	Price        decimal.NullDecimal `json:"price"`
}

// Any reports whether at least one price field is present.
func (f PriceFields) Any() bool {
	return f.SalePrice.Valid || f.RegularPrice.Valid || f.Price.Valid
}

// ResolvePrice picks the unit price in priority order: sale price, regular price, then
// the generic price field. The first present value wins.
func ResolvePrice(f PriceFields) decimal.NullDecimal {
	for _, candidate := range []decimal.NullDecimal{f.SalePrice, f.RegularPrice, f.Price} {
		if candidate.Valid {
			return candidate
		}
	}
	return decimal.NullDecimal{}
}

// ResolveOldPrice returns the regular price only when it is strictly above the
// resolved unit price.
func ResolveOldPrice(f PriceFields) decimal.NullDecimal {
	price := ResolvePrice(f)
	if !price.Valid || !f.RegularPrice.Valid {
		return decimal.NullDecimal{}
	}
	if !f.RegularPrice.Decimal.GreaterThan(price.Decimal) {
		return decimal.NullDecimal{}
	}
	return f.RegularPrice
}
