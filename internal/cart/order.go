package cart

import "github.com/shopspring/decimal"

// OrderLine is the per-line payload handed to order submission.
type OrderLine struct {
	ProductID string              `json:"product_id"`
	VariantID *string             `json:"variant_id"`
	Qty       int                 `json:"qty"`
	Price     decimal.NullDecimal `json:"price"`
	SKU       string              `json:"sku"`
}

// OrderSnapshot is a frozen copy of the cart at checkout time. It shares no memory with
// the store it came from.
type OrderSnapshot struct {
	Lines             []OrderLine `json:"lines"`
	Coupon            *Coupon     `json:"coupon"`
	Totals            Totals      `json:"totals"`
	IncompletePricing bool        `json:"incomplete_pricing"`
}

// NewOrderSnapshot freezes state into the order payload.
func NewOrderSnapshot(state State, shipping decimal.Decimal) OrderSnapshot {
	frozen := state.Clone()
	lines := make([]OrderLine, 0, len(frozen.Lines))
	for _, line := range frozen.Lines {
		lines = append(lines, OrderLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Qty:       line.Qty,
			Price:     line.Price,
			SKU:       line.SKU,
		})
	}
	totals := ComputeTotals(frozen.Lines, frozen.Coupon, shipping)
	return OrderSnapshot{
		Lines:             lines,
		Coupon:            frozen.Coupon,
		Totals:            totals,
		IncompletePricing: totals.Incomplete(),
	}
}
