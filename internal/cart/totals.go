package cart

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Totals are the four monetary quantities derived from a cart plus the lines whose
// price could not be resolved.
type Totals struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	Shipping        decimal.Decimal `json:"shipping"`
	Total           decimal.Decimal `json:"total"`
	IncompleteLines []string        `json:"incomplete_lines"`
}

// Incomplete reports whether any line contributed zero because it had no price.
func (t Totals) Incomplete() bool {
	return len(t.IncompleteLines) > 0
}

// ComputeTotals is pure: subtotal is the sum of price times qty, discount comes from the
// coupon, and total never drops below zero. Missing prices count as zero and are listed
// in IncompleteLines. Negative shipping or discount is treated as zero.
func ComputeTotals(lines []Line, coupon *Coupon, shipping decimal.Decimal) Totals {
	totals := Totals{
		Subtotal:        decimal.Zero,
		Discount:        decimal.Zero,
		Shipping:        nonNegative(shipping),
		IncompleteLines: []string{},
	}
	for _, line := range lines {
		if !line.Price.Valid {
			totals.IncompleteLines = append(totals.IncompleteLines, line.LineID)
			continue
		}
		qty := line.Qty
		if qty < 0 {
			qty = 0
		}
		totals.Subtotal = totals.Subtotal.Add(line.Price.Decimal.Mul(decimal.NewFromInt(int64(qty))))
	}
	if coupon != nil {
		totals.Discount = nonNegative(coupon.Discount)
	}
	totals.Total = nonNegative(totals.Subtotal.Add(totals.Shipping).Sub(totals.Discount))
	return totals
}

// MaxQty is the largest quantity a line may hold.
const MaxQty = math.MaxInt32

// addQty sums two quantities that are already within [1, MaxQty], saturating at MaxQty.
func addQty(current, delta int) (int, bool) {
	if delta > MaxQty-current {
		return MaxQty, true
	}
	return current + delta, false
}

// QtyFromFloat floors a loosely typed quantity into [1, MaxQty]; NaN and values below
// one become one.
func QtyFromFloat(value float64) int {
	if math.IsNaN(value) || value < 1 {
		return 1
	}
	if value > MaxQty {
		return MaxQty
	}
	return int(math.Floor(value))
}

// ParseAmount parses a currency amount, returning zero for blank or malformed input.
func ParseAmount(value string) decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return amount
}

func nonNegative(value decimal.Decimal) decimal.Decimal {
	if value.IsNegative() {
		return decimal.Zero
	}
	return value
}
