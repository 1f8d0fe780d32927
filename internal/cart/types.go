package cart

import (
	"strings"

	"github.com/ruddro420/storefront-cart/pkg/enums"
	"github.com/shopspring/decimal"
)

// Line is one product or variant in the cart with the display snapshot captured when
// it was last added.
type Line struct {
	LineID       string              `json:"line_id"`
	ProductID    string              `json:"product_id"`
	VariantID    *string             `json:"variant_id"`
	Name         string              `json:"name"`
	Image        *string             `json:"image"`
	Category     *string             `json:"category"`
	Price        decimal.NullDecimal `json:"price"`
	OldPrice     decimal.NullDecimal `json:"old_price"`
	Qty          int                 `json:"qty"`
	Stock        *int                `json:"stock"`
	Attrs        map[string]string   `json:"attrs,omitempty"`
	SKU          string              `json:"sku,omitempty"`
	VariantLabel string              `json:"variant_label,omitempty"`
}

// LineInput is the canonical snapshot handed to AddItem.
type LineInput struct {
	ProductID    string
	VariantID    *string
	Name         string
	Image        *string
	Category     *string
	Price        decimal.NullDecimal
	OldPrice     decimal.NullDecimal
	Stock        *int
	Attrs        map[string]string
	SKU          string
	VariantLabel string
}

// Coupon is an already validated cart-wide discount. Discount is the absolute amount;
// Type and Value describe the rule that produced it.
type Coupon struct {
	Code     string           `json:"code"`
	Discount decimal.Decimal  `json:"discount"`
	Type     enums.CouponType `json:"type"`
	Value    decimal.Decimal  `json:"value"`
}

// State is the full cart: ordered lines unique by LineID plus at most one coupon.
type State struct {
	Lines  []Line  `json:"lines"`
	Coupon *Coupon `json:"coupon"`
}

// Warning reports a quantity the store adjusted instead of applying verbatim.
type Warning struct {
	LineID    string                    `json:"line_id"`
	Type      enums.CartItemWarningType `json:"type"`
	Requested int                       `json:"requested"`
	Applied   int                       `json:"applied"`
}

// Result describes the outcome of a mutation.
type Result struct {
	Changed  bool      `json:"changed"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Listener receives a private copy of the state after every mutation.
type Listener func(State)

func (l Line) clone() Line {
	out := l
	out.VariantID = cloneString(l.VariantID)
	out.Image = cloneString(l.Image)
	out.Category = cloneString(l.Category)
	out.Stock = cloneInt(l.Stock)
	out.Attrs = cloneAttrs(l.Attrs)
	return out
}

func (c *Coupon) clone() *Coupon {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// Clone returns a deep copy that shares nothing with s.
func (s State) Clone() State {
	out := State{Lines: make([]Line, len(s.Lines)), Coupon: s.Coupon.clone()}
	for i, line := range s.Lines {
		out.Lines[i] = line.clone()
	}
	return out
}

func (in LineInput) toLine(qty int) Line {
	line := Line{
		ProductID: strings.TrimSpace(in.ProductID),
		VariantID: normalizeVariantID(in.VariantID),
		Qty:       qty,
	}
	line.LineID = MakeLineID(line.ProductID, line.VariantID)
	line.applySnapshot(in)
	return line
}

// applySnapshot overwrites the display fields with the freshest snapshot.
func (l *Line) applySnapshot(in LineInput) {
	l.Name = in.Name
	l.Image = cloneString(in.Image)
	l.Category = cloneString(in.Category)
	l.Price = in.Price
	l.OldPrice = keepOldPrice(in.Price, in.OldPrice)
	l.Stock = cloneInt(in.Stock)
	l.Attrs = cloneAttrs(in.Attrs)
	l.SKU = in.SKU
	l.VariantLabel = in.VariantLabel
}

// keepOldPrice drops a reference price that is not strictly above the unit price.
func keepOldPrice(price, oldPrice decimal.NullDecimal) decimal.NullDecimal {
	if !price.Valid || !oldPrice.Valid || !oldPrice.Decimal.GreaterThan(price.Decimal) {
		return decimal.NullDecimal{}
	}
	return oldPrice
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneAttrs(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
