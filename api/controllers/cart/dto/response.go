package dto

import (
	"github.com/ruddro420/storefront-cart/internal/cart"
)

// CartView is the cart as returned to clients.
type CartView struct {
	SessionID string       `json:"session_id"`
	Lines     []cart.Line  `json:"lines"`
	Coupon    *cart.Coupon `json:"coupon"`
	ItemCount int          `json:"item_count"`
	Totals    cart.Totals  `json:"totals"`
}

// MutationResponse pairs the outcome of a mutation with the resulting cart.
type MutationResponse struct {
	Changed  bool           `json:"changed"`
	Warnings []cart.Warning `json:"warnings"`
	Cart     CartView       `json:"cart"`
}

// StatusResponse is the in-cart affordance for one product selection.
type StatusResponse struct {
	LineID     string `json:"line_id"`
	InCart     bool   `json:"in_cart"`
	Affordance string `json:"affordance"`
	Qty        int    `json:"qty"`
}

// CartEvent is pushed over the subscription socket.
type CartEvent struct {
	Type string    `json:"type"`
	Cart *CartView `json:"cart,omitempty"`
}

// NewCartView renders state with totals computed for the given shipping amount.
func NewCartView(sessionID string, state cart.State, totals cart.Totals) CartView {
	lines := state.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	count := 0
	for _, line := range lines {
		count += line.Qty
	}
	return CartView{
		SessionID: sessionID,
		Lines:     lines,
		Coupon:    state.Coupon,
		ItemCount: count,
		Totals:    totals,
	}
}

// NewMutationResponse renders a mutation result.
func NewMutationResponse(result cart.Result, view CartView) MutationResponse {
	warnings := result.Warnings
	if warnings == nil {
		warnings = []cart.Warning{}
	}
	return MutationResponse{Changed: result.Changed, Warnings: warnings, Cart: view}
}
