package dto

import "encoding/json"

// AddItemRequest is a canonical line snapshot plus the quantity to add. Money travels as
// decimal strings so nothing is lost to float rounding.
type AddItemRequest struct {
	ProductID    string            `json:"product_id" validate:"required,max=128"`
	VariantID    *string           `json:"variant_id,omitempty" validate:"omitempty,max=128"`
	Name         string            `json:"name" validate:"max=512"`
	Image        *string           `json:"image,omitempty"`
	Category     *string           `json:"category,omitempty"`
	Price        *string           `json:"price,omitempty" validate:"omitempty,numeric"`
	OldPrice     *string           `json:"old_price,omitempty" validate:"omitempty,numeric"`
	Stock        *int              `json:"stock,omitempty"`
	Attrs        map[string]string `json:"attrs,omitempty"`
	SKU          string            `json:"sku,omitempty" validate:"max=128"`
	VariantLabel string            `json:"variant_label,omitempty" validate:"max=256"`
	Qty          *int              `json:"qty,omitempty" validate:"omitempty,max=2147483647"`
}

// CatalogItemRequest carries a raw catalog product as the storefront received it.
type CatalogItemRequest struct {
	Product   json.RawMessage `json:"product" validate:"required"`
	VariantID string          `json:"variant_id,omitempty" validate:"max=128"`
	Qty       *int            `json:"qty,omitempty" validate:"omitempty,max=2147483647"`
}

// SetQtyRequest replaces a line's quantity. Values below one are clamped by the cart;
// the ceiling matches cart.MaxQty.
type SetQtyRequest struct {
	Qty *int `json:"qty" validate:"required,max=2147483647"`
}

// CouponRequest is an already validated coupon; the cart applies it as given.
type CouponRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	Discount string `json:"discount" validate:"required,numeric"`
	Type     string `json:"type" validate:"required"`
	Value    string `json:"value" validate:"omitempty,numeric"`
}
