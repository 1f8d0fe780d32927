package cart

import "strings"

const (
	baseVariant      = "base"
	unknownProductID = "?"
	lineIDSeparator  = "::"
)

// MakeLineID derives the identity of a cart line from its product and optional variant.
// A nil or blank variant maps to the product itself.
func MakeLineID(productID string, variantID *string) string {
	product := strings.TrimSpace(productID)
	if product == "" {
		product = unknownProductID
	}
	variant := baseVariant
	if variantID != nil {
		if v := strings.TrimSpace(*variantID); v != "" {
			variant = v
		}
	}
	return product + lineIDSeparator + variant
}

// normalizeVariantID collapses blank variants to nil so equal lines compare equal.
func normalizeVariantID(variantID *string) *string {
	if variantID == nil {
		return nil
	}
	v := strings.TrimSpace(*variantID)
	if v == "" {
		return nil
	}
	return &v
}
