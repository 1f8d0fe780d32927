package catalog

import "github.com/ruddro420/storefront-cart/internal/cart"

// BuildLineInput produces the single canonical line snapshot for a product, or for one
// of its variants when v is non-nil. Variant prices win when the variant carries any;
// the variant image falls back to the product image.
func BuildLineInput(p Product, v *Variant) cart.LineInput {
	in := cart.LineInput{
		ProductID: p.ID,
		Name:      p.Name,
		Image:     p.Image,
		Category:  p.Category,
		Price:     ResolvePrice(p.Prices),
		OldPrice:  ResolveOldPrice(p.Prices),
		Stock:     p.Stock,
		SKU:       p.SKU,
	}
	if v == nil {
		return in
	}

	variantID := v.ID
	in.VariantID = &variantID
	if v.Prices.Any() {
		in.Price = ResolvePrice(v.Prices)
		in.OldPrice = ResolveOldPrice(v.Prices)
	}
	in.Stock = v.Stock
	if v.Image != nil {
		in.Image = v.Image
	}
	if v.SKU != "" {
		in.SKU = v.SKU
	}
	in.Attrs = v.Attrs()
	in.VariantLabel = v.Label()
	return in
}
