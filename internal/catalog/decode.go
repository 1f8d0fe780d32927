package catalog

import (
	"encoding/json"

	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
	"github.com/ruddro420/storefront-cart/pkg/loosejson"
)

type fields map[string]json.RawMessage

// first returns the first present, non-null value among keys.
func (f fields) first(keys ...string) json.RawMessage {
	for _, key := range keys {
		if raw, ok := f[key]; ok && !loosejson.IsNull(raw) {
			return raw
		}
	}
	return nil
}

func (f fields) str(keys ...string) string {
	value, _ := loosejson.String(f.first(keys...))
	return value
}

// DecodeProduct normalizes a catalog product payload. Only the product id is required;
// every other field degrades to empty when absent or of an unexpected shape.
func DecodeProduct(data []byte) (Product, error) {
	if loosejson.Kind(data) != '{' {
		return Product{}, pkgerrors.New(pkgerrors.CodeValidation, "product payload must be a JSON object")
	}
	var raw fields
	if err := json.Unmarshal(data, &raw); err != nil {
		return Product{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed product payload")
	}
	id, ok := loosejson.String(raw["id"])
	if !ok {
		return Product{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	product := Product{
		ID:       id,
		Name:     raw.str("name", "title"),
		SKU:      raw.str("sku"),
		Prices:   decodePrices(raw),
		Stock:    loosejson.Int(raw.first("stock", "stock_quantity")),
		Image:    decodeImage(raw),
		Category: decodeCategory(raw),
		Variants: decodeVariants(raw.first("variants", "variations")),
	}
	return product, nil
}

func decodePrices(raw fields) PriceFields {
	return PriceFields{
		SalePrice:    loosejson.Decimal(raw["sale_price"]),
		RegularPrice: loosejson.Decimal(raw["regular_price"]),
		Price:        loosejson.Decimal(raw["price"]),
	}
}

// decodeImage accepts "image" as a URL string or {src|url} object, falling back to the
// first entry of "images".
func decodeImage(raw fields) *string {
	if src := imageSource(raw["image"]); src != "" {
		return &src
	}
	var images []json.RawMessage
	if loosejson.Kind(raw["images"]) == '[' && json.Unmarshal(raw["images"], &images) == nil {
		for _, image := range images {
			if src := imageSource(image); src != "" {
				return &src
			}
		}
	}
	return nil
}

func imageSource(raw json.RawMessage) string {
	switch loosejson.Kind(raw) {
	case '"':
		src, _ := loosejson.String(raw)
		return src
	case '{':
		var obj fields
		if json.Unmarshal(raw, &obj) != nil {
			return ""
		}
		return obj.str("src", "url")
	default:
		return ""
	}
}

func decodeCategory(raw fields) *string {
	if name := categoryName(raw["category"]); name != "" {
		return &name
	}
	var categories []json.RawMessage
	if loosejson.Kind(raw["categories"]) == '[' && json.Unmarshal(raw["categories"], &categories) == nil {
		for _, category := range categories {
			if name := categoryName(category); name != "" {
				return &name
			}
		}
	}
	return nil
}

func categoryName(raw json.RawMessage) string {
	switch loosejson.Kind(raw) {
	case '"':
		name, _ := loosejson.String(raw)
		return name
	case '{':
		var obj fields
		if json.Unmarshal(raw, &obj) != nil {
			return ""
		}
		return obj.str("name")
	default:
		return ""
	}
}

// decodeVariants accepts a plain array or an object wrapping the array under "data" or
// "variants". Entries that are bare ids become id-only variants.
func decodeVariants(raw json.RawMessage) []Variant {
	switch loosejson.Kind(raw) {
	case '{':
		var wrapper fields
		if json.Unmarshal(raw, &wrapper) != nil {
			return nil
		}
		inner := wrapper.first("data", "variants")
		if loosejson.Kind(inner) != '[' {
			return nil
		}
		return decodeVariants(inner)
	case '[':
		var entries []json.RawMessage
		if json.Unmarshal(raw, &entries) != nil {
			return nil
		}
		variants := make([]Variant, 0, len(entries))
		for _, entry := range entries {
			if variant, ok := decodeVariant(entry); ok {
				variants = append(variants, variant)
			}
		}
		return variants
	default:
		return nil
	}
}

func decodeVariant(raw json.RawMessage) (Variant, bool) {
	switch loosejson.Kind(raw) {
	case '"', '0':
		id, ok := loosejson.String(raw)
		return Variant{ID: id}, ok
	case '{':
	default:
		return Variant{}, false
	}
	var obj fields
	if json.Unmarshal(raw, &obj) != nil {
		return Variant{}, false
	}
	id, ok := loosejson.String(obj["id"])
	if !ok {
		return Variant{}, false
	}
	return Variant{
		ID:         id,
		SKU:        obj.str("sku"),
		Prices:     decodePrices(obj),
		Stock:      loosejson.Int(obj.first("stock", "stock_quantity")),
		Image:      decodeImage(obj),
		Attributes: decodeAttributes(obj.first("attributes", "attrs")),
	}, true
}

// decodeAttributes accepts {"Size": "M"} or [{"name": "Size", "option": "M"}].
func decodeAttributes(raw json.RawMessage) []Attribute {
	switch loosejson.Kind(raw) {
	case '{':
		var obj fields
		if json.Unmarshal(raw, &obj) != nil {
			return nil
		}
		attrs := make(map[string]string, len(obj))
		for name, value := range obj {
			if v, ok := loosejson.String(value); ok {
				attrs[name] = v
			}
		}
		return attributesFromMap(attrs)
	case '[':
		var entries []fields
		if json.Unmarshal(raw, &entries) != nil {
			return nil
		}
		attrs := make([]Attribute, 0, len(entries))
		for _, entry := range entries {
			name := entry.str("name")
			if name == "" {
				continue
			}
			attrs = append(attrs, Attribute{Name: name, Value: entry.str("option", "value")})
		}
		return attrs
	default:
		return nil
	}
}
