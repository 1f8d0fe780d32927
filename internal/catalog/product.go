package catalog

import (
	"sort"
	"strings"
)

// Attribute is one option of a variable product, e.g. Size=M.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variant is a purchasable configuration of a product.
type Variant struct {
	ID         string      `json:"id"`
	SKU        string      `json:"sku,omitempty"`
	Prices     PriceFields `json:"prices"`
	Stock      *int        `json:"stock"`
	Image      *string     `json:"image"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Product is the canonical shape produced from catalog payloads.
type Product struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	SKU      string      `json:"sku,omitempty"`
	Prices   PriceFields `json:"prices"`
	Stock    *int        `json:"stock"`
	Image    *string     `json:"image"`
	Category *string     `json:"category"`
	Variants []Variant   `json:"variants,omitempty"`
}

// Variant looks up a variant by id.
func (p Product) Variant(id string) (*Variant, bool) {
	id = strings.TrimSpace(id)
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			v := p.Variants[i]
			return &v, true
		}
	}
	return nil, false
}

// Attrs flattens the attribute list into a map; later duplicates win.
func (v Variant) Attrs() map[string]string {
	if len(v.Attributes) == 0 {
		return nil
	}
	out := make(map[string]string, len(v.Attributes))
	for _, attr := range v.Attributes {
		out[attr.Name] = attr.Value
	}
	return out
}

// Label joins the attribute values in catalog order, e.g. "M / Blue".
func (v Variant) Label() string {
	values := make([]string, 0, len(v.Attributes))
	for _, attr := range v.Attributes {
		if attr.Value != "" {
			values = append(values, attr.Value)
		}
	}
	return strings.Join(values, " / ")
}

func attributesFromMap(attrs map[string]string) []Attribute {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Attribute, 0, len(names))
	for _, name := range names {
		out = append(out, Attribute{Name: name, Value: attrs[name]})
	}
	return out
}
