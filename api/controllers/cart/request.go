package cart

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	cartdto "github.com/ruddro420/storefront-cart/api/controllers/cart/dto"
	cartsvc "github.com/ruddro420/storefront-cart/internal/cart"
	"github.com/ruddro420/storefront-cart/pkg/enums"
	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
)

func toLineInput(payload cartdto.AddItemRequest) cartsvc.LineInput {
	return cartsvc.LineInput{
		ProductID:    payload.ProductID,
		VariantID:    payload.VariantID,
		Name:         strings.TrimSpace(payload.Name),
		Image:        payload.Image,
		Category:     payload.Category,
		Price:        nullDecimal(payload.Price),
		OldPrice:     nullDecimal(payload.OldPrice),
		Stock:        payload.Stock,
		Attrs:        payload.Attrs,
		SKU:          strings.TrimSpace(payload.SKU),
		VariantLabel: strings.TrimSpace(payload.VariantLabel),
	}
}

func toCoupon(payload cartdto.CouponRequest) (cartsvc.Coupon, error) {
	couponType, err := enums.ParseCouponType(payload.Type)
	if err != nil {
		return cartsvc.Coupon{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed").
			WithDetails(map[string]string{"type": "must be one of percentage fixed"})
	}
	discount, err := decimal.NewFromString(strings.TrimSpace(payload.Discount))
	if err != nil {
		return cartsvc.Coupon{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed").
			WithDetails(map[string]string{"discount": "must be numeric"})
	}
	// value is informational and already checked as numeric, so blank reads as zero.
	return cartsvc.Coupon{
		Code:     strings.TrimSpace(payload.Code),
		Discount: discount,
		Type:     couponType,
		Value:    cartsvc.ParseAmount(payload.Value),
	}, nil
}

// requestedQty defaults an omitted quantity to one.
func requestedQty(qty *int) int {
	if qty == nil {
		return 1
	}
	return *qty
}

func nullDecimal(value *string) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*value))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func lineIDParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "lineID")
	lineID, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(lineID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid line id").WithDetails(map[string]any{"field": "lineID"})
	}
	return lineID, nil
}
