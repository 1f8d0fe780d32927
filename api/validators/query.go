package validators

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
)

// ParseQueryAmount reads a non-negative currency amount, returning fallback when absent.
func ParseQueryAmount(r *http.Request, key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must not be negative").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

// RequireQuery returns the trimmed value of key or a validation error naming it.
func RequireQuery(r *http.Request, key string, maxLen int) (string, error) {
	value := SanitizeString(r.URL.Query().Get(key), maxLen)
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}
