package enums

import (
	"fmt"
	"strings"
)

// CouponType describes the rule that produced a coupon's discount.
type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFixed      CouponType = "fixed"
)

var validCouponTypes = []CouponType{
	CouponTypePercentage,
	CouponTypeFixed,
}

// String implements fmt.Stringer.
func (c CouponType) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c CouponType) IsValid() bool {
	for _, candidate := range validCouponTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCouponType converts raw input into a CouponType. Matching ignores case and
// surrounding whitespace.
func ParseCouponType(value string) (CouponType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validCouponTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid coupon type %q", value)
}
