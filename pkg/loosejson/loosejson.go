// Package loosejson reads scalar values from JSON documents whose producers disagree on
// types: ids arrive as numbers or strings, prices as numbers, numeric strings or "".
package loosejson

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind reports the JSON kind of raw by its first significant byte: '{', '[', '"', 'n'
// (null), 't'/'f' (bool), '0' for numbers, or 0 when raw is empty.
func Kind(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	switch c := trimmed[0]; {
	case c == '-' || (c >= '0' && c <= '9'):
		return '0'
	default:
		return c
	}
}

// IsNull reports whether raw is absent or the JSON null literal.
func IsNull(raw json.RawMessage) bool {
	kind := Kind(raw)
	return kind == 0 || kind == 'n'
}

// String returns a string or number value as trimmed text. Other kinds, and blank
// strings, report false.
func String(raw json.RawMessage) (string, bool) {
	switch Kind(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case '0':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return n.String(), true
	default:
		return "", false
	}
}

// Decimal parses a number or numeric string. Empty strings, null and malformed input
// yield an invalid NullDecimal.
func Decimal(raw json.RawMessage) decimal.NullDecimal {
	text, ok := String(raw)
	if !ok {
		return decimal.NullDecimal{}
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(value)
}

// Int parses a number or numeric string, flooring fractions. Anything unparseable or
// non-finite returns nil.
func Int(raw json.RawMessage) *int {
	text, ok := String(raw)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = math.Floor(f)
	if f > math.MaxInt32 {
		f = math.MaxInt32
	}
	if f < math.MinInt32 {
		f = math.MinInt32
	}
	n := int(f)
	return &n
}
