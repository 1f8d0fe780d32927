package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ruddro420/storefront-cart/pkg/enums"
	"github.com/ruddro420/storefront-cart/pkg/loosejson"
	"github.com/shopspring/decimal"
)

// ErrStaleRecord is returned by Persister.Save when storage already holds a record with
// the same or a newer version.
var ErrStaleRecord = errors.New("cart record is stale")

// Persister stores one encoded cart record per key. Load returns (nil, nil) when no
// record exists. Save must only replace a record whose version is lower than version,
// and returns ErrStaleRecord otherwise.
type Persister interface {
	Name() string
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, version uint64, record []byte) error
}

type record struct {
	Version uint64  `json:"version"`
	Items   []Line  `json:"items"`
	Coupon  *Coupon `json:"coupon"`
}

// EncodeState renders the persisted layout {"version": n, "items": [...], "coupon": ...}.
func EncodeState(state State, version uint64) ([]byte, error) {
	items := state.Lines
	if items == nil {
		items = []Line{}
	}
	payload, err := json.Marshal(record{Version: version, Items: items, Coupon: state.Coupon})
	if err != nil {
		return nil, fmt.Errorf("encode cart record: %w", err)
	}
	return payload, nil
}

type rawRecord struct {
	Version json.RawMessage `json:"version"`
	Items   json.RawMessage `json:"items"`
	Coupon  json.RawMessage `json:"coupon"`
}

type rawLine struct {
	ProductID    json.RawMessage   `json:"product_id"`
	VariantID    json.RawMessage   `json:"variant_id"`
	Name         string            `json:"name"`
	Image        *string           `json:"image"`
	Category     *string           `json:"category"`
	Price        json.RawMessage   `json:"price"`
	OldPrice     json.RawMessage   `json:"old_price"`
	Qty          json.RawMessage   `json:"qty"`
	Stock        json.RawMessage   `json:"stock"`
	Attrs        map[string]string `json:"attrs"`
	SKU          string            `json:"sku"`
	VariantLabel string            `json:"variant_label"`
}

type rawCoupon struct {
	Code     string          `json:"code"`
	Discount json.RawMessage `json:"discount"`
	Type     string          `json:"type"`
	Value    json.RawMessage `json:"value"`
}

// DecodeState rehydrates a persisted record. It never fails: a missing or malformed
// record is an empty cart, lines without a product id are dropped, line ids are
// recomputed, quantities are clamped to at least one and duplicate lines are merged.
// The returned bool is false when the payload could not be parsed at all.
func DecodeState(payload []byte) (State, bool) {
	state, _, ok := decodeRecord(payload)
	return state, ok
}

// decodeRecord is DecodeState plus the record version; records written before versions
// existed read as version zero.
func decodeRecord(payload []byte) (State, uint64, bool) {
	state := State{Lines: []Line{}}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return state, 0, true
	}
	var raw rawRecord
	if err := json.Unmarshal(payload, &raw); err != nil {
		return state, 0, false
	}
	var version uint64
	if n := loosejson.Decimal(raw.Version); n.Valid && n.Decimal.IsPositive() {
		version = uint64(n.Decimal.IntPart())
	}

	var items []json.RawMessage
	if loosejson.Kind(raw.Items) == '[' {
		if err := json.Unmarshal(raw.Items, &items); err != nil {
			items = nil
		}
	}
	index := make(map[string]int, len(items))
	for _, item := range items {
		line, ok := decodeLine(item)
		if !ok {
			continue
		}
		if pos, exists := index[line.LineID]; exists {
			state.Lines[pos].Qty, _ = addQty(state.Lines[pos].Qty, line.Qty)
			continue
		}
		index[line.LineID] = len(state.Lines)
		state.Lines = append(state.Lines, line)
	}

	state.Coupon = decodeCoupon(raw.Coupon)
	return state, version, true
}

func decodeLine(item json.RawMessage) (Line, bool) {
	var raw rawLine
	if loosejson.Kind(item) != '{' {
		return Line{}, false
	}
	if err := json.Unmarshal(item, &raw); err != nil {
		return Line{}, false
	}
	productID, ok := loosejson.String(raw.ProductID)
	if !ok {
		return Line{}, false
	}
	var variantID *string
	if v, ok := loosejson.String(raw.VariantID); ok {
		variantID = &v
	}
	qty := 1
	if n := loosejson.Decimal(raw.Qty); n.Valid {
		qty = QtyFromFloat(n.Decimal.InexactFloat64())
	}
	line := LineInput{
		ProductID:    productID,
		VariantID:    variantID,
		Name:         raw.Name,
		Image:        raw.Image,
		Category:     raw.Category,
		Price:        loosejson.Decimal(raw.Price),
		OldPrice:     loosejson.Decimal(raw.OldPrice),
		Stock:        loosejson.Int(raw.Stock),
		Attrs:        raw.Attrs,
		SKU:          raw.SKU,
		VariantLabel: raw.VariantLabel,
	}.toLine(qty)
	return line, true
}

func decodeCoupon(payload json.RawMessage) *Coupon {
	if loosejson.Kind(payload) != '{' {
		return nil
	}
	var raw rawCoupon
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil
	}
	code := strings.TrimSpace(raw.Code)
	if code == "" {
		return nil
	}
	coupon := &Coupon{
		Code:     code,
		Discount: decimalOrZero(loosejson.Decimal(raw.Discount)),
		Value:    decimalOrZero(loosejson.Decimal(raw.Value)),
	}
	if kind, err := enums.ParseCouponType(raw.Type); err == nil {
		coupon.Type = kind
	} else {
		coupon.Type = enums.CouponTypeFixed
	}
	return coupon
}

func decimalOrZero(value decimal.NullDecimal) decimal.Decimal {
	if !value.Valid {
		return decimal.Zero
	}
	return value.Decimal
}

// MemoryPersister keeps records in process memory.
type MemoryPersister struct {
	mu       sync.Mutex
	records  map[string][]byte
	versions map[string]uint64
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{records: map[string][]byte{}, versions: map[string]uint64{}}
}

func (m *MemoryPersister) Name() string {
	return "memory"
}

func (m *MemoryPersister) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), payload...), nil
}

func (m *MemoryPersister) Save(_ context.Context, key string, version uint64, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.versions[key]; ok && current >= version {
		return ErrStaleRecord
	}
	m.records[key] = append([]byte(nil), payload...)
	m.versions[key] = version
	return nil
}
