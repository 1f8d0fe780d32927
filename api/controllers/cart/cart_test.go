package cart

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	cartdto "github.com/ruddro420/storefront-cart/api/controllers/cart/dto"
	"github.com/ruddro420/storefront-cart/api/middleware"
	cartsvc "github.com/ruddro420/storefront-cart/internal/cart"
	"github.com/ruddro420/storefront-cart/internal/session"
	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
)

const testSession = "session-test"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	registry, err := session.NewRegistry(session.Options{Persister: cartsvc.NewMemoryPersister(), MaxSessions: 8})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	shipping := decimal.NewFromInt(5)

	r := chi.NewRouter()
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.CartSession(middleware.CartSessionOptions{}, nil))
		r.Get("/", CartFetch(registry, shipping, nil))
		r.Delete("/", CartClear(registry, shipping, nil))
		r.Post("/items", CartAddItem(registry, shipping, nil))
		r.Post("/catalog-items", CartAddCatalogItem(registry, shipping, nil))
		r.Get("/status", CartItemStatus(registry, nil))
		r.Patch("/items/{lineID}", CartSetQty(registry, shipping, nil))
		r.Delete("/items/{lineID}", CartRemoveItem(registry, shipping, nil))
		r.Put("/coupon", CartApplyCoupon(registry, shipping, nil))
		r.Delete("/coupon", CartRemoveCoupon(registry, shipping, nil))
		r.Get("/totals", CartTotals(registry, shipping, nil))
		r.Post("/checkout-snapshot", CartCheckoutSnapshot(registry, shipping, nil))
		r.Get("/subscribe", CartSubscribe(registry, shipping, nil))
	})
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set(middleware.CartSessionHeader, testSession)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return payload.Error.Code
}

func TestCartAddItemMergesAndTotals(t *testing.T) {
	h := newTestRouter(t)

	body := `{"product_id":"p1","name":"Mug","price":"12.50","qty":1}`
	if rec := do(t, h, http.MethodPost, "/api/v1/cart/items", body); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","name":"Mug","price":"12.50","qty":1}`)

	var resp cartdto.MutationResponse
	decodeData(t, rec, &resp)
	if !resp.Changed {
		t.Fatalf("expected changed")
	}
	if len(resp.Cart.Lines) != 1 || resp.Cart.Lines[0].Qty != 2 {
		t.Fatalf("expected one merged line with qty 2, got %+v", resp.Cart.Lines)
	}
	if resp.Cart.ItemCount != 2 {
		t.Fatalf("expected item count 2, got %d", resp.Cart.ItemCount)
	}
	if !resp.Cart.Totals.Subtotal.Equal(decimal.NewFromInt(25)) || !resp.Cart.Totals.Total.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected totals %+v", resp.Cart.Totals)
	}
	if resp.Cart.SessionID != testSession {
		t.Fatalf("unexpected session id %q", resp.Cart.SessionID)
	}
}

func TestCartAddItemValidation(t *testing.T) {
	h := newTestRouter(t)

	cases := map[string]string{
		"missing product": `{"name":"Mug"}`,
		"bad price":       `{"product_id":"p1","price":"twelve"}`,
		"unknown field":   `{"product_id":"p1","colour":"red"}`,
		"qty too large":   `{"product_id":"p1","qty":2147483648}`,
	}
	for name, body := range cases {
		rec := do(t, h, http.MethodPost, "/api/v1/cart/items", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, rec.Code)
		}
		if errorCode(t, rec) != string(pkgerrors.CodeValidation) {
			t.Fatalf("%s: unexpected code", name)
		}
	}
}

func TestCartAddItemStockWarning(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","price":"3","stock":2,"qty":5}`)
	var resp cartdto.MutationResponse
	decodeData(t, rec, &resp)
	if resp.Cart.Lines[0].Qty != 2 {
		t.Fatalf("expected qty clamped to stock, got %d", resp.Cart.Lines[0].Qty)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].Applied != 2 || resp.Warnings[0].Requested != 5 {
		t.Fatalf("expected stock warning, got %+v", resp.Warnings)
	}
}

func TestCartSetQtyAndRemove(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","price":"4"}`)
	do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p2","variant_id":"red","price":"1"}`)

	rec := do(t, h, http.MethodPatch, "/api/v1/cart/items/p1::base", `{"qty":3}`)
	var resp cartdto.MutationResponse
	decodeData(t, rec, &resp)
	if resp.Cart.Lines[0].LineID != "p1::base" || resp.Cart.Lines[0].Qty != 3 {
		t.Fatalf("expected qty 3 on p1, got %+v", resp.Cart.Lines)
	}

	rec = do(t, h, http.MethodPatch, "/api/v1/cart/items/missing::base", `{"qty":3}`)
	resp = cartdto.MutationResponse{}
	decodeData(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Changed {
		t.Fatalf("expected unknown line to be a no-op, got %d changed=%v", rec.Code, resp.Changed)
	}

	rec = do(t, h, http.MethodPatch, "/api/v1/cart/items/p1::base", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected missing qty to be rejected, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPatch, "/api/v1/cart/items/p1::base", `{"qty":2147483648}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected qty above the ceiling to be rejected, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/cart/items/p1::base", "")
	resp = cartdto.MutationResponse{}
	decodeData(t, rec, &resp)
	if len(resp.Cart.Lines) != 1 || resp.Cart.Lines[0].LineID != "p2::red" {
		t.Fatalf("expected only p2::red left, got %+v", resp.Cart.Lines)
	}
}

func TestCartCouponLifecycle(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","price":"10","qty":2}`)

	rec := do(t, h, http.MethodPut, "/api/v1/cart/coupon", `{"code":"SAVE5","discount":"5","type":"FIXED","value":"5"}`)
	var resp cartdto.MutationResponse
	decodeData(t, rec, &resp)
	if resp.Cart.Coupon == nil || resp.Cart.Coupon.Code != "SAVE5" {
		t.Fatalf("expected coupon applied, got %+v", resp.Cart.Coupon)
	}
	if !resp.Cart.Totals.Total.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected total 20, got %s", resp.Cart.Totals.Total)
	}
	if !resp.Cart.Coupon.Value.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected coupon value 5, got %s", resp.Cart.Coupon.Value)
	}

	rec = do(t, h, http.MethodPut, "/api/v1/cart/coupon", `{"code":"FREE","discount":"0","type":"FIXED"}`)
	resp = cartdto.MutationResponse{}
	decodeData(t, rec, &resp)
	if resp.Cart.Coupon == nil || !resp.Cart.Coupon.Value.IsZero() {
		t.Fatalf("expected blank coupon value to read as zero, got %+v", resp.Cart.Coupon)
	}

	rec = do(t, h, http.MethodPut, "/api/v1/cart/coupon", `{"code":"X","discount":"1","type":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid coupon type rejected, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/cart/coupon", "")
	resp = cartdto.MutationResponse{}
	decodeData(t, rec, &resp)
	if !resp.Changed || resp.Cart.Coupon != nil {
		t.Fatalf("expected coupon removed, got %+v", resp)
	}
}

func TestCartTotalsShippingQuery(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","price":"10"}`)

	rec := do(t, h, http.MethodGet, "/api/v1/cart/totals?shipping=2.5", "")
	var totals cartsvc.Totals
	decodeData(t, rec, &totals)
	if !totals.Shipping.Equal(decimal.RequireFromString("2.5")) || !totals.Total.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected totals %+v", totals)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/cart/totals?shipping=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected negative shipping rejected, got %d", rec.Code)
	}
}

func TestCartCatalogItemAndStatus(t *testing.T) {
	h := newTestRouter(t)
	product := `{"product":{"id":"shirt","title":"Shirt","regular_price":"20","stock":9,
		"variations":[{"id":"s-red","sale_price":"15","regular_price":"20","stock":1,"attributes":{"color":"red"}}]},
		"variant_id":"s-red","qty":4}`

	rec := do(t, h, http.MethodPost, "/api/v1/cart/catalog-items", product)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp cartdto.MutationResponse
	decodeData(t, rec, &resp)
	if len(resp.Cart.Lines) != 1 {
		t.Fatalf("expected one line, got %+v", resp.Cart.Lines)
	}
	line := resp.Cart.Lines[0]
	if line.LineID != "shirt::s-red" || line.Qty != 1 || !line.Price.Decimal.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected line %+v", line)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/cart/status?product_id=shirt&variant_id=s-red", "")
	var status cartdto.StatusResponse
	decodeData(t, rec, &status)
	if !status.InCart || status.Affordance != "view_cart" || status.Qty != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/cart/status?product_id=shirt", "")
	status = cartdto.StatusResponse{}
	decodeData(t, rec, &status)
	if status.InCart || status.Affordance != "add_to_cart" {
		t.Fatalf("expected base product not in cart, got %+v", status)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/cart/catalog-items", `{"product":{"id":"shirt"},"variant_id":"nope"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown variant rejected, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/cart/status", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected missing product_id rejected, got %d", rec.Code)
	}
}

func TestCartCheckoutSnapshot(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/checkout-snapshot", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected empty cart conflict, got %d", rec.Code)
	}

	do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","price":"10","sku":"SKU-1","qty":2}`)
	do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p2"}`)

	rec = do(t, h, http.MethodPost, "/api/v1/cart/checkout-snapshot", "")
	var snapshot cartsvc.OrderSnapshot
	decodeData(t, rec, &snapshot)
	if len(snapshot.Lines) != 2 || snapshot.Lines[0].SKU != "SKU-1" || snapshot.Lines[0].Qty != 2 {
		t.Fatalf("unexpected snapshot lines %+v", snapshot.Lines)
	}
	if !snapshot.IncompletePricing || len(snapshot.Totals.IncompleteLines) != 1 || snapshot.Totals.IncompleteLines[0] != "p2::base" {
		t.Fatalf("expected p2 flagged as incomplete, got %+v", snapshot.Totals)
	}
}

func TestCartClearAndFetch(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","price":"10"}`)

	rec := do(t, h, http.MethodDelete, "/api/v1/cart/", "")
	var resp cartdto.MutationResponse
	decodeData(t, rec, &resp)
	if !resp.Changed || len(resp.Cart.Lines) != 0 {
		t.Fatalf("expected cleared cart, got %+v", resp)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/cart/", "")
	var view cartdto.CartView
	decodeData(t, rec, &view)
	if view.Lines == nil || len(view.Lines) != 0 || view.ItemCount != 0 {
		t.Fatalf("expected empty cart view, got %+v", view)
	}
}

func TestCartHandlersRequireSession(t *testing.T) {
	rec := httptest.NewRecorder()
	CartFetch(nil, decimal.Zero, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without sessions, got %d", rec.Code)
	}

	registry, err := session.NewRegistry(session.Options{MaxSessions: 1})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	rec = httptest.NewRecorder()
	CartFetch(registry, decimal.Zero, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a session, got %d", rec.Code)
	}
}

func TestCartSubscribePushesChanges(t *testing.T) {
	server := httptest.NewServer(newTestRouter(t))
	defer server.Close()

	header := http.Header{}
	header.Set(middleware.CartSessionHeader, testSession)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/cart/subscribe"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var evt cartdto.CartEvent
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if evt.Type != eventSnapshot || evt.Cart == nil || len(evt.Cart.Lines) != 0 {
		t.Fatalf("unexpected first event %+v", evt)
	}

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/v1/cart/items", strings.NewReader(`{"product_id":"p1","price":"2","qty":3}`))
	req.Header.Set(middleware.CartSessionHeader, testSession)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	resp.Body.Close()

	evt = cartdto.CartEvent{}
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if evt.Type != eventChanged || evt.Cart == nil || len(evt.Cart.Lines) != 1 || evt.Cart.Lines[0].Qty != 3 {
		t.Fatalf("unexpected change event %+v", evt)
	}
	if !evt.Cart.Totals.Subtotal.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected subtotal 6, got %s", evt.Cart.Totals.Subtotal)
	}
}
