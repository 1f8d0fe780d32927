package cart

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	cartdto "github.com/ruddro420/storefront-cart/api/controllers/cart/dto"
	"github.com/ruddro420/storefront-cart/api/middleware"
	"github.com/ruddro420/storefront-cart/api/responses"
	"github.com/ruddro420/storefront-cart/api/validators"
	"github.com/ruddro420/storefront-cart/internal/addtocart"
	cartsvc "github.com/ruddro420/storefront-cart/internal/cart"
	"github.com/ruddro420/storefront-cart/internal/catalog"
	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
	"github.com/ruddro420/storefront-cart/pkg/logger"
)

const shippingQueryKey = "shipping"

// Sessions resolves the cart store for a session id. The store stays resident until
// release is called.
type Sessions interface {
	Acquire(ctx context.Context, sessionID string) (store *cartsvc.Store, release func(), err error)
}

// CartFetch returns the session's cart with totals.
func CartFetch(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()
		responses.WriteSuccess(w, view(store, ship))
	}
}

// CartClear empties the cart and drops the coupon.
func CartClear(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()
		result := store.ClearCart(r.Context())
		responses.WriteSuccess(w, cartdto.NewMutationResponse(result, view(store, ship)))
	}
}

// CartAddItem merges a canonical line into the cart.
func CartAddItem(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()

		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := store.AddItem(r.Context(), toLineInput(payload), requestedQty(payload.Qty))
		responses.WriteSuccess(w, cartdto.NewMutationResponse(result, view(store, ship)))
	}
}

// CartAddCatalogItem adds a product straight from its catalog representation, resolving
// the selected variant the same way the product page does.
func CartAddCatalogItem(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()

		var payload cartdto.CatalogItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := catalog.DecodeProduct(payload.Product)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		controller, err := addtocart.New(store, product, addtocart.Options{VariantID: payload.VariantID, Logger: logg})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer controller.Close()

		result := controller.Add(r.Context(), requestedQty(payload.Qty))
		responses.WriteSuccess(w, cartdto.NewMutationResponse(result, view(store, ship)))
	}
}

// CartItemStatus reports whether a product selection is already in the cart.
func CartItemStatus(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, _, release, err := resolve(r, sessions, decimal.Zero)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()

		productID, err := validators.RequireQuery(r, "product_id", 128)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var variantID *string
		if v := validators.SanitizeString(r.URL.Query().Get("variant_id"), 128); v != "" {
			variantID = &v
		}

		lineID := cartsvc.MakeLineID(productID, variantID)
		status := cartdto.StatusResponse{LineID: lineID, Affordance: string(addtocart.AffordanceAddToCart)}
		if line, ok := store.Line(lineID); ok {
			status.InCart = true
			status.Affordance = string(addtocart.AffordanceViewCart)
			status.Qty = line.Qty
		}
		responses.WriteSuccess(w, status)
	}
}

// CartSetQty replaces the quantity of one line. Unknown lines are left alone.
func CartSetQty(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()
		lineID, err := lineIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartdto.SetQtyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := store.SetQty(r.Context(), lineID, *payload.Qty)
		responses.WriteSuccess(w, cartdto.NewMutationResponse(result, view(store, ship)))
	}
}

// CartRemoveItem deletes one line.
func CartRemoveItem(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()
		lineID, err := lineIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := store.RemoveItem(r.Context(), lineID)
		responses.WriteSuccess(w, cartdto.NewMutationResponse(result, view(store, ship)))
	}
}

// CartApplyCoupon replaces any existing coupon.
func CartApplyCoupon(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()

		var payload cartdto.CouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		coupon, err := toCoupon(payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := store.ApplyCoupon(r.Context(), coupon)
		responses.WriteSuccess(w, cartdto.NewMutationResponse(result, view(store, ship)))
	}
}

// CartRemoveCoupon drops the coupon if one is set.
func CartRemoveCoupon(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()
		result := store.RemoveCoupon(r.Context())
		responses.WriteSuccess(w, cartdto.NewMutationResponse(result, view(store, ship)))
	}
}

// CartTotals returns only the computed totals.
func CartTotals(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()
		responses.WriteSuccess(w, store.Totals(ship))
	}
}

// CartCheckoutSnapshot freezes the cart into the payload handed to order submission.
func CartCheckoutSnapshot(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()
		snapshot := store.OrderSnapshot(ship)
		if len(snapshot.Lines) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConflict, "cart is empty"))
			return
		}
		if logg != nil && snapshot.IncompletePricing {
			ctx := logg.WithField(r.Context(), "incomplete_lines", snapshot.Totals.IncompleteLines)
			logg.Warn(ctx, "cart.checkout_snapshot.incomplete_pricing")
		}
		responses.WriteSuccess(w, snapshot)
	}
}

func resolve(r *http.Request, sessions Sessions, shipping decimal.Decimal) (*cartsvc.Store, decimal.Decimal, func(), error) {
	if sessions == nil {
		return nil, decimal.Zero, nil, pkgerrors.New(pkgerrors.CodeInternal, "cart sessions unavailable")
	}
	sessionID := middleware.CartSessionFromContext(r.Context())
	if sessionID == "" {
		return nil, decimal.Zero, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session required")
	}
	ship, err := validators.ParseQueryAmount(r, shippingQueryKey, shipping)
	if err != nil {
		return nil, decimal.Zero, nil, err
	}
	store, release, err := sessions.Acquire(r.Context(), sessionID)
	if err != nil {
		return nil, decimal.Zero, nil, err
	}
	return store, ship, release, nil
}

func view(store *cartsvc.Store, shipping decimal.Decimal) cartdto.CartView {
	state := store.State()
	return cartdto.NewCartView(store.Key(), state, cartsvc.ComputeTotals(state.Lines, state.Coupon, shipping))
}
