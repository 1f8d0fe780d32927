package controllers

import (
	"net/http"

	"github.com/ruddro420/storefront-cart/api/middleware"
	"github.com/ruddro420/storefront-cart/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// CartPing echoes the resolved cart session so clients can confirm which cart they hold.
func CartPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "cart", "status": "ok"}
		if session := middleware.CartSessionFromContext(r.Context()); session != "" {
			payload["cart_session"] = session
		}
		responses.WriteSuccess(w, payload)
	}
}
