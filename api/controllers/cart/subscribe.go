package cart

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	cartdto "github.com/ruddro420/storefront-cart/api/controllers/cart/dto"
	"github.com/ruddro420/storefront-cart/api/responses"
	cartsvc "github.com/ruddro420/storefront-cart/internal/cart"
	"github.com/ruddro420/storefront-cart/pkg/logger"
)

const (
	subscribeWriteWait = 10 * time.Second
	subscribePongWait  = 60 * time.Second
	subscribePingEvery = (subscribePongWait * 9) / 10

	eventSnapshot = "snapshot"
	eventChanged  = "changed"
)

// Origin checks are handled by the CORS policy in front of the router.
var subscribeUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// CartSubscribe upgrades to a websocket and pushes the cart after every mutation of the
// session's store, starting with the current state. Slow clients only ever see the
// latest pending state.
func CartSubscribe(sessions Sessions, shipping decimal.Decimal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ship, release, err := resolve(r, sessions, shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()

		conn, err := subscribeUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		if err := conn.SetReadDeadline(time.Now().Add(subscribePongWait)); err != nil {
			return
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(subscribePongWait))
		})

		writeCh := make(chan cartdto.CartEvent, 8)
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			defer cancel()
			ticker := time.NewTicker(subscribePingEvery)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case evt := <-writeCh:
					if err := conn.SetWriteDeadline(time.Now().Add(subscribeWriteWait)); err != nil {
						return
					}
					if err := conn.WriteJSON(evt); err != nil {
						return
					}
				case <-ticker.C:
					if err := conn.SetWriteDeadline(time.Now().Add(subscribeWriteWait)); err != nil {
						return
					}
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()

		unsubscribe := store.Subscribe(func(state cartsvc.State) {
			current := cartdto.NewCartView(store.Key(), state, cartsvc.ComputeTotals(state.Lines, state.Coupon, ship))
			pushEvent(writeCh, cartdto.CartEvent{Type: eventChanged, Cart: &current})
		})
		defer unsubscribe()

		initial := view(store, ship)
		pushEvent(writeCh, cartdto.CartEvent{Type: eventSnapshot, Cart: &initial})

		if logg != nil {
			logg.Debug(ctx, "cart.subscribe.opened")
		}

		// Reads only service control frames; any error means the client went away.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		<-ctx.Done()
		<-writerDone
		if logg != nil {
			logg.Debug(ctx, "cart.subscribe.closed")
		}
	}
}

// pushEvent never blocks the store: when the buffer is full the oldest event is dropped.
func pushEvent(writeCh chan cartdto.CartEvent, evt cartdto.CartEvent) {
	select {
	case writeCh <- evt:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- evt:
	default:
	}
}
