package addtocart

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ruddro420/storefront-cart/internal/cart"
	"github.com/ruddro420/storefront-cart/internal/catalog"
	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
	"github.com/ruddro420/storefront-cart/pkg/logger"
)

// Affordance is the call to action shown for a product.
type Affordance string

const (
	AffordanceAddToCart Affordance = "add_to_cart"
	AffordanceViewCart  Affordance = "view_cart"
)

type cartStore interface {
	Has(lineID string) bool
	AddItem(ctx context.Context, in cart.LineInput, qty int) cart.Result
	Subscribe(fn cart.Listener) func()
}

// Options configures a Controller.
type Options struct {
	// VariantID preselects a variant; empty means the product itself.
	VariantID string
	Logger    *logger.Logger
}

// Controller adapts one rendered product to the shared cart. It tracks the selected
// variant and whether the matching line is in the cart, re-reading membership on every
// store notification.
type Controller struct {
	store   cartStore
	product catalog.Product
	logg    *logger.Logger

	mu          sync.Mutex
	selected    *catalog.Variant
	inCart      bool
	hooks       []func(Affordance)
	unsubscribe func()
}

// New builds a controller and subscribes it to store.
func New(store cartStore, product catalog.Product, opts Options) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if strings.TrimSpace(product.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	c := &Controller{store: store, product: product, logg: opts.Logger}
	if c.logg == nil {
		c.logg = logger.Nop()
	}
	if opts.VariantID != "" {
		variant, ok := product.Variant(opts.VariantID)
		if !ok {
			return nil, unknownVariant(product.ID, opts.VariantID)
		}
		c.selected = variant
	}
	c.inCart = store.Has(c.LineID())
	c.unsubscribe = store.Subscribe(c.onStoreChange)
	return c, nil
}

// LineID is the candidate line id for the product and current selection.
func (c *Controller) LineID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lineIDLocked()
}

func (c *Controller) lineIDLocked() string {
	if c.selected == nil {
		return cart.MakeLineID(c.product.ID, nil)
	}
	variantID := c.selected.ID
	return cart.MakeLineID(c.product.ID, &variantID)
}

func (c *Controller) InCart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inCart
}

func (c *Controller) Affordance() Affordance {
	if c.InCart() {
		return AffordanceViewCart
	}
	return AffordanceAddToCart
}

// SelectVariant switches the selection; an empty id selects the product itself.
func (c *Controller) SelectVariant(variantID string) error {
	var selected *catalog.Variant
	if id := strings.TrimSpace(variantID); id != "" {
		variant, ok := c.product.Variant(id)
		if !ok {
			return unknownVariant(c.product.ID, id)
		}
		selected = variant
	}

	c.mu.Lock()
	c.selected = selected
	lineID := c.lineIDLocked()
	c.mu.Unlock()

	c.refresh(c.store.Has(lineID), lineID)
	return nil
}

// Add puts qty of the current selection into the cart with exactly one AddItem call.
func (c *Controller) Add(ctx context.Context, qty int) cart.Result {
	c.mu.Lock()
	var selected *catalog.Variant
	if c.selected != nil {
		v := *c.selected
		selected = &v
	}
	c.mu.Unlock()

	in := catalog.BuildLineInput(c.product, selected)
	res := c.store.AddItem(ctx, in, qty)
	if len(res.Warnings) > 0 {
		c.logg.Info(c.logg.WithField(ctx, "warnings", res.Warnings), "addtocart.add.adjusted")
	}
	return res
}

// OnChange registers fn to run whenever the affordance flips.
func (c *Controller) OnChange(fn func(Affordance)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Close detaches the controller from the store.
func (c *Controller) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Controller) onStoreChange(state cart.State) {
	c.mu.Lock()
	lineID := c.lineIDLocked()
	c.mu.Unlock()

	present := false
	for _, line := range state.Lines {
		if line.LineID == lineID {
			present = true
			break
		}
	}
	c.refresh(present, lineID)
}

// refresh records membership for lineID and fires hooks on a transition. Results for a
// selection that has since changed are dropped.
func (c *Controller) refresh(present bool, lineID string) {
	c.mu.Lock()
	if lineID != c.lineIDLocked() || present == c.inCart {
		c.mu.Unlock()
		return
	}
	c.inCart = present
	hooks := append(([]func(Affordance))(nil), c.hooks...)
	c.mu.Unlock()

	next := AffordanceAddToCart
	if present {
		next = AffordanceViewCart
	}
	for _, hook := range hooks {
		hook(next)
	}
}

func unknownVariant(productID, variantID string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "unknown variant").WithDetails(map[string]any{
		"product_id": productID,
		"variant_id": variantID,
	})
}
