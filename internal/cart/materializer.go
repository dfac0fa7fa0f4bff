// Package cart reconciles client-held carts against the catalog and persists the server-side
// copy of a user's cart.
//
// Clamping is pulled, not pushed: a stock change is reflected the next time a cart is
// reconciled, so a cart rendered from the client cache can be stale until then.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/salon-storefront/internal/catalog"
	"github.com/ariefcatur/salon-storefront/internal/money"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidLine     = errors.New("product_id is required")
)

const defaultLookupTimeout = 3 * time.Second

// Line is what the client sends: a product and how many of it.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Item is a reconciled line with authoritative pricing.
type Item struct {
	ProductID        string `json:"product_id"`
	Name             string `json:"name"`
	Quantity         int    `json:"quantity"`
	UnitPrice        int64  `json:"unit_price"`
	OriginalPrice    int64  `json:"original_price"`
	DiscountPercent  int    `json:"discount_percent"`
	Stock            int    `json:"stock"`
	OutOfStock       bool   `json:"out_of_stock"`
	QuantityAdjusted bool   `json:"quantity_adjusted"`
}

// View is the reconciled cart plus what changed relative to the request.
type View struct {
	Items      []Item   `json:"items"`
	Removed    int      `json:"removed"`
	Adjusted   int      `json:"adjusted"`
	OutOfStock int      `json:"out_of_stock"`
	RemovedIDs []string `json:"removed_ids,omitempty"`
	Subtotal   int64    `json:"subtotal"`
}

// Changed is true when the request could not be honoured as sent.
func (v View) Changed() bool {
	return v.Removed > 0 || v.Adjusted > 0 || v.OutOfStock > 0
}

// Summary renders the diff counters as a short user-facing message ("" when nothing changed).
func (v View) Summary() string {
	var parts []string
	if v.Removed > 0 {
		parts = append(parts, fmt.Sprintf("%d %s no longer available and removed", v.Removed, plural(v.Removed, "item is", "items are")))
	}
	if v.Adjusted > 0 {
		parts = append(parts, fmt.Sprintf("%d %s reduced to the available stock", v.Adjusted, plural(v.Adjusted, "quantity was", "quantities were")))
	}
	if v.OutOfStock > 0 {
		parts = append(parts, fmt.Sprintf("%d %s out of stock", v.OutOfStock, plural(v.OutOfStock, "item is", "items are")))
	}
	if len(parts) == 0 {
		return ""
	}
	s := strings.Join(parts, "; ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Materializer is read-only with respect to the catalog and safe to call repeatedly.
type Materializer struct {
	Catalog catalog.Store
	Timeout time.Duration
}

// Normalize validates lines and collapses duplicates: the last quantity for a product wins,
// the first position is kept.
func Normalize(lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	pos := make(map[string]int, len(lines))
	for _, l := range lines {
		id := strings.TrimSpace(l.ProductID)
		if id == "" {
			return nil, ErrInvalidLine
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, id)
		}
		if i, ok := pos[id]; ok {
			out[i].Quantity = l.Quantity
			continue
		}
		pos[id] = len(out)
		out = append(out, Line{ProductID: id, Quantity: l.Quantity})
	}
	return out, nil
}

func (m *Materializer) Reconcile(ctx context.Context, lines []Line) (View, error) {
	lines, err := Normalize(lines)
	if err != nil {
		return View{}, err
	}
	view := View{Items: make([]Item, 0, len(lines))}
	if len(lines) == 0 {
		return view, nil
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	products, err := m.Catalog.Lookup(lctx, ids)
	if err != nil {
		return View{}, fmt.Errorf("%w: %v", catalog.ErrUnavailable, err)
	}

	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || !p.Purchasable() {
			view.Removed++
			view.RemovedIDs = append(view.RemovedIDs, l.ProductID)
			continue
		}
		it := Item{
			ProductID:       p.ID,
			Name:            p.Name,
			Quantity:        l.Quantity,
			UnitPrice:       money.ApplyDiscount(p.Price, p.DiscountPercent),
			OriginalPrice:   p.Price,
			DiscountPercent: p.DiscountPercent,
			Stock:           p.Stock,
		}
		switch {
		case p.Stock <= 0:
			it.OutOfStock = true
			view.OutOfStock++
		case p.Stock < l.Quantity:
			it.Quantity = p.Stock
			it.QuantityAdjusted = true
			view.Adjusted++
		}
		if !it.OutOfStock {
			view.Subtotal += money.LineTotal(it.UnitPrice, it.Quantity)
		}
		view.Items = append(view.Items, it)
	}
	return view, nil
}
