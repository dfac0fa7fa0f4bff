// Package checkout turns a reconciled cart into a pending order and a hosted payment session.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ariefcatur/salon-storefront/internal/cart"
	"github.com/ariefcatur/salon-storefront/internal/catalog"
	"github.com/ariefcatur/salon-storefront/internal/gateway"
	"github.com/ariefcatur/salon-storefront/internal/orders"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCartInvalid        = errors.New("cart changed since it was last shown")
	ErrCatalogUnavailable = catalog.ErrUnavailable
	ErrGatewayUnavailable = gateway.ErrUnavailable
	ErrNotPayable         = errors.New("order is no longer awaiting payment")
)

// CartInvalidError carries the reconciled cart so the client can show what changed.
type CartInvalidError struct {
	View cart.View
}

func (e *CartInvalidError) Error() string {
	if s := e.View.Summary(); s != "" {
		return ErrCartInvalid.Error() + ": " + s
	}
	return ErrCartInvalid.Error()
}

func (e *CartInvalidError) Unwrap() error { return ErrCartInvalid }

// GatewayError means the order was persisted but no session could be opened for it yet.
// OrderID is the external id to retry with.
type GatewayError struct {
	OrderID string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("open payment session for order %s: %v", e.OrderID, e.Err)
}

func (e *GatewayError) Unwrap() []error { return []error{ErrGatewayUnavailable, e.Err} }

// IdempotencyCache is the fast path from an Idempotency-Key to the order it produced.
type IdempotencyCache interface {
	Lookup(ctx context.Context, key string) (orderID string, ok bool, err error)
	Remember(ctx context.Context, key, orderID string) error
}

type Request struct {
	Lines          []cart.Line
	UserID         *string
	IdempotencyKey string
}

type Result struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
}

type Service struct {
	Cart    *cart.Materializer
	Orders  orders.Store
	Gateway gateway.Sessions
	Idem    IdempotencyCache // optional

	ShippingCost int64
	Currency     string
	SuccessURL   string
	CancelURL    string
}

func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	if len(req.Lines) == 0 {
		return Result{}, ErrEmptyCart
	}
	key := scopedKey(req.UserID, strings.TrimSpace(req.IdempotencyKey))
	if key != "" && s.Idem != nil {
		id, ok, err := s.Idem.Lookup(ctx, key)
		if err != nil {
			log.Printf("checkout idempotency lookup key=%s err=%v", key, err)
		} else if ok {
			return s.ResumeSession(ctx, id, req.UserID)
		}
	}

	view, err := s.Cart.Reconcile(ctx, req.Lines)
	if err != nil {
		return Result{}, err
	}
	if view.Changed() {
		return Result{}, &CartInvalidError{View: view}
	}
	if len(view.Items) == 0 {
		return Result{}, ErrEmptyCart
	}

	lines := make([]orders.Line, len(view.Items))
	for i, it := range view.Items {
		lines[i] = orders.Line{
			ProductID:       it.ProductID,
			ProductName:     it.Name,
			Quantity:        it.Quantity,
			Price:           it.UnitPrice,
			OriginalPrice:   it.OriginalPrice,
			DiscountPercent: it.DiscountPercent,
		}
	}
	o := orders.NewPending(req.UserID, lines, s.ShippingCost)
	if key != "" {
		o.IdempotencyKey = &key
	}

	saved, existed, err := s.Orders.CreatePending(ctx, o)
	if err != nil {
		return Result{}, fmt.Errorf("create order: %w", err)
	}
	if existed {
		if !ownedBy(saved, req.UserID) {
			return Result{}, orders.ErrNotFound
		}
		log.Printf("checkout replay key=%s order=%s", key, saved.ExternalID)
	}
	if key != "" && s.Idem != nil {
		if err := s.Idem.Remember(ctx, key, saved.ExternalID); err != nil {
			log.Printf("checkout idempotency remember key=%s err=%v", key, err)
		}
	}
	return s.openSession(ctx, saved)
}

// ResumeSession opens (or returns the already opened) payment session for a pending order.
// An order owned by another user is reported as not found.
func (s *Service) ResumeSession(ctx context.Context, orderExternalID string, userID *string) (Result, error) {
	o, err := s.Orders.Get(ctx, orderExternalID)
	if err != nil {
		return Result{}, err
	}
	if !ownedBy(o, userID) {
		return Result{}, orders.ErrNotFound
	}
	return s.openSession(ctx, o)
}

// ownedBy reports whether userID may act on o. Guest orders are open to anyone holding the id.
func ownedBy(o orders.Order, userID *string) bool {
	return o.UserID == nil || (userID != nil && *userID == *o.UserID)
}

// scopedKey namespaces a client idempotency key by caller, so two users sending the same key
// never collide on one order.
func scopedKey(userID *string, key string) string {
	if key == "" {
		return ""
	}
	if userID == nil {
		return "guest:" + key
	}
	return "user:" + *userID + ":" + key
}

func (s *Service) openSession(ctx context.Context, o orders.Order) (Result, error) {
	if o.SessionRef != nil && o.SessionURL != nil {
		return Result{OrderID: o.ExternalID, RedirectURL: *o.SessionURL}, nil
	}
	if o.Status != orders.StatusPending || !o.Payable() {
		return Result{}, ErrNotPayable
	}

	sess, err := s.Gateway.CreateSession(ctx, s.sessionRequest(o))
	if err != nil {
		log.Printf("checkout gateway order=%s err=%v", o.ExternalID, err)
		return Result{}, &GatewayError{OrderID: o.ExternalID, Err: err}
	}

	attached, err := s.Orders.AttachSession(ctx, o.ID, sess.ID, sess.URL)
	if err != nil {
		return Result{}, fmt.Errorf("persist session for order %s: %w", o.ExternalID, err)
	}
	if !attached {
		// a concurrent resume attached first; serve whatever it stored
		cur, err := s.Orders.Get(ctx, o.ExternalID)
		if err != nil {
			return Result{}, err
		}
		if cur.SessionURL == nil {
			return Result{}, fmt.Errorf("order %s: session not attached", o.ExternalID)
		}
		return Result{OrderID: cur.ExternalID, RedirectURL: *cur.SessionURL}, nil
	}
	log.Printf("checkout session order=%s ref=%s total=%d", o.ExternalID, sess.ID, o.Total)
	return Result{OrderID: o.ExternalID, RedirectURL: sess.URL}, nil
}

func (s *Service) sessionRequest(o orders.Order) gateway.SessionRequest {
	items := make([]gateway.LineItem, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = gateway.LineItem{Name: l.ProductName, UnitAmount: l.Price, Quantity: l.Quantity}
	}
	currency := s.Currency
	if currency == "" {
		currency = "usd"
	}
	return gateway.SessionRequest{
		IdempotencyKey:  o.ID,
		ClientReference: o.ExternalID,
		Currency:        currency,
		Items:           items,
		ShippingAmount:  o.ShippingCost,
		SuccessURL:      s.SuccessURL,
		CancelURL:       s.CancelURL,
		Metadata:        gateway.Metadata{OrderExternalID: o.ExternalID, UserID: o.UserID},
		CollectShipping: true,
		CollectPhone:    true,
	}
}
