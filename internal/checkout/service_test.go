package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/salon-storefront/internal/cart"
	"github.com/ariefcatur/salon-storefront/internal/catalog"
	"github.com/ariefcatur/salon-storefront/internal/gateway"
	"github.com/ariefcatur/salon-storefront/internal/memstore"
	"github.com/ariefcatur/salon-storefront/internal/orders"
	"github.com/ariefcatur/salon-storefront/internal/redisx"
)

type fakeGateway struct {
	mu   sync.Mutex
	err  error
	reqs []gateway.SessionRequest
}

func (f *fakeGateway) CreateSession(_ context.Context, req gateway.SessionRequest) (gateway.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return gateway.Session{}, f.err
	}
	return gateway.Session{
		ID:  "cs_" + req.IdempotencyKey,
		URL: "https://pay.example/" + req.ClientReference,
	}, nil
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type downCatalog struct{}

func (downCatalog) Lookup(context.Context, []string) (map[string]catalog.Product, error) {
	return nil, errors.New("connection refused")
}

func setup(t *testing.T) (*Service, *memstore.Store, *fakeGateway) {
	t.Helper()
	st := memstore.New()
	st.PutProduct(catalog.Product{ID: "serum", Name: "Serum", Price: 1999, Stock: 5, DiscountPercent: 15, Active: true})
	st.PutProduct(catalog.Product{ID: "comb", Name: "Comb", Price: 450, Stock: 1, Active: true})
	st.PutProduct(catalog.Product{ID: "retired", Name: "Retired", Price: 100, Stock: 9, Active: false})
	gw := &fakeGateway{}
	svc := &Service{
		Cart:         &cart.Materializer{Catalog: st},
		Orders:       st.Orders(),
		Gateway:      gw,
		ShippingCost: 500,
		Currency:     "usd",
		SuccessURL:   "https://shop.example/ok",
		CancelURL:    "https://shop.example/cart",
	}
	return svc, st, gw
}

func ptr(s string) *string { return &s }

func TestCheckout_CreatesOrderAndSession(t *testing.T) {
	svc, st, gw := setup(t)
	ctx := context.Background()

	res, err := svc.Checkout(ctx, Request{
		Lines:  []cart.Line{{ProductID: "serum", Quantity: 2}, {ProductID: "comb", Quantity: 1}},
		UserID: ptr("user-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/"+res.OrderID, res.RedirectURL)

	o, err := st.Orders().Get(ctx, res.OrderID)
	require.NoError(t, err)
	// 1999 at 15% off rounds half up to 1699
	require.Len(t, o.Lines, 2)
	assert.Equal(t, int64(1699), o.Lines[0].Price)
	assert.Equal(t, int64(1999), o.Lines[0].OriginalPrice)
	assert.Equal(t, 15, o.Lines[0].DiscountPercent)
	assert.Equal(t, int64(2*1699+450), o.Subtotal)
	assert.Equal(t, o.Subtotal+500, o.Total)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	require.NotNil(t, o.SessionRef)
	assert.Equal(t, "cs_"+o.ID, *o.SessionRef)

	require.Equal(t, 1, gw.calls())
	req := gw.reqs[0]
	assert.Equal(t, o.ID, req.IdempotencyKey)
	assert.Equal(t, res.OrderID, req.Metadata.OrderExternalID)
	assert.Equal(t, "user-1", *req.Metadata.UserID)
	assert.Equal(t, int64(500), req.ShippingAmount)
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, []gateway.LineItem{
		{Name: "Serum", UnitAmount: 1699, Quantity: 2},
		{Name: "Comb", UnitAmount: 450, Quantity: 1},
	}, req.Items)
}

func TestCheckout_GuestHasNoUserMetadata(t *testing.T) {
	svc, _, gw := setup(t)
	_, err := svc.Checkout(context.Background(), Request{Lines: []cart.Line{{ProductID: "serum", Quantity: 1}}})
	require.NoError(t, err)
	require.Equal(t, 1, gw.calls())
	assert.Nil(t, gw.reqs[0].Metadata.UserID)
	assert.NotContains(t, gw.reqs[0].Metadata.Map(), "user_id")
}

func TestCheckout_RejectsChangedCart(t *testing.T) {
	cases := []struct {
		name  string
		lines []cart.Line
		check func(t *testing.T, v cart.View)
	}{
		{"quantity above stock", []cart.Line{{ProductID: "comb", Quantity: 3}}, func(t *testing.T, v cart.View) {
			assert.Equal(t, 1, v.Adjusted)
			require.Len(t, v.Items, 1)
			assert.Equal(t, 1, v.Items[0].Quantity)
		}},
		{"inactive product", []cart.Line{{ProductID: "serum", Quantity: 1}, {ProductID: "retired", Quantity: 1}}, func(t *testing.T, v cart.View) {
			assert.Equal(t, 1, v.Removed)
			assert.Equal(t, []string{"retired"}, v.RemovedIDs)
		}},
		{"unknown product", []cart.Line{{ProductID: "nope", Quantity: 1}}, func(t *testing.T, v cart.View) {
			assert.Equal(t, 1, v.Removed)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, st, gw := setup(t)
			_, err := svc.Checkout(context.Background(), Request{Lines: tc.lines})
			require.ErrorIs(t, err, ErrCartInvalid)
			var cie *CartInvalidError
			require.True(t, errors.As(err, &cie))
			tc.check(t, cie.View)
			assert.Zero(t, st.OrderCount())
			assert.Zero(t, gw.calls())
		})
	}
}

func TestCheckout_OutOfStockRejected(t *testing.T) {
	svc, st, _ := setup(t)
	st.PutProduct(catalog.Product{ID: "mask", Name: "Mask", Price: 900, Stock: 0, Active: true})
	_, err := svc.Checkout(context.Background(), Request{Lines: []cart.Line{{ProductID: "mask", Quantity: 1}}})
	var cie *CartInvalidError
	require.ErrorAs(t, err, &cie)
	assert.Equal(t, 1, cie.View.OutOfStock)
	assert.Contains(t, err.Error(), "out of stock")
}

func TestCheckout_InputErrors(t *testing.T) {
	svc, st, _ := setup(t)
	_, err := svc.Checkout(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyCart)
	_, err = svc.Checkout(context.Background(), Request{Lines: []cart.Line{{ProductID: "serum", Quantity: 0}}})
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
	assert.Zero(t, st.OrderCount())
}

func TestCheckout_CatalogUnavailable(t *testing.T) {
	svc, st, gw := setup(t)
	svc.Cart = &cart.Materializer{Catalog: downCatalog{}}
	_, err := svc.Checkout(context.Background(), Request{Lines: []cart.Line{{ProductID: "serum", Quantity: 1}}})
	require.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.Zero(t, st.OrderCount())
	assert.Zero(t, gw.calls())
}

func TestCheckout_GatewayDownThenResume(t *testing.T) {
	svc, st, gw := setup(t)
	ctx := context.Background()
	gw.err = fmt.Errorf("%w: status 503", gateway.ErrUnavailable)

	_, err := svc.Checkout(ctx, Request{Lines: []cart.Line{{ProductID: "serum", Quantity: 1}}, UserID: ptr("user-1")})
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	require.NotEmpty(t, ge.OrderID)

	o, err := st.Orders().Get(ctx, ge.OrderID)
	require.NoError(t, err)
	assert.Nil(t, o.SessionRef)
	assert.Equal(t, 1, st.OrderCount())

	gw.err = nil
	res, err := svc.ResumeSession(ctx, ge.OrderID, ptr("user-1"))
	require.NoError(t, err)
	assert.Equal(t, ge.OrderID, res.OrderID)

	// both attempts used the same gateway idempotency key
	require.Equal(t, 2, gw.calls())
	assert.Equal(t, gw.reqs[0].IdempotencyKey, gw.reqs[1].IdempotencyKey)

	again, err := svc.ResumeSession(ctx, ge.OrderID, ptr("user-1"))
	require.NoError(t, err)
	assert.Equal(t, res.RedirectURL, again.RedirectURL)
	assert.Equal(t, 2, gw.calls(), "an attached session is returned without calling the gateway")
}

func TestResumeSession_Guards(t *testing.T) {
	svc, st, gw := setup(t)
	ctx := context.Background()
	gw.err = gateway.ErrUnavailable
	_, err := svc.Checkout(ctx, Request{Lines: []cart.Line{{ProductID: "serum", Quantity: 1}}, UserID: ptr("user-1")})
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	gw.err = nil

	_, err = svc.ResumeSession(ctx, ge.OrderID, ptr("someone-else"))
	assert.ErrorIs(t, err, orders.ErrNotFound)
	_, err = svc.ResumeSession(ctx, ge.OrderID, nil)
	assert.ErrorIs(t, err, orders.ErrNotFound)
	_, err = svc.ResumeSession(ctx, "missing", nil)
	assert.ErrorIs(t, err, orders.ErrNotFound)

	_, err = st.Orders().SetStatus(ctx, ge.OrderID, orders.StatusCancelled)
	require.NoError(t, err)
	_, err = svc.ResumeSession(ctx, ge.OrderID, ptr("user-1"))
	assert.ErrorIs(t, err, ErrNotPayable)
}

func TestCheckout_IdempotencyKeyReplay(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		t.Run(fmt.Sprintf("cache=%v", withCache), func(t *testing.T) {
			svc, st, gw := setup(t)
			if withCache {
				mr := miniredis.RunT(t)
				svc.Idem = &redisx.Idempotency{RDB: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
			}
			ctx := context.Background()
			req := Request{Lines: []cart.Line{{ProductID: "serum", Quantity: 1}}, IdempotencyKey: "key-1"}

			first, err := svc.Checkout(ctx, req)
			require.NoError(t, err)
			second, err := svc.Checkout(ctx, req)
			require.NoError(t, err)

			assert.Equal(t, first, second)
			assert.Equal(t, 1, st.OrderCount())
			assert.Equal(t, 1, gw.calls())
		})
	}
}

func TestCheckout_IdempotencyKeyScopedPerUser(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		t.Run(fmt.Sprintf("cache=%v", withCache), func(t *testing.T) {
			svc, st, _ := setup(t)
			if withCache {
				mr := miniredis.RunT(t)
				svc.Idem = &redisx.Idempotency{RDB: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
			}
			ctx := context.Background()

			alice, err := svc.Checkout(ctx, Request{
				Lines: []cart.Line{{ProductID: "serum", Quantity: 1}}, UserID: ptr("alice"), IdempotencyKey: "k",
			})
			require.NoError(t, err)
			bob, err := svc.Checkout(ctx, Request{
				Lines: []cart.Line{{ProductID: "comb", Quantity: 1}}, UserID: ptr("bob"), IdempotencyKey: "k",
			})
			require.NoError(t, err)
			assert.NotEqual(t, alice.OrderID, bob.OrderID)
			assert.NotEqual(t, alice.RedirectURL, bob.RedirectURL)
			assert.Equal(t, 2, st.OrderCount())

			o, err := st.Orders().Get(ctx, bob.OrderID)
			require.NoError(t, err)
			assert.Equal(t, "bob", *o.UserID)
			require.Len(t, o.Lines, 1)
			assert.Equal(t, "comb", o.Lines[0].ProductID)

			// alice replaying her key still lands on her own order
			again, err := svc.Checkout(ctx, Request{
				Lines: []cart.Line{{ProductID: "serum", Quantity: 1}}, UserID: ptr("alice"), IdempotencyKey: "k",
			})
			require.NoError(t, err)
			assert.Equal(t, alice, again)
		})
	}
}

func TestCheckout_ReplayOfForeignOrderHidden(t *testing.T) {
	svc, st, gw := setup(t)
	ctx := context.Background()

	// a row owned by alice sitting under bob's scoped key
	key := scopedKey(ptr("bob"), "k")
	o := orders.NewPending(ptr("alice"), []orders.Line{{ProductID: "serum", ProductName: "Serum", Quantity: 1, Price: 1699}}, 500)
	o.IdempotencyKey = &key
	_, _, err := st.Orders().CreatePending(ctx, o)
	require.NoError(t, err)

	_, err = svc.Checkout(ctx, Request{
		Lines: []cart.Line{{ProductID: "comb", Quantity: 1}}, UserID: ptr("bob"), IdempotencyKey: "k",
	})
	assert.ErrorIs(t, err, orders.ErrNotFound)
	assert.Zero(t, gw.calls())

	cur, err := st.Orders().Get(ctx, o.ExternalID)
	require.NoError(t, err)
	assert.Nil(t, cur.SessionRef)
}

func TestCheckout_ResubmitAfterStockAdjustment(t *testing.T) {
	svc, st, _ := setup(t)
	st.PutProduct(catalog.Product{ID: "oil", Name: "Oil", Price: 1200, Stock: 3, Active: true})
	ctx := context.Background()

	_, err := svc.Checkout(ctx, Request{Lines: []cart.Line{{ProductID: "oil", Quantity: 5}}})
	var cie *CartInvalidError
	require.ErrorAs(t, err, &cie)
	assert.Equal(t, 1, cie.View.Adjusted)
	require.Len(t, cie.View.Items, 1)
	assert.Equal(t, 3, cie.View.Items[0].Quantity)
	assert.Zero(t, st.OrderCount())

	res, err := svc.Checkout(ctx, Request{Lines: []cart.Line{{ProductID: "oil", Quantity: 3}}})
	require.NoError(t, err)
	o, err := st.Orders().Get(ctx, res.OrderID)
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 3, o.Lines[0].Quantity)
	assert.Equal(t, int64(3600), o.Subtotal)
}

func TestCheckout_DiscountSnapshotOnOrderLine(t *testing.T) {
	svc, st, _ := setup(t)
	st.PutProduct(catalog.Product{ID: "mask", Name: "Mask", Price: 3000, Stock: 10, DiscountPercent: 10, Active: true})
	ctx := context.Background()

	res, err := svc.Checkout(ctx, Request{Lines: []cart.Line{{ProductID: "mask", Quantity: 2}}})
	require.NoError(t, err)
	o, err := st.Orders().Get(ctx, res.OrderID)
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	l := o.Lines[0]
	assert.Equal(t, "mask", l.ProductID)
	assert.Equal(t, int64(2700), l.Price)
	assert.Equal(t, int64(3000), l.OriginalPrice)
	assert.Equal(t, 10, l.DiscountPercent)
	assert.Equal(t, 2, l.Quantity)
	assert.Equal(t, int64(5400), o.Subtotal)
	assert.Equal(t, int64(5400+500), o.Total)
}
