package memstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/salon-storefront/internal/bookings"
	"github.com/ariefcatur/salon-storefront/internal/orders"
	"github.com/ariefcatur/salon-storefront/internal/users"
)

func pendingWithSession(t *testing.T, s *Store, key *string, ref string) orders.Order {
	t.Helper()
	o := orders.NewPending(nil, []orders.Line{{ProductID: "p", ProductName: "P", Quantity: 1, Price: 100}}, 500)
	o.IdempotencyKey = key
	saved, _, err := s.Orders().CreatePending(context.Background(), o)
	require.NoError(t, err)
	if ref != "" {
		ok, err := s.Orders().AttachSession(context.Background(), saved.ID, ref, "https://pay.example/"+ref)
		require.NoError(t, err)
		require.True(t, ok)
	}
	return saved
}

func TestCreatePendingIdempotencyKey(t *testing.T) {
	s := New()
	key := "k1"
	first := pendingWithSession(t, s, &key, "")

	again := orders.NewPending(nil, []orders.Line{{ProductID: "p", ProductName: "P", Quantity: 3, Price: 100}}, 500)
	again.IdempotencyKey = &key
	got, existed, err := s.Orders().CreatePending(context.Background(), again)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ExternalID, got.ExternalID)
	assert.Equal(t, 1, s.OrderCount())
}

func TestCreatePendingRejectsBadTotals(t *testing.T) {
	s := New()
	o := orders.NewPending(nil, []orders.Line{{ProductID: "p", Quantity: 1, Price: 100}}, 500)
	o.Total++
	_, _, err := s.Orders().CreatePending(context.Background(), o)
	assert.ErrorIs(t, err, orders.ErrTotalMismatch)
}

func TestAttachSessionOnlyOnce(t *testing.T) {
	s := New()
	o := pendingWithSession(t, s, nil, "cs_1")
	ok, err := s.Orders().AttachSession(context.Background(), o.ID, "cs_2", "https://pay.example/cs_2")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Orders().Get(context.Background(), o.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", *got.SessionRef)
}

func TestMarkPaidAppliesExactlyOnce(t *testing.T) {
	s := New()
	pendingWithSession(t, s, nil, "cs_1")

	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Orders().MarkPaid(context.Background(), "cs_1")
			assert.NoError(t, err)
			if ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), applied.Load())

	_, _, err := s.Orders().MarkPaid(context.Background(), "cs_unknown")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestBookingTransitions(t *testing.T) {
	s := New()
	ref := "cs_b"
	s.PutBooking(bookings.Booking{ID: "b1", PaymentStatus: bookings.PaymentPending, SessionRef: &ref})

	_, ok, err := s.Bookings().MarkFailed(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, ok)
	b, ok, err := s.Bookings().MarkPaid(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, bookings.PaymentPaid, b.PaymentStatus)
	_, ok, err = s.Bookings().MarkPaid(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, ok)

	// a late failure after paid sticks; the other success event must not re-apply paid
	_, ok, err = s.Bookings().MarkFailed(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, ok)
	b, ok, err = s.Bookings().MarkPaid(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, bookings.PaymentFailed, b.PaymentStatus)
}

func TestOrderLateFailureAfterPaidIsTerminal(t *testing.T) {
	s := New()
	pendingWithSession(t, s, nil, "cs_1")
	ctx := context.Background()

	_, ok, err := s.Orders().MarkPaid(ctx, "cs_1")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = s.Orders().MarkFailed(ctx, "cs_1")
	require.NoError(t, err)
	require.True(t, ok)

	o, ok, err := s.Orders().MarkPaid(ctx, "cs_1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.Equal(t, orders.PaymentFailed, o.PaymentStatus)
}

func TestBackfillProfileKeepsUserValues(t *testing.T) {
	s := New()
	s.PutUser(User{ID: "u1", Name: "Set By User"})
	require.NoError(t, s.BackfillProfile(context.Background(), "u1", users.Contact{Name: "From Gateway", Phone: " +1 555 "}))
	u, _ := s.User("u1")
	assert.Equal(t, "Set By User", u.Name)
	assert.Equal(t, "+1 555", u.Phone)

	assert.ErrorIs(t, s.BackfillProfile(context.Background(), "nobody", users.Contact{}), users.ErrNotFound)
}
