// Package memstore keeps every store in process memory. It backs STORE_DRIVER=memory for local
// runs and the package tests; one mutex stands in for the database's row locking.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/salon-storefront/internal/bookings"
	"github.com/ariefcatur/salon-storefront/internal/cart"
	"github.com/ariefcatur/salon-storefront/internal/catalog"
	"github.com/ariefcatur/salon-storefront/internal/orders"
	"github.com/ariefcatur/salon-storefront/internal/users"
)

type User struct {
	ID                 string
	Email              string
	Name               string
	Phone              string
	CartReminderSentAt *time.Time
}

type Store struct {
	mu        sync.RWMutex
	products  map[string]catalog.Product
	orders    map[string]orders.Order // by id
	bySession map[string]string       // session ref -> order id
	bookings  map[string]bookings.Booking
	users     map[string]User
	carts     map[string][]cart.Line
}

func New() *Store {
	return &Store{
		products:  make(map[string]catalog.Product),
		orders:    make(map[string]orders.Order),
		bySession: make(map[string]string),
		bookings:  make(map[string]bookings.Booking),
		users:     make(map[string]User),
		carts:     make(map[string][]cart.Line),
	}
}

var (
	_ catalog.Store = (*Store)(nil)
	_ cart.Store    = (*Store)(nil)
	_ users.Store   = (*Store)(nil)
)

func (s *Store) PutProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) User(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *Store) PutBooking(b bookings.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

func (s *Store) Booking(id string) (bookings.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	return b, ok
}

// OrderCount is the number of order rows, for tests asserting nothing was persisted.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *Store) Lookup(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) Load(_ context.Context, userID string) ([]cart.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]cart.Line(nil), s.carts[userID]...), nil
}

func (s *Store) Replace(_ context.Context, userID string, lines []cart.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lines) == 0 {
		delete(s.carts, userID)
		return nil
	}
	s.carts[userID] = append([]cart.Line(nil), lines...)
	return nil
}

func (s *Store) BackfillProfile(_ context.Context, userID string, c users.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	if u.Name == "" {
		u.Name = strings.TrimSpace(c.Name)
	}
	if u.Phone == "" {
		u.Phone = strings.TrimSpace(c.Phone)
	}
	s.users[userID] = u
	return nil
}

func (s *Store) ClearCartReminder(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.CartReminderSentAt = nil
		s.users[userID] = u
	}
	return nil
}

// Orders exposes the order rows through orders.Store.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Bookings exposes the booking rows through bookings.Store.
func (s *Store) Bookings() *Bookings { return &Bookings{s: s} }

type Orders struct{ s *Store }

var _ orders.Store = (*Orders)(nil)

func copyOrder(o orders.Order) orders.Order {
	o.Lines = append([]orders.Line(nil), o.Lines...)
	return o
}

func (m *Orders) CreatePending(_ context.Context, o orders.Order) (orders.Order, bool, error) {
	if err := o.Validate(); err != nil {
		return orders.Order{}, false, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if o.IdempotencyKey != nil {
		for _, cur := range m.s.orders {
			if cur.IdempotencyKey != nil && *cur.IdempotencyKey == *o.IdempotencyKey {
				return copyOrder(cur), true, nil
			}
		}
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	o = copyOrder(o)
	m.s.orders[o.ID] = o
	return copyOrder(o), false, nil
}

func (m *Orders) Get(_ context.Context, externalID string) (orders.Order, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, o := range m.s.orders {
		if o.ExternalID == externalID {
			return copyOrder(o), nil
		}
	}
	return orders.Order{}, orders.ErrNotFound
}

func (m *Orders) BySession(_ context.Context, ref string) (orders.Order, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	id, ok := m.s.bySession[ref]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return copyOrder(m.s.orders[id]), nil
}

func (m *Orders) AttachSession(_ context.Context, orderID, ref, url string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orders[orderID]
	if !ok || o.SessionRef != nil {
		return false, nil
	}
	o.SessionRef, o.SessionURL = &ref, &url
	o.UpdatedAt = time.Now().UTC()
	m.s.orders[orderID] = o
	m.s.bySession[ref] = orderID
	return true, nil
}

func (m *Orders) MarkPaid(_ context.Context, ref string) (orders.Order, bool, error) {
	return m.conditional(ref, orders.Order.Payable, func(o *orders.Order) {
		o.PaymentStatus = orders.PaymentPaid
		if o.Status == orders.StatusPending {
			o.Status = orders.StatusConfirmed
		}
	})
}

func (m *Orders) MarkFailed(_ context.Context, ref string) (orders.Order, bool, error) {
	return m.conditional(ref, orders.Order.Failable, func(o *orders.Order) {
		o.PaymentStatus = orders.PaymentFailed
	})
}

func (m *Orders) conditional(ref string, guard func(orders.Order) bool, apply func(*orders.Order)) (orders.Order, bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	id, ok := m.s.bySession[ref]
	if !ok {
		return orders.Order{}, false, orders.ErrNotFound
	}
	o := m.s.orders[id]
	if !guard(o) {
		return copyOrder(o), false, nil
	}
	apply(&o)
	o.UpdatedAt = time.Now().UTC()
	m.s.orders[id] = o
	return copyOrder(o), true, nil
}

func (m *Orders) SetStatus(_ context.Context, externalID string, to orders.Status) (orders.Order, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for id, o := range m.s.orders {
		if o.ExternalID != externalID {
			continue
		}
		if !orders.CanTransition(o.Status, to) {
			return orders.Order{}, orders.ErrInvalidTransition
		}
		o.Status = to
		o.UpdatedAt = time.Now().UTC()
		m.s.orders[id] = o
		return copyOrder(o), nil
	}
	return orders.Order{}, orders.ErrNotFound
}

type Bookings struct{ s *Store }

var _ bookings.Store = (*Bookings)(nil)

func (m *Bookings) MarkPaid(_ context.Context, ref string) (bookings.Booking, bool, error) {
	return m.conditional(ref, bookings.Booking.Payable, func(b *bookings.Booking) {
		b.PaymentStatus = bookings.PaymentPaid
		now := time.Now().UTC()
		b.PaidAt = &now
	})
}

func (m *Bookings) MarkFailed(_ context.Context, ref string) (bookings.Booking, bool, error) {
	return m.conditional(ref, bookings.Booking.Failable, func(b *bookings.Booking) {
		b.PaymentStatus = bookings.PaymentFailed
	})
}

func (m *Bookings) conditional(ref string, guard func(bookings.Booking) bool, apply func(*bookings.Booking)) (bookings.Booking, bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for id, b := range m.s.bookings {
		if b.SessionRef == nil || *b.SessionRef != ref {
			continue
		}
		if !guard(b) {
			return b, false, nil
		}
		apply(&b)
		m.s.bookings[id] = b
		return b, true, nil
	}
	return bookings.Booking{}, false, bookings.ErrNotFound
}

// SeedDemo loads a small catalog for STORE_DRIVER=memory runs.
func (s *Store) SeedDemo() {
	for _, p := range []catalog.Product{
		{ID: "b1c0c4d2-0001-4000-8000-000000000001", Name: "Argan Hair Oil", Price: 2490, Stock: 12, Active: true},
		{ID: "b1c0c4d2-0001-4000-8000-000000000002", Name: "Keratin Shampoo", Price: 1850, Stock: 30, DiscountPercent: 15, Active: true},
		{ID: "b1c0c4d2-0001-4000-8000-000000000003", Name: "Vitamin C Serum", Price: 3900, Stock: 3, Active: true},
		{ID: "b1c0c4d2-0001-4000-8000-000000000004", Name: "Clay Mask", Price: 1200, Stock: 0, Active: true},
	} {
		p.ExternalID = p.ID
		s.PutProduct(p)
	}
}
