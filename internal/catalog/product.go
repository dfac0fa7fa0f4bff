package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrUnavailable = errors.New("catalog unavailable")

type Product struct {
	ID              string
	ExternalID      string
	Name            string
	Price           int64 // minor units
	Stock           int
	DiscountPercent int
	Active          bool
	DeletedAt       *time.Time
}

// Purchasable reports whether the product may appear in a cart at all. Stock is checked
// separately so an out-of-stock line can stay visible.
func (p Product) Purchasable() bool {
	return p.Active && p.DeletedAt == nil
}

// Store is the read side of the catalog. Lookup returns only the ids it found.
type Store interface {
	Lookup(ctx context.Context, ids []string) (map[string]Product, error)
}
