package gateway

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	metaOrderExternalID = "order_external_id"
	metaUserID          = "user_id"
)

var ErrBadMetadata = errors.New("malformed session metadata")

// Metadata is attached to a session so events can be correlated. It is a hint: the order row
// found by session reference stays authoritative.
type Metadata struct {
	OrderExternalID string
	UserID          *string
}

func (m Metadata) Map() map[string]string {
	out := map[string]string{metaOrderExternalID: m.OrderExternalID}
	if m.UserID != nil {
		out[metaUserID] = *m.UserID
	}
	return out
}

// ParseMetadata validates the raw map from an event. An empty map is valid and yields zero
// Metadata; bookings carry none.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	var m Metadata
	if v, ok := raw[metaOrderExternalID]; ok {
		v = strings.TrimSpace(v)
		if _, err := uuid.Parse(v); err != nil {
			return Metadata{}, ErrBadMetadata
		}
		m.OrderExternalID = v
	}
	if v, ok := raw[metaUserID]; ok {
		v = strings.TrimSpace(v)
		if v == "" {
			return Metadata{}, ErrBadMetadata
		}
		m.UserID = &v
	}
	return m, nil
}
