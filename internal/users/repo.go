package users

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("user not found")

// Contact is what the gateway collected at checkout.
type Contact struct {
	Name  string
	Phone string
	Email string
}

type Store interface {
	// BackfillProfile fills name/phone only where the user has not set them.
	BackfillProfile(ctx context.Context, userID string, c Contact) error
	ClearCartReminder(ctx context.Context, userID string) error
}

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) BackfillProfile(ctx context.Context, userID string, c Contact) error {
	name, phone := strings.TrimSpace(c.Name), strings.TrimSpace(c.Phone)
	if name == "" && phone == "" {
		return nil
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE users SET
			name  = COALESCE(NULLIF(name, ''), NULLIF($2, '')),
			phone = COALESCE(NULLIF(phone, ''), NULLIF($3, '')),
			updated_at = now()
		WHERE id=$1`, userID, name, phone)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) ClearCartReminder(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET cart_reminder_sent_at=NULL WHERE id=$1`, userID)
	return err
}
