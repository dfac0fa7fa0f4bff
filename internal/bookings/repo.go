package bookings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const bookingCols = `id, service_id, user_id, starts_at, duration_minutes, price, status, payment_status, payment_session_ref, paid_at`

func scanBooking(row pgx.Row) (Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.ServiceID, &b.UserID, &b.StartsAt, &b.DurationMinutes, &b.Price,
		&b.Status, &b.PaymentStatus, &b.SessionRef, &b.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

func (r *Repo) MarkPaid(ctx context.Context, ref string) (Booking, bool, error) {
	b, err := scanBooking(r.DB.QueryRow(ctx, `
		UPDATE bookings SET payment_status='paid', paid_at=now(), updated_at=now()
		WHERE payment_session_ref=$1
			AND (payment_status='pending' OR (payment_status='failed' AND paid_at IS NULL))
		RETURNING `+bookingCols, ref))
	return r.after(ctx, ref, b, err)
}

func (r *Repo) MarkFailed(ctx context.Context, ref string) (Booking, bool, error) {
	b, err := scanBooking(r.DB.QueryRow(ctx, `
		UPDATE bookings SET payment_status='failed', updated_at=now()
		WHERE payment_session_ref=$1 AND payment_status IN ('pending', 'paid')
		RETURNING `+bookingCols, ref))
	return r.after(ctx, ref, b, err)
}

func (r *Repo) after(ctx context.Context, ref string, b Booking, err error) (Booking, bool, error) {
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Booking{}, false, err
	}
	cur, err := scanBooking(r.DB.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE payment_session_ref=$1`, ref))
	if err != nil {
		return Booking{}, false, err
	}
	return cur, false, nil
}
