package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the persistence contract for orders. Implementations must make CreatePending
// atomic and MarkPaid/MarkFailed single conditional writes.
type Store interface {
	// CreatePending inserts o and its lines. When o carries an idempotency key that is already
	// taken, the existing order is returned with existed=true and nothing is written.
	CreatePending(ctx context.Context, o Order) (saved Order, existed bool, err error)
	Get(ctx context.Context, externalID string) (Order, error)
	BySession(ctx context.Context, ref string) (Order, error)
	// AttachSession sets the session reference only while it is still null.
	AttachSession(ctx context.Context, orderID, ref, url string) (attached bool, err error)
	// MarkPaid applies the paid transition for the order holding ref. applied is true only for
	// the call that actually changed the row.
	MarkPaid(ctx context.Context, ref string) (o Order, applied bool, err error)
	MarkFailed(ctx context.Context, ref string) (o Order, applied bool, err error)
	SetStatus(ctx context.Context, externalID string, to Status) (Order, error)
}

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const orderCols = `id, external_id, user_id, idempotency_key, subtotal, shipping_cost, total,
	status, payment_status, payment_session_ref, payment_session_url, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ExternalID, &o.UserID, &o.IdempotencyKey, &o.Subtotal,
		&o.ShippingCost, &o.Total, &o.Status, &o.PaymentStatus, &o.SessionRef, &o.SessionURL,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (r *Repo) CreatePending(ctx context.Context, o Order) (Order, bool, error) {
	if err := o.Validate(); err != nil {
		return Order{}, false, err
	}
	if o.IdempotencyKey != nil {
		existing, err := r.byIdempotencyKey(ctx, *o.IdempotencyKey)
		if err == nil {
			return existing, true, nil
		} else if !errors.Is(err, ErrNotFound) {
			return Order{}, false, err
		}
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO orders(id, external_id, user_id, idempotency_key, subtotal, shipping_cost, total, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING created_at, updated_at`,
		o.ID, o.ExternalID, o.UserID, o.IdempotencyKey, o.Subtotal, o.ShippingCost, o.Total,
		o.Status, o.PaymentStatus)
	if err := row.Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) && o.IdempotencyKey != nil {
			// lost the race against a concurrent checkout with the same key
			_ = tx.Rollback(ctx)
			existing, err := r.byIdempotencyKey(ctx, *o.IdempotencyKey)
			return existing, err == nil, err
		}
		return Order{}, false, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(`
			INSERT INTO order_lines(id, order_id, position, product_id, product_name, quantity, price, original_price, discount_percent)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			l.ID, o.ID, i, l.ProductID, l.ProductName, l.Quantity, l.Price, l.OriginalPrice, l.DiscountPercent)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return Order{}, false, fmt.Errorf("insert order lines: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, err
	}
	return o, false, nil
}

func (r *Repo) byIdempotencyKey(ctx context.Context, key string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE idempotency_key=$1`, key))
	if err != nil {
		return Order{}, err
	}
	return r.withLines(ctx, o)
}

func (r *Repo) Get(ctx context.Context, externalID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE external_id=$1`, externalID))
	if err != nil {
		return Order{}, err
	}
	return r.withLines(ctx, o)
}

func (r *Repo) BySession(ctx context.Context, ref string) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE payment_session_ref=$1`, ref))
}

func (r *Repo) withLines(ctx context.Context, o Order) (Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price, original_price, discount_percent
		FROM order_lines WHERE order_id=$1 ORDER BY position`, o.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	o.Lines = make([]Line, 0, 4)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity,
			&l.Price, &l.OriginalPrice, &l.DiscountPercent); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func (r *Repo) AttachSession(ctx context.Context, orderID, ref, url string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_session_ref=$2, payment_session_url=$3, updated_at=now()
		WHERE id=$1 AND payment_session_ref IS NULL`, orderID, ref, url)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) MarkPaid(ctx context.Context, ref string) (Order, bool, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders SET
			payment_status='paid',
			status = CASE WHEN status='pending' THEN 'confirmed' ELSE status END,
			updated_at=now()
		WHERE payment_session_ref=$1
			AND (payment_status='pending' OR (payment_status='failed' AND status='pending'))
		RETURNING `+orderCols, ref))
	return r.afterConditional(ctx, ref, o, err)
}

func (r *Repo) MarkFailed(ctx context.Context, ref string) (Order, bool, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders SET payment_status='failed', updated_at=now()
		WHERE payment_session_ref=$1 AND payment_status IN ('pending', 'paid')
		RETURNING `+orderCols, ref))
	return r.afterConditional(ctx, ref, o, err)
}

// afterConditional tells "no row for ref" apart from "row already in the target state".
func (r *Repo) afterConditional(ctx context.Context, ref string, o Order, err error) (Order, bool, error) {
	if err == nil {
		o, err = r.withLines(ctx, o)
		return o, true, err
	}
	if !errors.Is(err, ErrNotFound) {
		return Order{}, false, err
	}
	cur, err := r.BySession(ctx, ref)
	if err != nil {
		return Order{}, false, err
	}
	return cur, false, nil
}

func (r *Repo) SetStatus(ctx context.Context, externalID string, to Status) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE external_id=$1 FOR UPDATE`, externalID))
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(cur.Status, to) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, cur.ID, to); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return r.Get(ctx, externalID)
}
