package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Products, services and users are owned by the admin side; the statements here only make
// sure the columns this service reads exist on a fresh database.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id               TEXT PRIMARY KEY,
		external_id      TEXT NOT NULL UNIQUE,
		name             TEXT NOT NULL,
		price            BIGINT NOT NULL CHECK (price >= 0),
		stock            INT NOT NULL DEFAULT 0 CHECK (stock >= 0),
		discount_percent INT NOT NULL DEFAULT 0 CHECK (discount_percent BETWEEN 0 AND 100),
		active           BOOLEAN NOT NULL DEFAULT TRUE,
		deleted_at       TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id                    TEXT PRIMARY KEY,
		email                 TEXT NOT NULL UNIQUE,
		name                  TEXT,
		phone                 TEXT,
		cart_reminder_sent_at TIMESTAMPTZ,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		quantity   INT NOT NULL CHECK (quantity >= 1),
		position   INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                  TEXT PRIMARY KEY,
		external_id         TEXT NOT NULL UNIQUE,
		user_id             TEXT,
		idempotency_key     TEXT UNIQUE,
		subtotal            BIGINT NOT NULL,
		shipping_cost       BIGINT NOT NULL,
		total               BIGINT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'pending',
		payment_status      TEXT NOT NULL DEFAULT 'pending',
		payment_session_ref TEXT UNIQUE,
		payment_session_url TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (total = subtotal + shipping_cost)
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		id               TEXT PRIMARY KEY,
		order_id         TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		position         INT NOT NULL DEFAULT 0,
		product_id       TEXT NOT NULL,
		product_name     TEXT NOT NULL,
		quantity         INT NOT NULL CHECK (quantity >= 1),
		price            BIGINT NOT NULL,
		original_price   BIGINT NOT NULL,
		discount_percent INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS order_lines_order_id_idx ON order_lines(order_id)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id                  TEXT PRIMARY KEY,
		service_id          TEXT NOT NULL,
		user_id             TEXT,
		starts_at           TIMESTAMPTZ NOT NULL,
		duration_minutes    INT NOT NULL,
		price               BIGINT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'pending',
		payment_status      TEXT NOT NULL DEFAULT 'pending',
		payment_session_ref TEXT UNIQUE,
		paid_at             TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE bookings ADD COLUMN IF NOT EXISTS paid_at TIMESTAMPTZ`,
}

func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
