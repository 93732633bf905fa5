package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id              TEXT PRIMARY KEY,
		sku             TEXT UNIQUE,
		name            TEXT NOT NULL,
		price           NUMERIC(12,2) NOT NULL DEFAULT 0,
		stock           INTEGER NOT NULL DEFAULT 0,
		min_stock       INTEGER NOT NULL DEFAULT 5,
		allow_backorder BOOLEAN NOT NULL DEFAULT false,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS product_colors (
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		name       TEXT NOT NULL,
		hex_code   TEXT NOT NULL DEFAULT '',
		stock      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (product_id, position)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS product_colors_name_uq ON product_colors (product_id, lower(name))`,
	`CREATE TABLE IF NOT EXISTS order_counters (
		name  TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id               TEXT PRIMARY KEY,
		order_number     TEXT NOT NULL UNIQUE,
		user_id          TEXT NOT NULL,
		items            JSONB NOT NULL,
		shipping_address JSONB NOT NULL,
		subtotal         NUMERIC(12,2) NOT NULL,
		shipping         NUMERIC(12,2) NOT NULL DEFAULT 0,
		discount         NUMERIC(12,2) NOT NULL DEFAULT 0,
		total            NUMERIC(12,2) NOT NULL,
		payment_method   TEXT NOT NULL,
		payment_status   TEXT NOT NULL DEFAULT 'pending',
		transaction_id   TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT 'pending',
		status_history   JSONB NOT NULL DEFAULT '[]',
		notes            TEXT NOT NULL DEFAULT '',
		agreed_to_terms  BOOLEAN NOT NULL DEFAULT false,
		is_deleted       BOOLEAN NOT NULL DEFAULT false,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status) WHERE NOT is_deleted`,
}

// Migrate creates the tables the order store needs.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
